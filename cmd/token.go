package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/LovationAdmin/finance-api/middleware"
)

type tokenCmd struct {
	owner string
	ttl   time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue an access token for local testing" }
func (*tokenCmd) Usage() string {
	return `finance-api token -owner <user id> [-ttl 1h]

  Signs an HS256 access token with JWT_SECRET, the same way the auth
  provider does. Refused in production.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "User id placed in the sub claim.")
	f.DurationVar(&c.ttl, "ttl", time.Hour, "Token lifetime.")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || c.ttl <= 0 {
		fmt.Fprintln(os.Stderr, "-owner and a positive -ttl are required")
		return subcommands.ExitUsageError
	}

	e, err := bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if e.cfg.IsProduction() {
		fmt.Fprintln(os.Stderr, "tokens are issued by the auth provider in production")
		return subcommands.ExitFailure
	}

	token, err := middleware.IssueToken(e.cfg.JWTSecret, c.owner, c.ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}
