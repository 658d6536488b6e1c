package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/LovationAdmin/finance-api/config"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations" }
func (*migrateCmd) Usage() string {
	return `finance-api migrate

  Applies every schema migration to DATABASE_URL. Migrations are idempotent,
  so running this twice is harmless.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if e.cfg.StoreDriver != config.DriverPostgres {
		fmt.Fprintln(os.Stderr, "migrate needs STORE_DRIVER=postgres")
		return subcommands.ExitUsageError
	}

	db, err := config.InitDB(ctx, e.cfg.DatabaseURL)
	if err != nil {
		e.log.Error().Err(err).Msg("database unavailable")
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := config.RunMigrations(ctx, db); err != nil {
		e.log.Error().Err(err).Msg("migration failed")
		return subcommands.ExitFailure
	}
	e.log.Info().Int("migrations", len(config.Migrations)).Msg("schema up to date")
	return subcommands.ExitSuccess
}
