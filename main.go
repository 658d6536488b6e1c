package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/LovationAdmin/finance-api/cmd"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range cmd.Commands {
		commander.Register(c, "")
	}

	flag.Parse()
	// Without a subcommand the binary serves, as deployments expect.
	if flag.NArg() == 0 {
		os.Args = append(os.Args, "serve")
		flag.CommandLine.Parse(os.Args[1:])
	}
	os.Exit(int(commander.Execute(context.Background())))
}
