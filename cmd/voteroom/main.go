// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

// voteroom is the reference consumer of the room voting engine. It
// hosts an in-process mock chain, which makes it a self-contained way
// to exercise the full protocol (room creation, password-gated joins,
// encrypted ballots, session polling) without a deployed contract.
// Production embedders supply their own ledger.Contract.
package main

import (
	"fmt"
	"os"

	"github.com/voteroom-foundation/voteroom/cmd/voteroom/cli"
	"github.com/voteroom-foundation/voteroom/lib/version"
)

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root() *cli.Command {
	return &cli.Command{
		Name:    "voteroom",
		Summary: "encrypted room voting client",
		Subcommands: []*cli.Command{
			demoCommand(),
			configCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Printf("voteroom %s\n", version.Full())
			return nil
		},
	}
}
