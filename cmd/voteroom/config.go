// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/voteroom-foundation/voteroom/cmd/voteroom/cli"
	"github.com/voteroom-foundation/voteroom/lib/config"
)

func configCommand() *cli.Command {
	var configPath string
	var outputJSON bool

	return &cli.Command{
		Name:    "config",
		Summary: "Validate and print the resolved configuration",
		Description: `Load the configuration file, apply environment overrides, validate
it, and print the resolved values. Use this to check a config file
before pointing a client at a production contract.`,
		Usage: "voteroom config [--config <path>] [--json]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("config", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file path (default: $VOTEROOM_CONFIG)")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Check the configured file", Command: "voteroom config"},
			{Description: "Check a specific file", Command: "voteroom config --config ./voteroom.yaml"},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			var cfg *config.Config
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config is invalid:\n%w", err)
			}

			if outputJSON {
				return cli.WriteJSON(cfg)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "environment\t%s\n", cfg.Environment)
			fmt.Fprintf(tw, "network.rpc_url\t%s\n", cfg.Network.RPCURL)
			fmt.Fprintf(tw, "network.chain_id\t%d\n", cfg.Network.ChainID)
			fmt.Fprintf(tw, "network.contract_address\t%s\n", cfg.Network.ContractAddress)
			fmt.Fprintf(tw, "relay.url\t%s\n", displayOrDisabled(cfg.Relay.URL))
			fmt.Fprintf(tw, "relay.timeout\t%s\n", cfg.Relay.Timeout)
			fmt.Fprintf(tw, "store.path\t%s\n", displayOrDisabled(cfg.Store.Path))
			fmt.Fprintf(tw, "session.poll_interval\t%s\n", cfg.Session.PollInterval)
			fmt.Fprintf(tw, "session.countdown_interval\t%s\n", cfg.Session.CountdownInterval)
			fmt.Fprintf(tw, "session.load_timeout\t%s\n", cfg.Session.LoadTimeout)
			fmt.Fprintf(tw, "session.password_ttl\t%s\n", cfg.Session.PasswordTTL)
			return tw.Flush()
		},
	}
}

func displayOrDisabled(value string) string {
	if value == "" {
		return "(disabled)"
	}
	return value
}
