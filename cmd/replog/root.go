package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/replog/cluster"
)

const (
	configDesc = "path to a YAML config file; environment variables override it"
	envDesc    = "dotenv file loaded before reading the environment"
)

// flags shared by every subcommand.
type options struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	c := &cobra.Command{
		Use:           "replog",
		Short:         "Replicated append-only message log",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}
	c.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", configDesc)
	c.PersistentFlags().StringVar(&opts.envFile, "env-file", "", envDesc)

	c.AddCommand(newMasterCmd(opts), newSecondaryCmd(opts))
	return c
}

// loadConfig layers defaults, the optional YAML file, the optional dotenv
// file and the process environment, in that order.
func loadConfig(opts *options, lookup func(string) (string, bool)) (cluster.Config, error) {
	cfg := cluster.Default()
	if opts.configPath != "" {
		if err := cfg.LoadFile(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if opts.envFile != "" {
		// Load never overrides variables already set in the process.
		if err := godotenv.Load(opts.envFile); err != nil {
			return cfg, errors.Wrapf(err, "load env file %s", opts.envFile)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.FromEnv(lookup); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
