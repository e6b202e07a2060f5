package main

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Aliases: []string{"conf"},
		Short:   "Print the effective configuration as yaml",
		Long: `Print the configuration resulting from defaults, the config file,
FLUENT_* environment variables and flags. The output can be passed back
with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.conf.WriteYAML(cmd.OutOrStdout())
		},
	}
}
