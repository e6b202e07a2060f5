package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeffrom/fluentlog/internal"
)

// Set at build time with -ldflags "-X main.ReleaseVersion=..."
var (
	ReleaseVersion = "none"
	ReleaseDate    = "none"
	ReleaseCommit  = "none"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version and exit",
		Long:    ``,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			internal.Debugf(a.conf, "%+v", a.conf)
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s, released: %s, commit: %s\n",
				ReleaseVersion, ReleaseDate, ReleaseCommit)
		},
	}
}
