package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/internal"
)

// app holds state shared by subcommands. conf is loaded before any
// subcommand runs.
type app struct {
	v    *viper.Viper
	conf *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "fluent-cat",
		Short:         "Send records to a fluentd forward input",
		Long:          ``,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.conf = conf
			internal.Debugf(conf, "%+v", conf)
			return nil
		},
	}

	pflags := root.PersistentFlags()
	config.AddFlags(pflags)
	if err := a.v.BindPFlags(pflags); err != nil {
		panic(err)
	}

	root.AddCommand(
		newEmitCmd(a),
		newConfigCmd(a),
		newTailCmd(a),
		newVersionCmd(a),
	)
	return root
}

func runApp(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runApp(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fluent-cat: %v\n", err)
		stop()
		os.Exit(1)
	}
}
