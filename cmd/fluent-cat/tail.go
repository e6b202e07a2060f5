package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/protocol"
	"github.com/jeffrom/fluentlog/transport"
)

func newTailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Listen like a fluentd forward input and print received records",
		Long: `Listen on the configured host and port, or unix socket path, and print
each record received as a line of "time tag payload". Useful for checking
what an application sends without running fluentd.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doTail(cmd.Context(), a.conf, cmd.OutOrStdout())
		},
	}
}

func doTail(ctx context.Context, conf *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &recordPrinter{w: out}
	srv := transport.NewServer(conf, conf.Network(), conf.Addr(), p)
	if err := srv.Listen(); err != nil {
		return err
	}

	errC := make(chan error, 1)
	go func() { errC <- srv.Serve() }()

	select {
	case <-ctx.Done():
	case err := <-errC:
		srv.Stop()
		return err
	}
	return srv.Stop()
}

type recordPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *recordPrinter) HandleRecord(r *protocol.Record) error {
	line := formatRecord(r)

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func formatRecord(r *protocol.Record) string {
	t := strconv.FormatFloat(r.Time, 'f', -1, 64)
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf("%s %s %v", t, r.Tag, r.Payload)
	}
	return fmt.Sprintf("%s %s %s", t, r.Tag, b)
}
