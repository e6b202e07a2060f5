package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jeffrom/fluentlog/client"
	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/internal"
)

type emitOptions struct {
	label        string
	withID       bool
	metricsAddr  string
	flushTimeout time.Duration
}

func newEmitCmd(a *app) *cobra.Command {
	opts := &emitOptions{}
	cmd := &cobra.Command{
		Use:     "emit [messages]",
		Aliases: []string{"e"},
		Short:   "Send messages as records",
		Long: `Send each argument as a record. With no arguments, each line of stdin
is sent. Lines holding a JSON object are sent as the record payload, other
lines are sent as {"message": line}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doEmit(cmd.Context(), a.conf, opts, args, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.label, "label", "l", "", "`LABEL` appended to the base tag")
	flags.BoolVar(&opts.withID, "id", false, "add a random event_id to each record")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on `ADDR` while sending")
	flags.DurationVar(&opts.flushTimeout, "flush-timeout", 10*time.Second, "how long to wait for pending records before exiting")
	return cmd
}

func doEmit(ctx context.Context, conf *config.Config, opts *emitOptions, args []string, in io.Reader, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := client.New(conf)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		s.WithMetrics(client.NewMetrics(reg, conf.Tag))

		srv := serveMetrics(opts.metricsAddr, reg)
		defer srv.Close()
	}

	var sent, failed int64
	cb := func(err error) {
		if err != nil {
			atomic.AddInt64(&failed, 1)
			fmt.Fprintf(errOut, "%v\n", err)
		}
	}
	emit := func(line string) error {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		if err := s.EmitCallback(opts.label, nil, payloadFor(line, opts.withID), cb); err != nil {
			return err
		}
		sent++
		return nil
	}

	for _, arg := range args {
		if err := emit(arg); err != nil {
			return err
		}
	}

	if len(args) == 0 && in != nil {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := emit(scanner.Text()); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrap(err, "failed to read input")
		}
	}

	flushCtx, cancel := context.WithTimeout(ctx, opts.flushTimeout)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil {
		return errors.Wrapf(err, "%d records not sent to %s", s.Len(), conf.Addr())
	}
	if err := s.Close(); err != nil {
		return err
	}

	internal.Debugf(conf, "sent %d records to %s", sent, conf.Addr())
	if n := atomic.LoadInt64(&failed); n > 0 {
		return errors.Errorf("%d of %d records failed", n, sent)
	}
	return nil
}

// payloadFor returns the payload for a line of input.
func payloadFor(line string, withID bool) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil || payload == nil {
		payload = map[string]interface{}{"message": line}
	}
	if withID {
		payload["event_id"] = uuid.NewString()
	}
	return payload
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			internal.LogError(errors.Wrap(err, "metrics server failed"))
		}
	}()
	return srv
}
