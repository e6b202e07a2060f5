// Package fluentlog sends application events to a fluentd forward input.
//
// Events are encoded as [tag, time, record] MessagePack arrays and written
// in order over a single TCP or unix socket connection. Emit never blocks on
// the network: records are queued in memory and written by a background
// goroutine, which connects lazily and reconnects after failures.
//
//	s, err := fluentlog.New(&config.Config{Tag: "app", Host: "localhost", Port: 24224})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	s.Emit("orders", map[string]interface{}{"id": 1})
//
// See the client package for delivery callbacks, Flush and End.
package fluentlog

import (
	"github.com/jeffrom/fluentlog/client"
	"github.com/jeffrom/fluentlog/config"
)

// New returns a Sender for conf. If conf is nil the defaults in
// config.Default are used.
func New(conf *config.Config) (*client.Sender, error) {
	if conf == nil {
		conf = config.New()
	}
	return client.New(conf)
}
