package testhelper

import (
	"time"

	"github.com/jeffrom/fluentlog/config"
)

// DefaultTestConfig returns a configuration with short timeouts and the
// reconnect timer disabled, so tests control when reconnects happen.
func DefaultTestConfig(verbose bool) *config.Config {
	return &config.Config{
		Verbose:           verbose,
		Tag:               "test",
		Host:              "127.0.0.1",
		Port:              24224,
		Timeout:           500 * time.Millisecond,
		WriteTimeout:      500 * time.Millisecond,
		ReconnectInterval: 0,
		Milliseconds:      true,
	}
}
