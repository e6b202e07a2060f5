package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config holds sender configuration
type Config struct {
	// Verbose prints debugging information.
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`

	// Tag is the base tag. Labels passed to Emit are appended to it, separated
	// by a dot.
	Tag string `json:"tag" yaml:"tag" mapstructure:"tag"`

	// Host is the fluentd forward input host.
	Host string `json:"host" yaml:"host" mapstructure:"host"`

	// Port is the fluentd forward input port.
	Port int `json:"port" yaml:"port" mapstructure:"port"`

	// Path is a unix socket path. When set, Host and Port are ignored.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// Timeout determines how long to wait when connecting. It is also used for
	// writes unless WriteTimeout is set.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// WriteTimeout defines the time limit for writing a record to the socket.
	// A negative value uses Timeout.
	WriteTimeout time.Duration `json:"write-timeout" yaml:"write-timeout" mapstructure:"write-timeout"`

	// ReconnectInterval is how long to wait before retrying a failed
	// connection while records are pending. Zero disables the retry timer, in
	// which case reconnection only happens on the next send.
	ReconnectInterval time.Duration `json:"reconnect-interval" yaml:"reconnect-interval" mapstructure:"reconnect-interval"`

	// Milliseconds selects millisecond time resolution for record times. The
	// default is seconds.
	Milliseconds bool `json:"milliseconds" yaml:"milliseconds" mapstructure:"milliseconds"`

	// MaxQueueSize limits the number of pending records. Zero means the queue
	// is unbounded, which will grow without limit while the server is
	// unreachable.
	MaxQueueSize int `json:"max-queue-size" yaml:"max-queue-size" mapstructure:"max-queue-size"`
}

// Default is the default sender configuration
var Default = &Config{
	Verbose:           false,
	Tag:               "app",
	Host:              "localhost",
	Port:              24224,
	Timeout:           3 * time.Second,
	WriteTimeout:      -1,
	ReconnectInterval: 10 * time.Minute,
	Milliseconds:      false,
	MaxQueueSize:      0,
}

// New returns a copy of the default configuration
func New() *Config {
	c := &Config{}
	*c = *Default
	return c
}

// Copy returns a copy of c
func (c *Config) Copy() *Config {
	conf := &Config{}
	*conf = *c
	return conf
}

func (c *Config) String() string {
	return fmt.Sprintf("%+v", *c)
}

// Validate returns an error pointing to incorrect values for the
// configuration, if any.
func (c *Config) Validate() error {
	if c.Tag == "" {
		return errors.New("tag must not be empty")
	}
	if c.Path == "" {
		if c.Host == "" {
			return errors.New("host must be set when path is empty")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return errors.Errorf("invalid port %d", c.Port)
		}
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if c.ReconnectInterval < 0 {
		return errors.New("reconnect-interval must be >= 0")
	}
	if c.MaxQueueSize < 0 {
		return errors.New("max-queue-size must be >= 0")
	}
	return nil
}

// Network returns the network name used to dial the server.
func (c *Config) Network() string {
	if c.Path != "" {
		return "unix"
	}
	return "tcp"
}

// Addr returns the address used to dial the server.
func (c *Config) Addr() string {
	if c.Path != "" {
		return c.Path
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetWriteTimeout returns the effective write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	if c.WriteTimeout >= 0 {
		return c.WriteTimeout
	}
	return c.Timeout
}

// TimeResolution returns the divisor applied to epoch milliseconds when
// computing record times.
func (c *Config) TimeResolution() int64 {
	if c.Milliseconds {
		return 1
	}
	return 1000
}
