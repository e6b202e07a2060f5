package config

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment variable names, ie FLUENT_HOST.
const EnvPrefix = "FLUENT"

// FileKey is the viper key holding the path of a configuration file.
const FileKey = "config"

// NewViper returns a viper instance with defaults and environment lookup set
// up for all configuration keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("verbose", Default.Verbose)
	v.SetDefault("tag", Default.Tag)
	v.SetDefault("host", Default.Host)
	v.SetDefault("port", Default.Port)
	v.SetDefault("path", Default.Path)
	v.SetDefault("timeout", Default.Timeout)
	v.SetDefault("write-timeout", Default.WriteTimeout)
	v.SetDefault("reconnect-interval", Default.ReconnectInterval)
	v.SetDefault("milliseconds", Default.Milliseconds)
	v.SetDefault("max-queue-size", Default.MaxQueueSize)
	return v
}

// AddFlags registers configuration flags on fs, defaulting to the values in
// Default.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP(FileKey, "c", "", "Load configuration from `FILE`")
	fs.BoolP("verbose", "v", Default.Verbose, "print debug output")
	fs.StringP("tag", "t", Default.Tag, "base `TAG` for records")
	fs.String("host", Default.Host, "fluentd forward `HOST`")
	fs.IntP("port", "p", Default.Port, "fluentd forward `PORT`")
	fs.String("path", Default.Path, "unix socket `PATH`, overrides host and port")
	fs.Duration("timeout", Default.Timeout, "connect and write `TIMEOUT`")
	fs.Duration("write-timeout", Default.WriteTimeout, "write `TIMEOUT`, uses --timeout if negative")
	fs.Duration("reconnect-interval", Default.ReconnectInterval, "`INTERVAL` between reconnect attempts, 0 disables")
	fs.Bool("milliseconds", Default.Milliseconds, "use millisecond time resolution")
	fs.Int("max-queue-size", Default.MaxQueueSize, "maximum pending `RECORDS`, 0 is unbounded")
}

// Load builds a Config from v. If a configuration file is set it is read
// first; flags and environment variables take precedence over it.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString(FileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	c := &Config{
		Verbose:           v.GetBool("verbose"),
		Tag:               v.GetString("tag"),
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		Path:              v.GetString("path"),
		Timeout:           v.GetDuration("timeout"),
		WriteTimeout:      v.GetDuration("write-timeout"),
		ReconnectInterval: v.GetDuration("reconnect-interval"),
		Milliseconds:      v.GetBool("milliseconds"),
		MaxQueueSize:      v.GetInt("max-queue-size"),
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return c, nil
}

// fileConfig is the yaml representation of Config. Durations are rendered as
// strings so the output can be read back by Load.
type fileConfig struct {
	Verbose           bool   `yaml:"verbose"`
	Tag               string `yaml:"tag"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Path              string `yaml:"path,omitempty"`
	Timeout           string `yaml:"timeout"`
	WriteTimeout      string `yaml:"write-timeout"`
	ReconnectInterval string `yaml:"reconnect-interval"`
	Milliseconds      bool   `yaml:"milliseconds"`
	MaxQueueSize      int    `yaml:"max-queue-size"`
}

// WriteYAML writes the configuration to w as yaml.
func (c *Config) WriteYAML(w io.Writer) error {
	fc := fileConfig{
		Verbose:           c.Verbose,
		Tag:               c.Tag,
		Host:              c.Host,
		Port:              c.Port,
		Path:              c.Path,
		Timeout:           c.Timeout.String(),
		WriteTimeout:      c.WriteTimeout.String(),
		ReconnectInterval: c.ReconnectInterval.String(),
		Milliseconds:      c.Milliseconds,
		MaxQueueSize:      c.MaxQueueSize,
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&fc); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return enc.Close()
}
