package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValid(t *testing.T) {
	if err := New().Validate(); err != nil {
		t.Fatalf("default config should be valid: %+v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *Config)
		ok   bool
	}{
		{"empty tag", func(c *Config) { c.Tag = "" }, false},
		{"bad port", func(c *Config) { c.Port = 70000 }, false},
		{"zero port", func(c *Config) { c.Port = 0 }, false},
		{"zero port with path", func(c *Config) { c.Port = 0; c.Path = "/tmp/fluent.sock" }, true},
		{"empty host", func(c *Config) { c.Host = "" }, false},
		{"negative timeout", func(c *Config) { c.Timeout = -1 }, false},
		{"negative reconnect", func(c *Config) { c.ReconnectInterval = -time.Second }, false},
		{"disabled reconnect", func(c *Config) { c.ReconnectInterval = 0 }, true},
		{"negative queue", func(c *Config) { c.MaxQueueSize = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.mod(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid config but got %+v", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("expected error for %s", c)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	c := New()
	if c.Network() != "tcp" || c.Addr() != "localhost:24224" {
		t.Fatalf("expected tcp localhost:24224 but got %s %s", c.Network(), c.Addr())
	}

	c.Path = "/var/run/fluent.sock"
	if c.Network() != "unix" || c.Addr() != c.Path {
		t.Fatalf("expected unix %s but got %s %s", c.Path, c.Network(), c.Addr())
	}
}

func TestTimeouts(t *testing.T) {
	c := New()
	if c.GetWriteTimeout() != c.Timeout {
		t.Fatalf("expected write timeout %s but got %s", c.Timeout, c.GetWriteTimeout())
	}
	c.WriteTimeout = 0
	if c.GetWriteTimeout() != 0 {
		t.Fatalf("expected no write timeout but got %s", c.GetWriteTimeout())
	}

	if c.TimeResolution() != 1000 {
		t.Fatalf("expected second resolution but got %d", c.TimeResolution())
	}
	c.Milliseconds = true
	if c.TimeResolution() != 1 {
		t.Fatalf("expected millisecond resolution but got %d", c.TimeResolution())
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(NewViper())
	if err != nil {
		t.Fatal(err)
	}
	if *c != *Default {
		t.Fatalf("expected:\n\n\t%s\n\nbut got:\n\n\t%s", Default, c)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fluent.yml")
	conf := []byte("tag: orders\nport: 24225\ntimeout: 5s\nreconnect-interval: 0s\nmilliseconds: true\n")
	if err := os.WriteFile(path, conf, 0644); err != nil {
		t.Fatal(err)
	}

	v := NewViper()
	v.Set(FileKey, path)
	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}

	if c.Tag != "orders" || c.Port != 24225 || c.Timeout != 5*time.Second {
		t.Fatalf("file values not loaded: %s", c)
	}
	if c.ReconnectInterval != 0 || !c.Milliseconds {
		t.Fatalf("file values not loaded: %s", c)
	}
	if c.Host != Default.Host {
		t.Fatalf("expected default host %q but got %q", Default.Host, c.Host)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("FLUENT_HOST", "fluentd.internal")
	t.Setenv("FLUENT_MAX_QUEUE_SIZE", "100")

	c, err := Load(NewViper())
	if err != nil {
		t.Fatal(err)
	}
	if c.Host != "fluentd.internal" {
		t.Fatalf("expected host from env but got %q", c.Host)
	}
	if c.MaxQueueSize != 100 {
		t.Fatalf("expected max queue size from env but got %d", c.MaxQueueSize)
	}
}

func TestLoadInvalid(t *testing.T) {
	v := NewViper()
	v.Set("port", -1)
	if _, err := Load(v); err == nil {
		t.Fatal("expected an error for an invalid port")
	}

	v = NewViper()
	v.Set(FileKey, filepath.Join(t.TempDir(), "missing.yml"))
	if _, err := Load(v); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestWriteYAML(t *testing.T) {
	c := New()
	c.Tag = "billing"
	c.Path = "/tmp/fluent.sock"

	b := &bytes.Buffer{}
	if err := c.WriteYAML(b); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.yml")
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	v := NewViper()
	v.Set(FileKey, path)
	loaded, err := Load(v)
	if err != nil {
		t.Fatalf("reading back %q: %+v", b.Bytes(), err)
	}
	if *loaded != *c {
		t.Fatalf("expected:\n\n\t%s\n\nbut got:\n\n\t%s", c, loaded)
	}
}
