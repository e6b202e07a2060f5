package fluentlog

import (
	"testing"

	"github.com/jeffrom/fluentlog/client"
	"github.com/jeffrom/fluentlog/config"
)

func TestNew(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if st := s.State(); st != client.StateAbsent {
		t.Fatalf("expected no connection before the first emit, got %s", st)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %+v", err)
	}
}

func TestNewInvalid(t *testing.T) {
	conf := config.New()
	conf.Port = -1
	if _, err := New(conf); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
