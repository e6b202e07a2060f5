package internal

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jeffrom/fluentlog/config"
)

func TestPrettybuf(t *testing.T) {
	short := []byte("hi")
	if b := Prettybuf(short, short); !bytes.Equal(b, []byte("hihi")) {
		t.Fatalf("expected %q but got %q", "hihi", b)
	}

	long := bytes.Repeat([]byte("a"), 200)
	b := Prettybuf(long)
	if len(b) != 100 {
		t.Fatalf("expected 100 bytes but got %d", len(b))
	}
	if !bytes.Contains(b, []byte("...")) {
		t.Fatalf("expected truncation marker in %q", b)
	}
}

type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestWriteLogger(t *testing.T) {
	b := &bytes.Buffer{}
	w := NewWriteLogger("test", b)
	n, err := w.Write([]byte("hallo"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || b.String() != "hallo" {
		t.Fatalf("expected passthrough write but got %d %q", n, b.String())
	}

	w = NewWriteLogger("test", errWriter{})
	if _, err := w.Write([]byte("hallo")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected %v but got %v", io.ErrClosedPipe, err)
	}
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	b := &bytes.Buffer{}
	prev := output
	output = b
	t.Cleanup(func() { output = prev })
	return b
}

func TestLogf(t *testing.T) {
	b := captureOutput(t)
	Logf("%d records pending", 3)
	s := b.String()
	if !strings.Contains(s, "log_test.go:") || !strings.HasSuffix(s, "3 records pending\n") {
		t.Fatalf("unexpected log line: %q", s)
	}
}

func TestLogError(t *testing.T) {
	b := captureOutput(t)
	LogError(nil)
	if b.Len() != 0 {
		t.Fatalf("expected nothing logged for nil error but got %q", b.String())
	}

	LogError(errors.New("boom"))
	if s := b.String(); !strings.Contains(s, "error: boom") {
		t.Fatalf("unexpected log line: %q", s)
	}
}

func TestDebugfVerbose(t *testing.T) {
	b := captureOutput(t)
	conf := config.New()
	Debugf(nil, "nil config")
	Debugf(conf, "quiet")
	IgnoreError(conf, errors.New("quiet"))
	if b.Len() != 0 {
		t.Fatalf("expected nothing logged when not verbose but got %q", b.String())
	}

	conf.Verbose = true
	Debugf(conf, "loud %d", 1)
	IgnoreError(conf, errors.New("dropped"))
	s := b.String()
	if !strings.Contains(s, "loud 1\n") || !strings.Contains(s, "error ignored: dropped") {
		t.Fatalf("unexpected log output: %q", s)
	}
}
