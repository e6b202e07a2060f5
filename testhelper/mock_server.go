package testhelper

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/protocol"
	"github.com/jeffrom/fluentlog/transport"
)

// MockServer is a fluent forward input listening on a real loopback socket.
// It records everything it reads.
type MockServer struct {
	conf *config.Config
	srv  *transport.Server
	rec  *recorder
	path string
}

type recorder struct {
	mu       sync.Mutex
	records  []*protocol.Record
	accepted int
	closed   int
}

func (r *recorder) HandleRecord(rec *protocol.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recorder) Connected(addr net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted++
}

func (r *recorder) Disconnected(addr net.Addr, scanned int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

// NewMockServer starts a MockServer on a random tcp port. It is stopped when
// the test finishes.
func NewMockServer(t testing.TB, conf *config.Config) *MockServer {
	t.Helper()
	return startMockServer(t, conf, "tcp", "127.0.0.1:0", "")
}

// NewMockUnixServer starts a MockServer on a unix socket in a temporary
// directory.
func NewMockUnixServer(t testing.TB, conf *config.Config) *MockServer {
	t.Helper()
	// t.TempDir can exceed the unix socket path limit
	dir, err := os.MkdirTemp("", "fluentlog")
	if err != nil {
		t.Fatalf("failed to create socket dir: %+v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "fluent.sock")
	return startMockServer(t, conf, "unix", path, path)
}

func startMockServer(t testing.TB, conf *config.Config, network, addr, path string) *MockServer {
	t.Helper()
	rec := &recorder{}
	s := &MockServer{
		conf: conf,
		srv:  transport.NewServer(conf, network, addr, rec),
		rec:  rec,
		path: path,
	}
	if err := s.srv.GoServe(); err != nil {
		t.Fatalf("failed to start mock server: %+v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Addr returns the listen address.
func (s *MockServer) Addr() net.Addr {
	return s.srv.ListenAddr()
}

// Config returns a copy of conf pointing at the server.
func (s *MockServer) Config(conf *config.Config) *config.Config {
	conf = conf.Copy()
	if s.path != "" {
		conf.Path = s.path
		return conf
	}

	addr := s.Addr().(*net.TCPAddr)
	conf.Path = ""
	conf.Host = addr.IP.String()
	conf.Port = addr.Port
	return conf
}

// Records returns the records read so far.
func (s *MockServer) Records() []*protocol.Record {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	records := make([]*protocol.Record, len(s.rec.records))
	copy(records, s.rec.records)
	return records
}

// Accepted returns the number of connections accepted.
func (s *MockServer) Accepted() int {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	return s.rec.accepted
}

// Disconnects returns the number of connections that have finished.
func (s *MockServer) Disconnects() int {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	return s.rec.closed
}

// WaitRecords waits until at least n records have been read.
func (s *MockServer) WaitRecords(n int, timeout time.Duration) ([]*protocol.Record, error) {
	var records []*protocol.Record
	err := Poll(timeout, func() bool {
		records = s.Records()
		return len(records) >= n
	})
	if err != nil {
		return records, errors.Errorf("expected %d records but got %d", n, len(records))
	}
	return records, nil
}

// WaitDisconnects waits until at least n connections have finished.
func (s *MockServer) WaitDisconnects(n int, timeout time.Duration) error {
	if err := Poll(timeout, func() bool { return s.Disconnects() >= n }); err != nil {
		return errors.Errorf("expected %d disconnects but got %d", n, s.Disconnects())
	}
	return nil
}

// DropConns closes all client connections.
func (s *MockServer) DropConns() {
	s.srv.DropConns()
}

// Close stops the server.
func (s *MockServer) Close() error {
	return s.srv.Stop()
}

// Poll calls fn until it returns true or the timeout expires.
func Poll(timeout time.Duration, fn func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if fn() {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("timed out after %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
