package testhelper

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrRefused is returned by MockDialer for refused dials.
var ErrRefused = errors.New("mock connection refused")

// ErrWriteFailed is returned by connections set up to fail with FailWriteN.
var ErrWriteFailed = errors.New("mock write failed")

// MockDialer dials real connections but can be scripted to refuse dials, to
// block them until released, and to fail writes.
type MockDialer struct {
	mu        sync.Mutex
	dials     int
	refuse    int
	failWrite int
	hold      chan struct{}
}

// NewMockDialer returns a new instance of MockDialer
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// RefuseN refuses the next n dials.
func (d *MockDialer) RefuseN(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuse = n
}

// FailWriteN makes the nth write on the next dialed connection fail.
func (d *MockDialer) FailWriteN(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrite = n
}

// Hold blocks dials until Release is called.
func (d *MockDialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hold == nil {
		d.hold = make(chan struct{})
	}
}

// Release unblocks held dials.
func (d *MockDialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hold != nil {
		close(d.hold)
		d.hold = nil
	}
}

// Dials returns the number of dials started.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// DialTimeout implements client.Dialer
func (d *MockDialer) DialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	hold := d.hold
	d.mu.Unlock()

	if hold != nil {
		<-hold
	}

	d.mu.Lock()
	if d.refuse > 0 {
		d.refuse--
		d.mu.Unlock()
		return nil, ErrRefused
	}
	failWrite := d.failWrite
	d.failWrite = 0
	d.mu.Unlock()

	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	if failWrite > 0 {
		return &failConn{Conn: conn, failAt: failWrite}, nil
	}
	return conn, nil
}

type failConn struct {
	net.Conn
	mu     sync.Mutex
	writes int
	failAt int
}

func (c *failConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	fail := c.writes == c.failAt
	c.mu.Unlock()

	if fail {
		return 0, ErrWriteFailed
	}
	return c.Conn.Write(p)
}
