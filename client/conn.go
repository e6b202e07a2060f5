package client

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/internal"
)

// Dialer defines an interface for connecting to servers. It can be used for
// mocking in tests.
type Dialer interface {
	DialTimeout(network, addr string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (nd *netDialer) DialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, addr, timeout)
}

// ConnState is the state of a Sender's connection.
type ConnState uint32

const (
	_ ConnState = iota

	// StateAbsent means there is no connection.
	StateAbsent
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means the connection is established and writable.
	StateConnected
	// StateBroken means the connection failed and will be replaced on the
	// next send.
	StateBroken
)

func (s ConnState) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateBroken:
		return "BROKEN"
	case 0:
		return "UNINITIALIZED"
	default:
		return "INVALID"
	}
}

type closeWriter interface {
	CloseWrite() error
}

// connManager owns the single connection to the server. Everything except
// getState is called from the sender goroutine.
type connManager struct {
	conf    *config.Config
	dialer  Dialer
	metrics *Metrics

	state uint32
	conn  net.Conn
	w     io.Writer
	gen   uint64

	// brokenC receives the generation of connections whose reader saw EOF
	// or an error.
	brokenC chan uint64
	done    chan struct{}
}

func newConnManager(conf *config.Config, done chan struct{}) *connManager {
	return &connManager{
		conf:    conf,
		dialer:  &netDialer{},
		state:   uint32(StateAbsent),
		brokenC: make(chan uint64, 1),
		done:    done,
	}
}

func (c *connManager) getState() ConnState {
	return ConnState(atomic.LoadUint32(&c.state))
}

func (c *connManager) setState(s ConnState) {
	prev := ConnState(atomic.SwapUint32(&c.state, uint32(s)))
	if prev != s {
		internal.DebugfDepth(c.conf, 1, "connection %s -> %s", prev, s)
	}
}

func (c *connManager) writable() bool {
	return c.conn != nil && c.getState() == StateConnected
}

// ensureConnected dials the server unless a writable connection exists. A
// broken connection is discarded first.
func (c *connManager) ensureConnected() error {
	switch c.getState() {
	case StateConnected:
		return nil
	case StateBroken:
		internal.Debugf(c.conf, "discarding broken connection to %s", c.conf.Addr())
		c.discard()
	}

	network, addr := c.conf.Network(), c.conf.Addr()
	c.setState(StateConnecting)
	internal.Debugf(c.conf, "connecting to %s %s", network, addr)
	conn, err := c.dialer.DialTimeout(network, addr, c.conf.Timeout)
	if err != nil {
		if conn != nil {
			internal.IgnoreError(c.conf, conn.Close())
		}
		c.setState(StateAbsent)
		c.metrics.connectFailed()
		return &ConnectionError{Network: network, Addr: addr, Err: err}
	}

	c.gen++
	c.conn = conn
	c.w = conn
	if c.conf.Verbose {
		c.w = internal.NewWriteLogger("->", conn)
	}
	c.setState(StateConnected)
	c.metrics.connected()

	go c.watch(conn, c.gen)
	return nil
}

// watch reads from conn until it fails. fluentd only writes to the socket to
// acknowledge chunks, which are never requested, so any read result means the
// connection is gone.
func (c *connManager) watch(conn net.Conn, gen uint64) {
	n, err := io.Copy(io.Discard, conn)
	internal.Debugf(c.conf, "connection %d reader stopped after %d bytes (err: %v)", gen, n, err)

	select {
	case c.brokenC <- gen:
	case <-c.done:
	}
}

// markBroken handles a reader notification. Notifications for replaced
// connections are ignored.
func (c *connManager) markBroken(gen uint64) {
	if gen != c.gen || c.conn == nil {
		internal.Debugf(c.conf, "ignoring stale notification for connection %d (current: %d)", gen, c.gen)
		return
	}
	c.setState(StateBroken)
}

func (c *connManager) write(p []byte) error {
	if timeout := c.conf.GetWriteTimeout(); timeout > 0 {
		internal.IgnoreError(c.conf, c.conn.SetWriteDeadline(time.Now().Add(timeout)))
		defer func() {
			internal.IgnoreError(c.conf, c.conn.SetWriteDeadline(time.Time{}))
		}()
	}

	if _, err := c.w.Write(p); err != nil {
		c.setState(StateBroken)
		return err
	}
	return nil
}

// close half-closes the connection, so the server reads everything written
// so far, then closes it. It is a no-op when there is no connection.
func (c *connManager) close() error {
	conn := c.conn
	if conn == nil {
		c.setState(StateAbsent)
		return nil
	}
	c.reset()

	if cw, ok := conn.(closeWriter); ok {
		internal.IgnoreError(c.conf, cw.CloseWrite())
	}
	internal.Debugf(c.conf, "closing connection to %s", c.conf.Addr())
	return conn.Close()
}

func (c *connManager) discard() {
	conn := c.conn
	if conn == nil {
		c.setState(StateAbsent)
		return
	}
	c.reset()
	internal.IgnoreError(c.conf, conn.Close())
}

func (c *connManager) reset() {
	c.conn = nil
	c.w = nil
	// invalidates notifications from the old reader
	c.gen++
	c.setState(StateAbsent)
}
