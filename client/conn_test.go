package client

import (
	stderrors "errors"
	"testing"

	"github.com/jeffrom/fluentlog/protocol"
	"github.com/jeffrom/fluentlog/testhelper"
)

func newTestConnManager(t *testing.T, d Dialer) (*connManager, *testhelper.MockServer) {
	t.Helper()
	conf := testhelper.DefaultTestConfig(testing.Verbose())
	server := testhelper.NewMockServer(t, conf)

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	c := newConnManager(server.Config(conf), done)
	if d != nil {
		c.dialer = d
	}
	return c, server
}

func TestConnStateString(t *testing.T) {
	tests := []struct {
		state    ConnState
		expected string
	}{
		{0, "UNINITIALIZED"},
		{StateAbsent, "ABSENT"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateBroken, "BROKEN"},
		{ConnState(100), "INVALID"},
	}

	for _, tt := range tests {
		if s := tt.state.String(); s != tt.expected {
			t.Fatalf("expected %q but got %q", tt.expected, s)
		}
	}
}

func TestConnManagerLifecycle(t *testing.T) {
	c, server := newTestConnManager(t, nil)
	if st := c.getState(); st != StateAbsent {
		t.Fatalf("expected state %s but got %s", StateAbsent, st)
	}

	if err := c.ensureConnected(); err != nil {
		t.Fatalf("connect failed: %+v", err)
	}
	if !c.writable() {
		t.Fatalf("expected writable connection, state: %s", c.getState())
	}
	conn := c.conn
	if err := c.ensureConnected(); err != nil {
		t.Fatalf("second connect failed: %+v", err)
	}
	if c.conn != conn {
		t.Fatal("expected connected manager to keep its connection")
	}

	_, b, err := protocol.NewEncoder("test", protocol.Milliseconds).Encode("conn", "hi", 1)
	if err != nil {
		t.Fatalf("encode failed: %+v", err)
	}
	if err := c.write(b); err != nil {
		t.Fatalf("write failed: %+v", err)
	}
	if _, err := server.WaitRecords(1, waitTimeout); err != nil {
		t.Fatalf("%+v", err)
	}

	if err := c.close(); err != nil {
		t.Fatalf("close failed: %+v", err)
	}
	if st := c.getState(); st != StateAbsent {
		t.Fatalf("expected state %s but got %s", StateAbsent, st)
	}
	if err := c.close(); err != nil {
		t.Fatalf("second close failed: %+v", err)
	}
	if err := server.WaitDisconnects(1, waitTimeout); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestConnManagerRefused(t *testing.T) {
	d := testhelper.NewMockDialer()
	d.RefuseN(1)
	c, _ := newTestConnManager(t, d)

	err := c.ensureConnected()
	var cerr *ConnectionError
	if !stderrors.As(err, &cerr) {
		t.Fatalf("expected *ConnectionError but got %#v", err)
	}
	if cerr.Network != "tcp" || cerr.Addr != c.conf.Addr() {
		t.Fatalf("unexpected connection error fields: %+v", cerr)
	}
	if !stderrors.Is(err, testhelper.ErrRefused) {
		t.Fatalf("expected error to wrap ErrRefused but got %v", err)
	}
	if st := c.getState(); st != StateAbsent {
		t.Fatalf("expected state %s but got %s", StateAbsent, st)
	}

	if err := c.ensureConnected(); err != nil {
		t.Fatalf("connect failed: %+v", err)
	}
	c.close()
}

func TestConnManagerStaleNotification(t *testing.T) {
	c, _ := newTestConnManager(t, nil)
	if err := c.ensureConnected(); err != nil {
		t.Fatalf("connect failed: %+v", err)
	}
	defer c.close()

	c.markBroken(c.gen - 1)
	if st := c.getState(); st != StateConnected {
		t.Fatalf("expected stale notification to be ignored, state: %s", st)
	}

	c.markBroken(c.gen)
	if st := c.getState(); st != StateBroken {
		t.Fatalf("expected state %s but got %s", StateBroken, st)
	}
	if c.writable() {
		t.Fatal("expected broken connection not to be writable")
	}

	gen := c.gen
	if err := c.ensureConnected(); err != nil {
		t.Fatalf("reconnect failed: %+v", err)
	}
	if c.gen <= gen {
		t.Fatalf("expected new generation after reconnect, was %d, now %d", gen, c.gen)
	}
	if st := c.getState(); st != StateConnected {
		t.Fatalf("expected state %s but got %s", StateConnected, st)
	}
}
