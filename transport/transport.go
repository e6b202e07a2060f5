package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/internal"
	"github.com/jeffrom/fluentlog/protocol"
)

// Handler receives records decoded by a Server.
type Handler interface {
	HandleRecord(r *protocol.Record) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(r *protocol.Record) error

// HandleRecord implements Handler
func (f HandlerFunc) HandleRecord(r *protocol.Record) error {
	return f(r)
}

// ConnHandler can be implemented by a Handler to be notified when
// connections start and finish.
type ConnHandler interface {
	Connected(addr net.Addr)
	Disconnected(addr net.Addr, scanned int, err error)
}

// Server accepts fluentd forward connections and passes each record to a
// Handler. It is used for debugging senders and in tests.
type Server struct {
	conf    *config.Config
	network string
	addr    string
	handler Handler

	mu           sync.Mutex
	ln           net.Listener
	conns        map[net.Conn]bool
	shuttingDown bool
	wg           sync.WaitGroup
}

// NewServer returns a server that will listen on network and addr.
func NewServer(conf *config.Config, network, addr string, h Handler) *Server {
	return &Server{
		conf:    conf,
		network: network,
		addr:    addr,
		handler: h,
		conns:   make(map[net.Conn]bool),
	}
}

// Listen opens the listener without accepting connections.
func (s *Server) Listen() error {
	ln, err := net.Listen(s.network, s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s %s", s.network, s.addr)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	internal.Debugf(s.conf, "listening at %s", ln.Addr())
	return nil
}

// ListenAndServe listens and accepts connections until Stop is called.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// GoServe listens and accepts connections without blocking the current
// goroutine.
func (s *Server) GoServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(); err != nil {
			internal.LogError(errors.Wrap(err, "error serving"))
		}
	}()
	return nil
}

// ListenAddr returns the listen address of the server.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on the listener opened by Listen.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isShuttingDown() {
				return nil
			}
			return errors.Wrap(err, "accept failed")
		}

		if !s.addConn(conn) {
			internal.IgnoreError(s.conf, conn.Close())
			return nil
		}
		internal.Debugf(s.conf, "accept: %s", conn.RemoteAddr())
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.removeConn(conn)

	ch, hasConnHandler := s.handler.(ConnHandler)
	if hasConnHandler {
		ch.Connected(conn.RemoteAddr())
	}

	scanner := protocol.NewScanner(conn)
	var err error
	for scanner.Scan() {
		r := scanner.Record()
		internal.Debugf(s.conf, "%s: read %s", conn.RemoteAddr(), r)
		if err = s.handler.HandleRecord(r); err != nil {
			break
		}
	}
	if err == nil {
		err = scanner.Error()
	}
	if err != nil && !s.isShuttingDown() {
		internal.Debugf(s.conf, "%s: %+v", conn.RemoteAddr(), err)
	}

	internal.IgnoreError(s.conf, conn.Close())
	if hasConnHandler {
		ch.Disconnected(conn.RemoteAddr(), scanner.Scanned(), err)
	}
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

func (s *Server) addConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.conns[conn] = true
	s.wg.Add(1)
	return true
}

func (s *Server) removeConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// DropConns closes all open connections, leaving the listener running.
func (s *Server) DropConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		internal.Debugf(s.conf, "dropping connection from %s", conn.RemoteAddr())
		internal.IgnoreError(s.conf, conn.Close())
	}
}

// Stop closes the listener and all connections, and waits for connection
// handlers to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shuttingDown = true
	ln := s.ln
	for conn := range s.conns {
		internal.IgnoreError(s.conf, conn.Close())
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}
