package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jeffrom/fluentlog/config"
	"github.com/jeffrom/fluentlog/internal"
	"github.com/jeffrom/fluentlog/protocol"
)

// queueWarnInterval controls how often a growing queue is logged.
const queueWarnInterval = 10000

// Sender writes records to a fluentd forward input. Emit encodes and queues a
// record without blocking; a single goroutine owns the connection, writing
// queued records in order and reconnecting as needed.
//
// Callbacks are called from the sender goroutine, so they must not block on
// the Sender, ie by calling Flush or Close.
type Sender struct {
	conf    *config.Config
	enc     *protocol.Encoder
	conn    *connManager
	q       *queue
	metrics *Metrics

	mu       sync.Mutex
	closed   bool
	ends     []func(error)
	flushers []chan struct{}

	kickC     chan struct{}
	stopC     chan struct{}
	doneC     chan struct{}
	closeOnce sync.Once
	closeErr  error

	// owned by the sender goroutine
	timer        *time.Timer
	timerStarted bool
}

// New returns a Sender for conf. No connection is made until the first
// record is emitted.
func New(conf *config.Config) (*Sender, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	conf = conf.Copy()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	doneC := make(chan struct{})
	s := &Sender{
		conf:  conf,
		enc:   protocol.NewEncoder(conf.Tag, conf.TimeResolution()),
		conn:  newConnManager(conf, doneC),
		q:     newQueue(conf.MaxQueueSize),
		kickC: make(chan struct{}, 1),
		stopC: make(chan struct{}),
		doneC: doneC,
		timer: timer,
	}
	internal.Debugf(conf, "starting options: %s", conf)

	go s.loop()
	return s, nil
}

// WithDialer sets the dialer used to connect. It should be called as part of
// initialization.
func (s *Sender) WithDialer(d Dialer) *Sender {
	s.conn.dialer = d
	return s
}

// WithMetrics sets the metrics collector. It should be called as part of
// initialization.
func (s *Sender) WithMetrics(m *Metrics) *Sender {
	s.metrics = m
	s.conn.metrics = m
	return s
}

// WithClock sets the function used for record times. It should be called as
// part of initialization.
func (s *Sender) WithClock(now func() time.Time) *Sender {
	s.enc.WithClock(now)
	return s
}

// Emit queues a record for label with the current time.
func (s *Sender) Emit(label string, payload interface{}) error {
	return s.EmitCallback(label, nil, payload, nil)
}

// EmitWithTime queues a record for label. ts may be a time.Time, a
// *time.Time, a number, which is used as the record time unchanged, or nil
// for the current time.
func (s *Sender) EmitWithTime(label string, ts interface{}, payload interface{}) error {
	return s.EmitCallback(label, ts, payload, nil)
}

// EmitCallback queues a record for label, calling cb once the record has been
// written, or failed to write. Encoding errors, ErrQueueFull and ErrClosed are
// returned directly and cb is not called.
func (s *Sender) EmitCallback(label string, ts interface{}, payload interface{}, cb func(error)) error {
	rec, b, err := s.enc.Encode(label, payload, ts)
	if err != nil {
		s.metrics.encodeFailed()
		return err
	}

	n, err := s.q.push(&entry{record: rec, data: b, cb: cb})
	if err != nil {
		return err
	}
	s.metrics.setQueueLength(n)
	internal.Debugf(s.conf, "queued %s (%d pending)", rec, n)
	if n%queueWarnInterval == 0 {
		internal.Logf("%d records pending for %s", n, s.conf.Addr())
	}

	s.kick()
	return nil
}

// End closes the connection. If payload is not nil, a final record is emitted
// first and the connection is closed once it has been written. cb, if not
// nil, is called after the connection is closed. End returns before the
// connection is closed. Records emitted after End open a new connection.
func (s *Sender) End(label string, payload interface{}, cb func(error)) error {
	if payload != nil {
		return s.EmitCallback(label, nil, payload, func(err error) {
			cerr := s.conn.close()
			if err == nil {
				err = cerr
			}
			if cb != nil {
				cb(err)
			}
		})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.ends = append(s.ends, cb)
	s.mu.Unlock()

	s.kick()
	return nil
}

// Flush blocks until all queued records have been written or ctx is done.
func (s *Sender) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.flushers = append(s.flushers, ch)
	s.mu.Unlock()

	s.kick()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneC:
		return ErrClosed
	}
}

// Close makes one more attempt to write pending records, closes the
// connection and stops the sender goroutine. Records still pending fail with
// ErrClosed.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		internal.Debugf(s.conf, "closing sender")
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopC)
	})

	<-s.doneC
	return s.closeErr
}

// State returns the current connection state.
func (s *Sender) State() ConnState {
	return s.conn.getState()
}

// Len returns the number of pending records.
func (s *Sender) Len() int {
	return s.q.len()
}

func (s *Sender) kick() {
	select {
	case s.kickC <- struct{}{}:
	default:
	}
}

func (s *Sender) loop() {
	defer close(s.doneC)

	for {
		select {
		case <-s.kickC:
			s.handleKick()

		case gen := <-s.conn.brokenC:
			internal.Debugf(s.conf, "<-brokenC %d", gen)
			s.conn.markBroken(gen)
			if s.q.len() > 0 {
				s.scheduleReconnect()
			}

		case <-s.timer.C:
			internal.Debugf(s.conf, "<-timer.C %s", s.conn.getState())
			s.timerStarted = false
			s.handleKick()

		case <-s.stopC:
			internal.Debugf(s.conf, "<-stopC")
			s.shutdown()
			return
		}
	}
}

func (s *Sender) handleKick() {
	if s.q.len() > 0 {
		s.send()
	}
	s.handleEnds()
	s.notifyFlushers()
}

func (s *Sender) send() {
	if err := s.conn.ensureConnected(); err != nil {
		internal.Debugf(s.conf, "%+v (%d records pending)", err, s.q.len())
		s.scheduleReconnect()
		return
	}
	s.stopTimer()
	s.drain()
}

// drain writes queued records while the connection is writable. A failed
// write stops the pass; the failed record's callback gets a *WriteError and
// the records behind it stay queued.
func (s *Sender) drain() {
	for s.conn.writable() {
		e := s.q.pop()
		if e == nil {
			break
		}

		err := s.conn.write(e.data)
		if err != nil {
			internal.Debugf(s.conf, "write %s failed: %+v", e.record, err)
			s.metrics.writeFailed()
			err = &WriteError{Record: e.record, Err: err}
		} else {
			s.metrics.recordWritten()
		}
		e.complete(err)
	}

	n := s.q.len()
	s.metrics.setQueueLength(n)
	if n > 0 {
		state := s.conn.getState()
		internal.Debugf(s.conf, "drain stopped with %d records pending (%s)", n, state)
		switch state {
		case StateAbsent, StateBroken:
			// closed by an End callback, or a write failed and dropped its
			// record. Either way the rest get one immediate reconnect; a failed
			// dial falls back to the reconnect timer.
			s.kick()
		default:
			s.scheduleReconnect()
		}
	}
}

func (s *Sender) handleEnds() {
	s.mu.Lock()
	ends := s.ends
	s.ends = nil
	s.mu.Unlock()

	for _, cb := range ends {
		err := s.conn.close()
		if cb != nil {
			cb(err)
		}
	}
}

func (s *Sender) notifyFlushers() {
	if s.q.len() > 0 {
		return
	}

	s.mu.Lock()
	flushers := s.flushers
	s.flushers = nil
	s.mu.Unlock()

	for _, ch := range flushers {
		close(ch)
	}
}

func (s *Sender) shutdown() {
	s.stopTimer()
	if s.q.len() > 0 {
		s.send()
	}
	s.closeErr = s.conn.close()

	s.mu.Lock()
	ends := s.ends
	s.ends = nil
	s.mu.Unlock()
	for _, cb := range ends {
		if cb != nil {
			cb(s.closeErr)
		}
	}

	rest := s.q.close()
	if len(rest) > 0 {
		internal.Logf("dropping %d records pending for %s", len(rest), s.conf.Addr())
	}
	for _, e := range rest {
		e.complete(ErrClosed)
	}
	s.metrics.setQueueLength(0)
}

// scheduleReconnect arms the reconnect timer unless it is disabled or
// already armed.
func (s *Sender) scheduleReconnect() {
	if s.conf.ReconnectInterval <= 0 || s.timerStarted {
		return
	}
	internal.Debugf(s.conf, "trying again in %s", s.conf.ReconnectInterval)
	s.timer.Reset(s.conf.ReconnectInterval)
	s.timerStarted = true
}

func (s *Sender) stopTimer() {
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timerStarted = false
}
