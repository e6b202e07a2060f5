package client

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/jeffrom/fluentlog/protocol"
)

// ErrClosed is returned when emitting to a closed Sender.
var ErrClosed = errors.New("sender is closed")

// ErrQueueFull is returned when MaxQueueSize records are already pending.
var ErrQueueFull = errors.New("send queue is full")

// ConnectionError is returned when connecting to the server fails.
type ConnectionError struct {
	Network string
	Addr    string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s %s: %v", e.Network, e.Addr, e.Err)
}

// Cause implements the causer interface from github.com/pkg/errors
func (e *ConnectionError) Cause() error { return e.Err }

// Unwrap returns the underlying error
func (e *ConnectionError) Unwrap() error { return e.Err }

// WriteError is passed to a record's callback when writing it to the server
// failed. The record is not retried.
type WriteError struct {
	Record *protocol.Record
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Record.Tag, e.Err)
}

// Cause implements the causer interface from github.com/pkg/errors
func (e *WriteError) Cause() error { return e.Err }

// Unwrap returns the underlying error
func (e *WriteError) Unwrap() error { return e.Err }
