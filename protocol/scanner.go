package protocol

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Scanner reads records written back to back on a stream. Its API is similar
// to bufio.Scanner.
type Scanner struct {
	dec    *msgpack.Decoder
	record *Record
	err    error
	n      int
}

// NewScanner returns a new Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)
	return &Scanner{dec: dec}
}

// Scan advances to the next record. It returns false at the end of the
// stream or on the first error. nil values between records are heartbeats
// and are skipped.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}

	for {
		code, err := s.dec.PeekCode()
		if err != nil {
			s.err = err
			return false
		}
		if code != msgpcode.Nil {
			break
		}
		if err := s.dec.DecodeNil(); err != nil {
			s.err = err
			return false
		}
	}

	r, err := ReadRecord(s.dec)
	if err != nil {
		s.err = err
		return false
	}
	s.record = r
	s.n++
	return true
}

// Record returns the most recently scanned record.
func (s *Scanner) Record() *Record {
	return s.record
}

// Scanned returns the number of records read so far.
func (s *Scanner) Scanned() int {
	return s.n
}

// Error returns the first error encountered, if any. Reaching the end of the
// stream is not an error.
func (s *Scanner) Error() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
