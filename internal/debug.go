package internal

import (
	"io"
	"log"
)

type writeLogger struct {
	prefix string
	w      io.Writer
}

func (l *writeLogger) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	file, line := getFileLine(1)
	if err != nil {
		log.Printf("%s %s:%d (%d/%d) %q: %v", l.prefix, file, line, n, len(p), Prettybuf(p), err)
	} else {
		log.Printf("%s %s:%d (%d) %q", l.prefix, file, line, n, Prettybuf(p))
	}
	return n, err
}

// NewWriteLogger returns a writer that behaves like w except that it logs
// (using log.Printf) each write, printing the prefix and a truncated copy of
// the data written.
func NewWriteLogger(prefix string, w io.Writer) io.Writer {
	return &writeLogger{prefix: prefix, w: w}
}
