package protocol

import (
	"bytes"
	"fmt"
	"testing"
)

func TestScannerBackToBack(t *testing.T) {
	enc := NewEncoder("app", Milliseconds)
	b := &bytes.Buffer{}
	for i := 0; i < 10; i++ {
		_, p, err := enc.Encode("seq", map[string]interface{}{"n": i}, int64(i))
		if err != nil {
			t.Fatal(err)
		}
		b.Write(p)
		if i == 4 {
			b.WriteByte(0xc0) // heartbeat
		}
	}

	s := NewScanner(b)
	for i := 0; i < 10; i++ {
		if !s.Scan() {
			t.Fatalf("scan %d failed: %+v", i, s.Error())
		}
		r := s.Record()
		if r.Tag != "app.seq" || r.Time != float64(i) {
			t.Fatalf("unexpected record %d: %s", i, r)
		}
		if n := r.Payload.(map[string]interface{})["n"]; fmt.Sprint(n) != fmt.Sprint(i) {
			t.Fatalf("expected n=%d but got %v", i, n)
		}
	}

	if s.Scan() {
		t.Fatalf("expected end of stream but got %s", s.Record())
	}
	if err := s.Error(); err != nil {
		t.Fatalf("expected no error at end of stream but got %+v", err)
	}
	if s.Scanned() != 10 {
		t.Fatalf("expected 10 scanned records but got %d", s.Scanned())
	}
}

func TestScannerError(t *testing.T) {
	s := NewScanner(bytes.NewReader([]byte{0x92, 0xa1, 'x', 0x01}))
	if s.Scan() {
		t.Fatal("expected scan to fail")
	}
	if s.Error() == nil {
		t.Fatal("expected an error")
	}
	if s.Scan() {
		t.Fatal("expected scan to keep failing")
	}
}
