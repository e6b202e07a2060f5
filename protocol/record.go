package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// ErrInvalidRecord is returned when decoded data is not a [tag, time, record]
// array.
var ErrInvalidRecord = errors.New("invalid record")

// eventTimeExt is the fluentd EventTime extension type.
const eventTimeExt int8 = 0

// maxExactFloat is the largest integer a float64 holds without losing
// precision.
const maxExactFloat = 1 << 53

// EncodingError is returned when a record can't be serialized.
type EncodingError struct {
	Tag string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode record for %q: %v", e.Tag, e.Err)
}

// Cause implements the causer interface from github.com/pkg/errors
func (e *EncodingError) Cause() error { return e.Err }

// Unwrap returns the underlying error
func (e *EncodingError) Unwrap() error { return e.Err }

// Record is a single fluentd forward protocol message: a tag, a numeric time
// and a payload.
type Record struct {
	Tag     string
	Time    float64
	Payload interface{}
}

func (r *Record) String() string {
	return fmt.Sprintf("%s %s %v", r.Tag, formatTime(r.Time), r.Payload)
}

func formatTime(t float64) string {
	if isIntegral(t) {
		return fmt.Sprintf("%d", int64(t))
	}
	return fmt.Sprintf("%f", t)
}

func isIntegral(t float64) bool {
	return t == math.Trunc(t) && math.Abs(t) < maxExactFloat
}

// EncodeMsgpack implements msgpack.CustomEncoder. Integral times are written
// as integers, fractional times as float64.
func (r *Record) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString(r.Tag); err != nil {
		return err
	}

	var err error
	if isIntegral(r.Time) {
		err = enc.EncodeInt(int64(r.Time))
	} else {
		err = enc.EncodeFloat64(r.Time)
	}
	if err != nil {
		return err
	}

	return enc.Encode(r.Payload)
}

// DecodeMsgpack implements msgpack.CustomDecoder. It accepts message mode
// entries, with or without a trailing option map, and fluentd EventTime
// timestamps, which are converted to fractional seconds.
func (r *Record) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 3 && n != 4 {
		return errors.Wrapf(ErrInvalidRecord, "expected 3 or 4 elements, got %d", n)
	}

	r.Tag, err = dec.DecodeString()
	if err != nil {
		return errors.Wrap(err, "failed to decode tag")
	}

	r.Time, err = decodeTime(dec)
	if err != nil {
		return err
	}

	r.Payload, err = dec.DecodeInterfaceLoose()
	if err != nil {
		return errors.Wrap(err, "failed to decode payload")
	}

	if n == 4 {
		if err := dec.Skip(); err != nil {
			return errors.Wrap(err, "failed to skip options")
		}
	}
	return nil
}

func decodeTime(dec *msgpack.Decoder) (float64, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return 0, err
	}

	if msgpcode.IsExt(code) {
		id, size, err := dec.DecodeExtHeader()
		if err != nil {
			return 0, err
		}
		if id != eventTimeExt || size != 8 {
			return 0, errors.Wrapf(ErrInvalidRecord, "unknown time extension %d (%d bytes)", id, size)
		}
		b := make([]byte, size)
		if err := dec.ReadFull(b); err != nil {
			return 0, err
		}
		sec := binary.BigEndian.Uint32(b)
		nsec := binary.BigEndian.Uint32(b[4:])
		return float64(sec) + float64(nsec)/float64(time.Second), nil
	}

	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float64:
		return t, nil
	}
	return 0, errors.Wrapf(ErrInvalidRecord, "time has type %T", v)
}

// WriteTo implements io.WriterTo
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	b, err := Marshal(r)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Marshal serializes a record. Map keys are sorted so output is
// deterministic.
func Marshal(r *Record) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := msgpack.NewEncoder(buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	enc.SetCustomStructTag("json")

	if err := r.EncodeMsgpack(enc); err != nil {
		return nil, &EncodingError{Tag: r.Tag, Err: err}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a single record from b.
func Unmarshal(b []byte) (*Record, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	return ReadRecord(dec)
}

// ReadRecord decodes the next record from dec.
func ReadRecord(dec *msgpack.Decoder) (*Record, error) {
	r := &Record{}
	if err := r.DecodeMsgpack(dec); err != nil {
		return nil, err
	}
	return r, nil
}
