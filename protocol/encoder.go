package protocol

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Encoder builds records for a base tag and serializes them. It holds no
// mutable state after construction and is safe for concurrent use.
type Encoder struct {
	tag        string
	resolution int64
	now        func() time.Time
}

// Time resolutions: the number of epoch milliseconds in one unit of record
// time.
const (
	Milliseconds int64 = 1
	Seconds      int64 = 1000
)

// NewEncoder returns an Encoder for a base tag. resolution is Seconds or
// Milliseconds; anything else is treated as Seconds.
func NewEncoder(tag string, resolution int64) *Encoder {
	if resolution != Milliseconds {
		resolution = Seconds
	}
	return &Encoder{
		tag:        tag,
		resolution: resolution,
		now:        time.Now,
	}
}

// WithClock sets the function used to get the current time. It should be
// called as part of initialization.
func (e *Encoder) WithClock(now func() time.Time) *Encoder {
	e.now = now
	return e
}

// Tag returns the full tag for a label.
func (e *Encoder) Tag(label string) string {
	if label == "" {
		return e.tag
	}
	return strings.Join([]string{e.tag, label}, ".")
}

// Time converts a timestamp to a record time. Numeric timestamps are used as
// they are. time.Time values, or the current time if ts is nil, are converted
// to epoch milliseconds and divided by the resolution.
func (e *Encoder) Time(ts interface{}) (float64, error) {
	switch t := ts.(type) {
	case nil:
		return e.fromTime(e.now()), nil
	case time.Time:
		return e.fromTime(t), nil
	case *time.Time:
		if t == nil {
			return e.fromTime(e.now()), nil
		}
		return e.fromTime(*t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	}
	return 0, errors.Errorf("unsupported timestamp type %T", ts)
}

func (e *Encoder) fromTime(t time.Time) float64 {
	ms := t.UnixMilli()
	if e.resolution == Milliseconds {
		return float64(ms)
	}
	return float64(ms) / float64(e.resolution)
}

// Record builds a record without serializing it.
func (e *Encoder) Record(label string, payload interface{}, ts interface{}) (*Record, error) {
	tag := e.Tag(label)
	t, err := e.Time(ts)
	if err != nil {
		return nil, &EncodingError{Tag: tag, Err: err}
	}
	return &Record{Tag: tag, Time: t, Payload: payload}, nil
}

// Encode builds a record and serializes it. Unsupported payload or timestamp
// types return an *EncodingError.
func (e *Encoder) Encode(label string, payload interface{}, ts interface{}) (*Record, []byte, error) {
	r, err := e.Record(label, payload, ts)
	if err != nil {
		return nil, nil, err
	}
	b, err := Marshal(r)
	if err != nil {
		return nil, nil, err
	}
	return r, b, nil
}
