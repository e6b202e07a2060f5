package client

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jeffrom/fluentlog/testhelper"
)

func TestMetrics(t *testing.T) {
	conf := testhelper.DefaultTestConfig(testing.Verbose())
	server := testhelper.NewMockServer(t, conf)
	s, d := newTestSender(t, server.Config(conf))
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, conf.Tag)
	s.WithMetrics(m)
	d.RefuseN(1)

	emitN(t, s, 1, 1)
	waitFor(t, "refused dial", func() bool { return testutil.ToFloat64(m.connectErrors) == 1 })
	if v := testutil.ToFloat64(m.queueLength); v != 1 {
		t.Fatalf("expected queue length 1 but got %v", v)
	}

	emitN(t, s, 2, 3)
	flush(t, s)
	if err := s.Emit("bad", func() {}); err == nil {
		t.Fatal("expected encoding error")
	}

	tests := []struct {
		name     string
		c        prometheus.Collector
		expected float64
	}{
		{"written", m.written, 3},
		{"connects", m.connects, 1},
		{"connect errors", m.connectErrors, 1},
		{"encode errors", m.encodeErrors, 1},
		{"write errors", m.writeErrors, 0},
		{"queue length", m.queueLength, 0},
	}
	for _, tt := range tests {
		if v := testutil.ToFloat64(tt.c); v != tt.expected {
			t.Fatalf("%s: expected %v but got %v", tt.name, tt.expected, v)
		}
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather failed: %+v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 registered metrics but got %d", n)
	}
}

func TestMetricsAlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetrics(reg, "app")
	b := NewMetrics(reg, "app")
	a.recordWritten()
	b.recordWritten()
	if v := testutil.ToFloat64(a.written); v != 2 {
		t.Fatalf("expected shared counter value 2 but got %v", v)
	}
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.setQueueLength(1)
	m.recordWritten()
	m.writeFailed()
	m.encodeFailed()
	m.connected()
	m.connectFailed()
}
