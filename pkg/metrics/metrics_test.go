package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/vango-dev/pagewire/pkg/channel"
	"github.com/vango-dev/pagewire/pkg/session"
)

var (
	_ channel.Observer = (*Metrics)(nil)
	_ session.Observer = (*Metrics)(nil)
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestChannelObserver(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.MessageSent()
	m.MessageSent()
	m.MessageReceived()
	m.DecodeFailed()
	m.SendRetried()
	m.Reconnecting()
	m.QueueDepth(7)
	m.StateChanged(channel.StateOpen)

	if got := counterValue(t, m.messagesSent); got != 2 {
		t.Errorf("messages sent = %v, want 2", got)
	}
	if got := counterValue(t, m.messagesReceived); got != 1 {
		t.Errorf("messages received = %v, want 1", got)
	}
	if got := counterValue(t, m.decodeFailures); got != 1 {
		t.Errorf("decode failures = %v, want 1", got)
	}
	if got := counterValue(t, m.sendRetries); got != 1 {
		t.Errorf("send retries = %v, want 1", got)
	}
	if got := counterValue(t, m.reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
	if got := gaugeValue(t, m.queueDepth); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
	if got := gaugeValue(t, m.channelState); got != float64(channel.StateOpen) {
		t.Errorf("state = %v", got)
	}
}

func TestSessionObserver(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.SessionStarted(false)
	m.SessionStarted(true)
	m.SessionStarted(true)
	m.SessionDisconnected()
	m.SessionEvicted(session.EvictCapacity)
	m.SessionCounts(3, 1)

	if got := counterValue(t, m.sessionsStarted.WithLabelValues("true")); got != 2 {
		t.Errorf("restored starts = %v, want 2", got)
	}
	if got := counterValue(t, m.sessionsStarted.WithLabelValues("false")); got != 1 {
		t.Errorf("fresh starts = %v, want 1", got)
	}
	if got := counterValue(t, m.sessionsEvicted.WithLabelValues(session.EvictCapacity)); got != 1 {
		t.Errorf("evicted = %v, want 1", got)
	}
	if got := gaugeValue(t, m.activeSessions); got != 3 {
		t.Errorf("active = %v, want 3", got)
	}
	if got := gaugeValue(t, m.disconnectedSessions); got != 1 {
		t.Errorf("disconnected = %v, want 1", got)
	}
}

func TestPageRun(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	m.PageRun("/home", "rerun", 10*time.Millisecond, nil)
	m.PageRun("/home", "rerun", 5*time.Millisecond, errors.New("boom"))

	if got := counterValue(t, m.pageRuns.WithLabelValues("/home", "rerun", "success")); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := counterValue(t, m.pageRuns.WithLabelValues("/home", "rerun", "error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
	if got := histogramCount(t, m.pageRunDuration.WithLabelValues("/home", "rerun")); got != 2 {
		t.Errorf("duration samples = %d, want 2", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.MessageSent()
	m.QueueDepth(1)
	m.SessionStarted(true)
	m.SessionCounts(1, 1)
	m.PageRun("/", "initialize", time.Millisecond, nil)
}
