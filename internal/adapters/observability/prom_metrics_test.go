package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, nil)

	obs.IncCounter(ports.MetricReadingsIngested, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricReadingsIngested]); got != 5 {
		t.Fatalf("expected ingested counter 5, got %f", got)
	}

	obs.SetGauge(ports.MetricJournalSize, 42)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricJournalSize]); got != 42 {
		t.Fatalf("expected journal gauge 42, got %f", got)
	}

	obs.ObserveLatency(ports.MetricSinkCommit, 0.5)
	hCollector := obs.histos[ports.MetricSinkCommit].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected commit histogram to record 1 sample, got %d", samples)
	}

	obs.RecordRejected("bad,line", "field_count")
	obs.RecordRejected("x,1,1,1,OK", "uptime")
	obs.RecordRejected("bad", "field_count")
	if got := testutil.ToFloat64(obs.rejected.WithLabelValues("field_count")); got != 2 {
		t.Fatalf("expected 2 field_count rejections, got %f", got)
	}

	obs.IncCounter("unknown_metric", 1)
}

func TestPromObsRecordSessionOutcomes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := NewPromObs(prometheus.NewRegistry(), logger)

	obs.RecordSession(domain.Report{SessionID: "a", Accepted: 1, Complete: true, Duration: time.Second}, nil)
	obs.RecordSession(domain.Report{SessionID: "b", Accepted: 3}, nil)
	obs.RecordSession(domain.Report{SessionID: "c"}, errors.New("port vanished"))

	for _, outcome := range []string{"complete", "incomplete", "failed"} {
		if got := testutil.ToFloat64(obs.sessions.WithLabelValues(outcome)); got != 1 {
			t.Fatalf("expected one %s session, got %f", outcome, got)
		}
	}

	out := buf.String()
	for _, want := range []string{"session_complete", "session_incomplete", "session_failed", "port vanished"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log output to contain %q:\n%s", want, out)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, nil)
	obs.IncCounter(ports.MetricReadingsIngested, 2)

	path := filepath.Join(t.TempDir(), "buoy.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), ports.MetricReadingsIngested+" 2") {
		t.Fatalf("expected ingested counter in textfile:\n%s", data)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("unexpected log output %s", buf.String())
	}

	if _, err := NewLogger(&buf, "loud", "text"); err == nil {
		t.Fatalf("expected bad level to fail")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected bad format to fail")
	}
}
