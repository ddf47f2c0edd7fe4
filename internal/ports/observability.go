package ports

import "github.com/werpogo98-bit/buoysync/internal/domain"

type Observability interface {
	LogDebug(msg string, fields ...Field)
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)
	SetGauge(name string, v float64)

	RecordRejected(line string, reason string)
	RecordSession(r domain.Report, err error)
}

type Field struct {
	Key   string
	Value any
}

const (
	MetricReadingsIngested = "buoy_readings_ingested_total"
	MetricLinesRejected    = "buoy_lines_rejected_total"
	MetricSessions         = "buoy_sessions_total"
	MetricSessionDuration  = "buoy_session_duration_seconds"
	MetricSinkCommit       = "buoy_sink_commit_seconds"
	MetricJournalSize      = "buoy_journal_size_bytes"
	MetricJournalRecovered = "buoy_journal_recovered_total"
)
