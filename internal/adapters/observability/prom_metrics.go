package observability

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// PromObs logs through slog and keeps session metrics in a Prometheus
// registry.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	rejected *prometheus.CounterVec
	sessions *prometheus.CounterVec
}

func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ingested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricReadingsIngested,
		Help: "Readings committed to the store.",
	})
	recovered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricJournalRecovered,
		Help: "Readings re-ingested from the journal after an interrupted session.",
	})
	journalGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricJournalSize,
		Help: "Size of the dump journal on disk.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSessionDuration,
		Help:    "Wall time from trigger to commit for one dump.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	commit := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSinkCommit,
		Help:    "Time spent committing a dump batch.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricLinesRejected,
		Help: "Payload lines dropped by the record parser.",
	}, []string{"reason"})
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ports.MetricSessions,
		Help: "Dump sessions by outcome.",
	}, []string{"outcome"})

	if reg != nil {
		reg.MustRegister(ingested, recovered, journalGauge, duration, commit, rejected, sessions)
	}

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricReadingsIngested: ingested,
			ports.MetricJournalRecovered: recovered,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricJournalSize: journalGauge,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricSessionDuration: duration,
			ports.MetricSinkCommit:      commit,
		},
		rejected: rejected,
		sessions: sessions,
	}
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.logger.Debug(msg, attrs(fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	args := attrs(fields)
	if err != nil {
		args = append(args, "error", err)
	}
	p.logger.Error(msg, args...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordRejected(line string, reason string) {
	p.rejected.WithLabelValues(reason).Inc()
	p.logger.Debug("line_rejected", "reason", reason, "line", line)
}

func (p *PromObs) RecordSession(r domain.Report, err error) {
	outcome := r.Outcome()
	if err != nil {
		outcome = "failed"
	}
	p.sessions.WithLabelValues(outcome).Inc()
	p.ObserveLatency(ports.MetricSessionDuration, r.Duration.Seconds())

	args := []any{
		"session", r.SessionID,
		"start", r.Start.Format(domain.RealTimeLayout),
		"accepted", r.Accepted,
		"rejected", r.Rejected,
		"outcome", outcome,
	}
	switch {
	case err != nil:
		p.logger.Error("session_failed", append(args, "error", err)...)
	case !r.Complete:
		p.logger.Warn("session_incomplete", args...)
	default:
		p.logger.Info("session_complete", args...)
	}
}

// WriteTextfile dumps every metric in g to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return errors.New("textfile path is empty")
	}
	return prometheus.WriteToTextfile(path, g)
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
