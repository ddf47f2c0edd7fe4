package buoysync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/werpogo98-bit/buoysync/internal/adapters/journal"
	"github.com/werpogo98-bit/buoysync/internal/adapters/lines"
	"github.com/werpogo98-bit/buoysync/internal/adapters/observability"
	"github.com/werpogo98-bit/buoysync/internal/adapters/serial"
	"github.com/werpogo98-bit/buoysync/internal/adapters/sink"
	"github.com/werpogo98-bit/buoysync/internal/app/pipeline"
	"github.com/werpogo98-bit/buoysync/internal/app/timeline"
	"github.com/werpogo98-bit/buoysync/internal/clock"
	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

const schemaTimeout = 10 * time.Second

// SourceFunc opens a fresh LineSource for one session. For the serial
// transport this is where the trigger byte is sent.
type SourceFunc func(ctx context.Context) (LineSource, error)

// Option customizes the dependencies used by Runtime.
type Option func(*runtimeOverrides)

type runtimeOverrides struct {
	source        SourceFunc
	sink          Sink
	journal       Journal
	observability Observability
	clock         Clock
	logger        *slog.Logger
}

// WithSource replaces the serial transport (files, sockets, simulators).
func WithSource(fn SourceFunc) Option {
	return func(o *runtimeOverrides) {
		o.source = fn
	}
}

// WithSink injects a custom sink so readings can be sent to any database or API.
func WithSink(s Sink) Option {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithJournal lets callers bring their own journal or reuse an open one.
func WithJournal(j Journal) Option {
	return func(o *runtimeOverrides) {
		o.journal = j
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithClock overrides the clock used to resolve session start times.
func WithClock(c Clock) Option {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// WithLogger sets the slog logger behind the default observability backend.
func WithLogger(l *slog.Logger) Option {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// Runtime wires source → framer → parser → sink (with the journal alongside)
// and runs one session per Sync or Replay call. It is not safe for
// concurrent use; sessions are strictly sequential.
type Runtime struct {
	cfg        *Config
	obs        ports.Observability
	source     SourceFunc
	sink       ports.Sink
	journal    ports.Journal
	clock      clock.Clock
	registry   *prometheus.Registry
	ownSink    bool
	ownJournal bool
}

// New bootstraps the default adapters (serial source, SQLite or Postgres
// sink, file journal, Prometheus observability). Options override any of
// them.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		clock:    overrides.clock,
		source:   overrides.source,
	}
	if rt.clock == nil {
		rt.clock = clock.Real()
	}

	rt.obs = overrides.observability
	if rt.obs == nil {
		logger := overrides.logger
		if logger == nil {
			var err error
			logger, err = observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return nil, err
			}
		}
		rt.obs = observability.NewPromObs(rt.registry, logger)
	}

	if overrides.journal != nil {
		rt.journal = overrides.journal
	} else if !cfg.Journal.Disabled {
		jr, err := journal.NewFileJournal(cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		rt.journal = jr
		rt.ownJournal = true
	}

	if overrides.sink != nil {
		rt.sink = overrides.sink
	} else {
		snk, err := openSink(cfg.Store)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.sink = snk
		rt.ownSink = true
	}

	if rt.source == nil {
		rt.source = serialSource(cfg)
	}
	return rt, nil
}

type schemaSink interface {
	ports.Sink
	EnsureSchema(ctx context.Context) error
}

func openSink(sc StoreConfig) (ports.Sink, error) {
	var (
		snk schemaSink
		err error
	)
	switch sc.Driver {
	case "", DriverSQLite:
		snk, err = sink.OpenSQLiteSink(sc.Path, sc.Table)
	case DriverPostgres:
		snk, err = sink.OpenPostgresSink(sc.DSN, sc.Table)
	default:
		return nil, fmt.Errorf("store driver %q is not supported", sc.Driver)
	}
	if err != nil {
		return nil, err
	}

	if sc.ShouldCreateSchema() {
		ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
		defer cancel()
		if err := snk.EnsureSchema(ctx); err != nil {
			snk.Close()
			return nil, err
		}
	}
	return snk, nil
}

func serialSource(cfg *Config) SourceFunc {
	return func(ctx context.Context) (LineSource, error) {
		if err := cfg.ValidateSerial(); err != nil {
			return nil, err
		}
		src, err := serial.Open(ctx, cfg.Serial)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// Sync triggers one dump over the configured source and ingests it.
// startInput is the operator's HH:MM:SS for the moment the buoy booted;
// empty or unparsable input falls back to now. Journal lines left by an
// earlier crashed session are recovered first.
func (r *Runtime) Sync(ctx context.Context, startInput string) (Report, error) {
	sess := r.newSession(startInput)
	jr := r.recoverPending(ctx)

	src, err := r.source(ctx)
	if err != nil {
		err = fmt.Errorf("open source: %w", err)
		rep := Report{SessionID: sess.ID, Start: sess.Start}
		r.obs.LogError("source_open_failed", err, ports.Field{Key: "session", Value: sess.ID})
		r.obs.RecordSession(rep, err)
		return rep, err
	}
	defer src.Close()

	return r.run(ctx, sess, src, jr)
}

// Replay feeds a captured dump (for example a saved serial log) through the
// same pipeline. No trigger is sent.
func (r *Runtime) Replay(ctx context.Context, rd io.Reader, startInput string) (Report, error) {
	sess := r.newSession(startInput)
	jr := r.recoverPending(ctx)

	src := lines.NewSource(rd)
	defer src.Close()

	return r.run(ctx, sess, src, jr)
}

// Recover re-ingests journaled lines of sessions that never committed.
func (r *Runtime) Recover(ctx context.Context) ([]Report, error) {
	if r.journal == nil {
		return nil, nil
	}
	return pipeline.RecoverJournal(ctx, r.journal, r.sink, r.obs)
}

// JournalStats reports the journal watermarks; zero when journaling is off.
func (r *Runtime) JournalStats() JournalStats {
	if r.journal == nil {
		return JournalStats{}
	}
	return r.journal.Stats()
}

// Gatherer exposes the metrics of the default observability backend.
func (r *Runtime) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteMetrics writes the registry to cfg.Metrics.Textfile when set.
func (r *Runtime) WriteMetrics() error {
	if r.cfg.Metrics.Textfile == "" {
		return nil
	}
	return observability.WriteTextfile(r.cfg.Metrics.Textfile, r.registry)
}

// Close releases the sink and journal the runtime opened itself.
func (r *Runtime) Close() error {
	var errs []error
	if r.ownJournal && r.journal != nil {
		if err := r.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.ownSink && r.sink != nil {
		if err := r.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) newSession(startInput string) *domain.Session {
	return &domain.Session{ID: uuid.NewString(), Start: r.resolveStart(startInput)}
}

func (r *Runtime) run(ctx context.Context, sess *domain.Session, src LineSource, jr ports.Journal) (Report, error) {
	r.obs.LogInfo("session_start",
		ports.Field{Key: "session", Value: sess.ID},
		ports.Field{Key: "start", Value: sess.Start.Format(domain.RealTimeLayout)},
		ports.Field{Key: "sink", Value: r.sink.Name()})
	return pipeline.RunDumpSession(ctx, sess, src, r.sink, jr, r.obs)
}

func (r *Runtime) resolveStart(input string) time.Time {
	start, err := timeline.ResolveStart(input, r.clock.Now())
	if err != nil {
		r.obs.LogWarn("start_time_invalid",
			ports.Field{Key: "input", Value: input},
			ports.Field{Key: "fallback", Value: start.Format(domain.RealTimeLayout)})
	}
	return start
}

// recoverPending drains the journal before a new session and returns the
// journal that session should use. If recovery fails the old entries must
// stay pending, so the new session runs unjournaled rather than moving the
// commit watermark past them.
func (r *Runtime) recoverPending(ctx context.Context) ports.Journal {
	if r.journal == nil || !pipeline.Pending(r.journal) {
		return r.journal
	}
	reports, err := r.Recover(ctx)
	for _, rep := range reports {
		r.obs.LogWarn("interrupted_session_recovered",
			ports.Field{Key: "session", Value: rep.SessionID},
			ports.Field{Key: "readings", Value: rep.Accepted},
			ports.Field{Key: "set_aside", Value: rep.SetAside})
	}
	if err != nil {
		r.obs.LogError("journal_recovery_failed", err,
			ports.Field{Key: "pending_from", Value: r.journal.Stats().OldestUncommitted})
		return nil
	}
	return r.journal
}
