package buoysync

import (
	base "github.com/werpogo98-bit/buoysync/pkg/buoysync"
)

// Type aliases so consumers can import github.com/werpogo98-bit/buoysync directly.
type (
	Config        = base.Config
	SerialConfig  = base.SerialConfig
	StoreConfig   = base.StoreConfig
	JournalConfig = base.JournalConfig
	MetricsConfig = base.MetricsConfig
	LogConfig     = base.LogConfig
	Flow          = base.Flow
	FlowOption    = base.FlowOption
	Runtime       = base.Runtime
	Option        = base.Option
	SourceFunc    = base.SourceFunc
	Reading       = base.Reading
	StoredReading = base.StoredReading
	Report        = base.Report
	LineSource    = base.LineSource
	Sink          = base.Sink
	Batch         = base.Batch
	Journal       = base.Journal
	JournalStats  = base.JournalStats
	Observability = base.Observability
	Field         = base.Field
	Clock         = base.Clock
	CommitFunc    = base.CommitFunc
)

const (
	DriverSQLite   = base.DriverSQLite
	DriverPostgres = base.DriverPostgres
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

// Runtime helpers.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.New(cfg, opts...)
}

func WithSource(fn SourceFunc) Option {
	return base.WithSource(fn)
}

func WithSink(s Sink) Option {
	return base.WithSink(s)
}

func WithJournal(j Journal) Option {
	return base.WithJournal(j)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithClock(c Clock) Option {
	return base.WithClock(c)
}

// Sink helpers.
func NewCallbackSink(name string, fn CommitFunc) Sink {
	return base.NewCallbackSink(name, fn)
}
