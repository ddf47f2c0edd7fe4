package buoysync

import (
	"github.com/werpogo98-bit/buoysync/internal/adapters/sink"
	"github.com/werpogo98-bit/buoysync/internal/clock"
	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// Reading is one parsed buoy measurement with its reconstructed wall-clock time.
type Reading = domain.Reading

// StoredReading is a Reading with the id the sink assigned to it.
type StoredReading = domain.StoredReading

// Report summarizes a finished session.
type Report = domain.Report

// LineSource yields raw lines from the buoy link (serial port, file, test fixture).
type LineSource = ports.LineSource

// Sink persists readings inside one transactional batch per dump.
type Sink = ports.Sink

// Batch is the open transactional scope of a Sink.
type Batch = ports.Batch

// Journal keeps raw payload lines on disk until the sink commits them.
type Journal = ports.Journal

// JournalStats exposes journal watermarks for observability.
type JournalStats = ports.JournalStats

// Observability emits logs and metrics about sessions and rejected lines.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Clock supplies "now" for start-time resolution.
type Clock = clock.Clock

// CommitFunc receives every committed batch of a callback sink.
type CommitFunc = sink.CommitFunc

// NewCallbackSink adapts a CommitFunc into a full Sink so callers can plug
// arbitrary functions without defining structs.
func NewCallbackSink(name string, fn CommitFunc) Sink {
	return sink.NewCallbackSink(name, fn)
}
