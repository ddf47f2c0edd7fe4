package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// CommitFunc receives the readings of one committed batch in append order.
type CommitFunc func(readings []domain.StoredReading) error

// CallbackSink buffers a batch in memory and hands it to a function on
// commit. Ids are assigned by the sink and keep increasing across batches.
type CallbackSink struct {
	name string
	fn   CommitFunc

	mu     sync.Mutex
	lastID int64
	closed bool
}

func NewCallbackSink(name string, fn CommitFunc) *CallbackSink {
	if name == "" {
		name = "callback"
	}
	return &CallbackSink{name: name, fn: fn}
}

func (s *CallbackSink) Name() string { return s.name }

func (s *CallbackSink) Begin(ctx context.Context) (ports.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSinkClosed
	}
	if s.fn == nil {
		return nil, fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	return &callbackBatch{sink: s}, nil
}

func (s *CallbackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *CallbackSink) nextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID
}

type callbackBatch struct {
	sink    *CallbackSink
	pending []domain.StoredReading
	done    bool
}

func (b *callbackBatch) Append(ctx context.Context, r *domain.Reading) (int64, error) {
	if b.done {
		return 0, ErrBatchDone
	}
	id := b.sink.nextID()
	b.pending = append(b.pending, domain.StoredReading{ID: id, Reading: *r})
	return id, nil
}

func (b *callbackBatch) Commit() error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	if len(b.pending) == 0 {
		return nil
	}
	return b.sink.fn(b.pending)
}

func (b *callbackBatch) Rollback() error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	b.pending = nil
	return nil
}

var _ ports.Sink = (*CallbackSink)(nil)
