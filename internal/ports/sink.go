package ports

import (
	"context"

	"github.com/werpogo98-bit/buoysync/internal/domain"
)

// Sink opens transactional batches against a durable store.
type Sink interface {
	Begin(ctx context.Context) (Batch, error)
	Name() string
	Close() error
}

// Batch is a single commit boundary. Append returns the surrogate id the
// store assigned to the row. After Commit or Rollback the batch is spent.
type Batch interface {
	Append(ctx context.Context, r *domain.Reading) (int64, error)
	Commit() error
	Rollback() error
}
