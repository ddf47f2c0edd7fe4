package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// PostgresSink writes readings into PostgreSQL or TimescaleDB.
type PostgresSink struct {
	db     *sql.DB
	table  string
	ownsDB bool
}

// OpenPostgresSink opens a lib/pq connection pool for dsn.
func OpenPostgresSink(dsn, table string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres sink: dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: %w", err)
	}
	// one dump, one writer
	db.SetMaxOpenConns(1)

	s, err := NewPostgresSink(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewPostgresSink wraps an existing pool; Close leaves it open.
func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	return &PostgresSink{db: db, table: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		uptime_seconds BIGINT NOT NULL,
		real_time TIMESTAMP NOT NULL,
		tds DOUBLE PRECISION,
		turb DOUBLE PRECISION,
		ph DOUBLE PRECISION,
		status TEXT
	)`, p.table)
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres sink: create table: %w", err)
	}
	return nil
}

func (p *PostgresSink) Begin(ctx context.Context) (ports.Batch, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: begin tx: %w", err)
	}
	return &sqlBatch{
		tx:     tx,
		insert: fmt.Sprintf("INSERT INTO %s %s VALUES ($1,$2,$3,$4,$5,$6) RETURNING id", p.table, insertColumns),
	}, nil
}

func (p *PostgresSink) Close() error {
	if !p.ownsDB {
		return nil
	}
	return p.db.Close()
}

type sqlBatch struct {
	tx     *sql.Tx
	insert string
	done   bool
}

func (b *sqlBatch) Append(ctx context.Context, r *domain.Reading) (int64, error) {
	if b.done {
		return 0, ErrBatchDone
	}
	var id int64
	err := b.tx.QueryRowContext(ctx, b.insert,
		r.UptimeSeconds,
		r.RealTime,
		r.TDS,
		r.Turb,
		r.PH,
		r.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres sink: insert: %w", err)
	}
	return id, nil
}

func (b *sqlBatch) Commit() error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("postgres sink: commit: %w", err)
	}
	return nil
}

func (b *sqlBatch) Rollback() error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	if err := b.tx.Rollback(); err != nil {
		return fmt.Errorf("postgres sink: rollback: %w", err)
	}
	return nil
}

var _ ports.Sink = (*PostgresSink)(nil)
