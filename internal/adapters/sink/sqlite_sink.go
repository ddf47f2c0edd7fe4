package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// SQLiteSink writes readings into a local SQLite file over a single
// connection, so there is exactly one writer per store handle.
type SQLiteSink struct {
	mu     sync.Mutex
	conn   *sqlite.Conn
	path   string
	table  string
	active bool
}

func OpenSQLiteSink(path, table string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite sink: path is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite sink: %s: %w", pragma, err)
		}
	}

	return &SQLiteSink{conn: conn, path: path, table: table}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

// EnsureSchema creates the readings table if it does not exist yet.
func (s *SQLiteSink) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uptime_seconds INTEGER,
		real_time TEXT,
		tds REAL, turb REAL, ph REAL,
		status TEXT)`, s.table)
	if err := sqlitex.ExecuteTransient(s.conn, query, nil); err != nil {
		return fmt.Errorf("sqlite sink: create table: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Begin(ctx context.Context) (ports.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrSinkClosed
	}
	if s.active {
		return nil, ErrBatchOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := sqlitex.ExecuteTransient(s.conn, "BEGIN IMMEDIATE", nil); err != nil {
		return nil, fmt.Errorf("sqlite sink: begin: %w", err)
	}
	s.active = true

	return &sqliteBatch{
		sink:   s,
		insert: fmt.Sprintf("INSERT INTO %s %s VALUES (?, ?, ?, ?, ?, ?)", s.table, insertColumns),
	}, nil
}

// Readings returns every stored row in id order.
func (s *SQLiteSink) Readings(ctx context.Context) ([]domain.StoredReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []domain.StoredReading
	query := fmt.Sprintf("SELECT id, uptime_seconds, real_time, tds, turb, ph, status FROM %s ORDER BY id", s.table)
	err := sqlitex.ExecuteTransient(s.conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rt, err := time.ParseInLocation(domain.RealTimeLayout, stmt.ColumnText(2), time.Local)
			if err != nil {
				return fmt.Errorf("row %d: real_time: %w", stmt.ColumnInt64(0), err)
			}
			out = append(out, domain.StoredReading{
				ID: stmt.ColumnInt64(0),
				Reading: domain.Reading{
					UptimeSeconds: stmt.ColumnInt64(1),
					RealTime:      rt,
					TDS:           stmt.ColumnFloat(3),
					Turb:          stmt.ColumnFloat(4),
					PH:            stmt.ColumnFloat(5),
					Status:        stmt.ColumnText(6),
				},
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: query: %w", err)
	}
	return out, nil
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("sqlite sink: close %s: %w", s.path, err)
	}
	return nil
}

type sqliteBatch struct {
	sink   *SQLiteSink
	insert string
	done   bool
}

func (b *sqliteBatch) Append(ctx context.Context, r *domain.Reading) (int64, error) {
	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()
	if b.done {
		return 0, ErrBatchDone
	}
	if b.sink.conn == nil {
		return 0, ErrSinkClosed
	}

	err := sqlitex.Execute(b.sink.conn, b.insert, &sqlitex.ExecOptions{
		Args: []any{
			r.UptimeSeconds,
			r.RealTime.Format(domain.RealTimeLayout),
			r.TDS,
			r.Turb,
			r.PH,
			r.Status,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite sink: insert: %w", err)
	}
	return b.sink.conn.LastInsertRowID(), nil
}

func (b *sqliteBatch) Commit() error {
	return b.finish("COMMIT")
}

func (b *sqliteBatch) Rollback() error {
	return b.finish("ROLLBACK")
}

func (b *sqliteBatch) finish(stmt string) error {
	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()
	if b.done {
		return ErrBatchDone
	}
	if b.sink.conn == nil {
		return ErrSinkClosed
	}

	conn := b.sink.conn
	err := sqlitex.ExecuteTransient(conn, stmt, nil)
	if err != nil && stmt == "COMMIT" && !conn.AutocommitEnabled() {
		// a failed COMMIT (deferred constraint, busy) keeps the transaction open
		if rerr := sqlitex.ExecuteTransient(conn, "ROLLBACK", nil); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	// the batch only ends once the connection has left the transaction
	if conn.AutocommitEnabled() {
		b.done = true
		b.sink.active = false
	}
	if err != nil {
		return fmt.Errorf("sqlite sink: %s: %w", stmt, err)
	}
	return nil
}

var _ ports.Sink = (*SQLiteSink)(nil)
