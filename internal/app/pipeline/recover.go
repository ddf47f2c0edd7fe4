package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/werpogo98-bit/buoysync/internal/app/record"
	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// ReasonRefused labels journaled lines that parsed but the sink would not
// store, for example a timestamp outside the column's range.
const ReasonRefused = "store"

type pendingSession struct {
	sess    domain.Session
	lines   []string
	lastID  ports.JournalEntryID
	firstID ports.JournalEntryID
}

// Pending reports whether jr holds lines that never reached the store.
func Pending(jr ports.Journal) bool {
	stats := jr.Stats()
	return stats.LatestAppended > 0 && stats.OldestUncommitted <= stats.LatestAppended
}

// RecoverJournal re-ingests journaled lines whose session never committed.
// Each interrupted session is replayed with its recorded start time into
// its own batch, so timestamps come out identical to an uninterrupted run.
//
// Lines the sink refuses are left out of the batch, written to a file with
// jr.SetAside and reported in Report.SetAside, so one bad line cannot keep
// the journal pending forever. An error is returned only when the sink
// cannot be reached or the journal cannot be advanced; the entries then
// stay pending.
func RecoverJournal(ctx context.Context, jr ports.Journal, snk ports.Sink, obs ports.Observability) ([]domain.Report, error) {
	if !Pending(jr) {
		return nil, nil
	}
	from := jr.Stats().OldestUncommitted

	var (
		groups []*pendingSession
		byID   = make(map[string]*pendingSession)
	)
	err := jr.Iterate(from, func(id ports.JournalEntryID, e *ports.JournalEntry) error {
		g, ok := byID[e.SessionID]
		if !ok {
			g = &pendingSession{sess: domain.Session{ID: e.SessionID, Start: e.Start}, firstID: id}
			byID[e.SessionID] = g
			groups = append(groups, g)
		}
		g.lines = append(g.lines, e.Line)
		g.lastID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	reports := make([]domain.Report, 0, len(groups))
	for _, g := range groups {
		rep, refused, err := recoverSession(ctx, g, snk, obs)
		if err != nil {
			return reports, err
		}
		if len(refused) > 0 {
			path, err := jr.SetAside(g.sess.ID, g.sess.Start, refused)
			if err != nil {
				return reports, err
			}
			rep.SetAside = path
			obs.LogWarn("journal_lines_set_aside",
				ports.Field{Key: "session", Value: g.sess.ID},
				ports.Field{Key: "lines", Value: len(refused)},
				ports.Field{Key: "path", Value: path})
		}
		reports = append(reports, rep)

		if err := jr.Commit(g.lastID); err != nil {
			return reports, fmt.Errorf("commit journal: %w", err)
		}
		obs.IncCounter(ports.MetricJournalRecovered, float64(rep.Accepted))
	}

	if err := jr.TruncateCommitted(); err != nil {
		obs.LogError("journal_truncate_failed", err)
	}
	obs.SetGauge(ports.MetricJournalSize, float64(jr.Stats().SizeBytes))
	return reports, nil
}

type parsedLine struct {
	line    string
	reading *domain.Reading
}

// recoverSession stores one journaled session. Lines are parsed once; when
// the sink refuses a reading the batch is rolled back and retried without
// it, so every attempt either drops one more line or commits.
func recoverSession(ctx context.Context, g *pendingSession, snk ports.Sink, obs ports.Observability) (rep domain.Report, refused []string, err error) {
	began := time.Now()
	sess := &g.sess
	rep = domain.Report{SessionID: sess.ID, Start: sess.Start}
	defer func() {
		rep.Accepted = sess.Accepted
		rep.Rejected = sess.Rejected
		rep.Duration = time.Since(began)
		obs.RecordSession(rep, err)
	}()

	obs.LogInfo("journal_recovery",
		ports.Field{Key: "session", Value: sess.ID},
		ports.Field{Key: "lines", Value: len(g.lines)},
		ports.Field{Key: "from_id", Value: g.firstID})

	var readings []parsedLine
	for _, line := range g.lines {
		out := record.Parse(line, sess.Start)
		if !out.Accepted() {
			sess.Rejected++
			obs.RecordRejected(line, string(out.Rejection.Reason))
			continue
		}
		readings = append(readings, parsedLine{line: line, reading: out.Reading})
	}

	skip := make([]bool, len(readings))
	for {
		bad, err := storeReadings(ctx, snk, readings, skip, obs)
		if err != nil {
			return rep, refused, err
		}
		if bad < 0 {
			break
		}
		skip[bad] = true
		refused = append(refused, readings[bad].line)
		sess.Rejected++
		obs.RecordRejected(readings[bad].line, ReasonRefused)
	}

	for _, s := range skip {
		if !s {
			sess.Accepted++
		}
	}
	obs.IncCounter(ports.MetricReadingsIngested, float64(sess.Accepted))

	// the end sentinel is never journaled, so completeness is unknown
	rep.Complete = false
	return rep, refused, nil
}

// storeReadings appends every reading not marked in skip inside one batch.
// It returns the index of the first reading the sink refused (batch rolled
// back), or -1 once the batch is committed.
func storeReadings(ctx context.Context, snk ports.Sink, readings []parsedLine, skip []bool, obs ports.Observability) (int, error) {
	batch, err := snk.Begin(ctx)
	if err != nil {
		return -1, fmt.Errorf("begin %s batch: %w", snk.Name(), err)
	}
	for i, p := range readings {
		if skip[i] {
			continue
		}
		if _, err := batch.Append(ctx, p.reading); err != nil {
			rollback(batch, obs)
			if ctx.Err() != nil {
				return -1, ctx.Err()
			}
			obs.LogError("journal_line_refused", err, ports.Field{Key: "line", Value: p.line})
			return i, nil
		}
	}
	if err := batch.Commit(); err != nil {
		return -1, fmt.Errorf("commit batch: %w", err)
	}
	return -1, nil
}
