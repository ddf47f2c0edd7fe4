package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/werpogo98-bit/buoysync/internal/app/dump"
	"github.com/werpogo98-bit/buoysync/internal/app/record"
	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// journalSyncEvery bounds how many journaled lines a crash can lose.
const journalSyncEvery = 32

// RunDumpSession frames, parses and stores one dump. Lines are handled
// strictly in arrival order and all accepted readings share one batch,
// committed when the end sentinel arrives or the source runs dry.
//
// A transport or sink failure rolls the batch back and is returned; the
// journaled lines stay uncommitted for RecoverJournal. Running out of
// input before the end sentinel is not an error: the readings are kept
// and the report says Complete=false. jr may be nil.
func RunDumpSession(ctx context.Context, sess *domain.Session, src ports.LineSource, snk ports.Sink, jr ports.Journal, obs ports.Observability) (rep domain.Report, err error) {
	began := time.Now()
	rep = domain.Report{SessionID: sess.ID, Start: sess.Start}
	defer func() {
		rep.Accepted = sess.Accepted
		rep.Rejected = sess.Rejected
		rep.Duration = time.Since(began)
		obs.RecordSession(rep, err)
	}()

	batch, err := snk.Begin(ctx)
	if err != nil {
		return rep, fmt.Errorf("begin %s batch: %w", snk.Name(), err)
	}

	framer := dump.NewFramer(src)
	var (
		lastEntry ports.JournalEntryID
		unsynced  int
	)

	for {
		line, ok, err := framer.Next()
		if err != nil {
			rollback(batch, obs)
			syncJournal(jr, obs)
			return rep, fmt.Errorf("read dump: %w", err)
		}
		if !ok {
			break
		}

		if jr != nil {
			id, err := jr.Append(&ports.JournalEntry{SessionID: sess.ID, Start: sess.Start, Line: line})
			if err != nil {
				obs.LogError("journal_append_failed", err, ports.Field{Key: "session", Value: sess.ID})
			} else {
				lastEntry = id
				if unsynced++; unsynced >= journalSyncEvery {
					syncJournal(jr, obs)
					unsynced = 0
				}
			}
		}

		if err := ingestLine(ctx, batch, sess, line, obs); err != nil {
			rollback(batch, obs)
			drainToJournal(framer, sess, jr, obs)
			syncJournal(jr, obs)
			return rep, err
		}
	}

	if !framer.Complete() {
		obs.LogWarn("dump_end_missing",
			ports.Field{Key: "session", Value: sess.ID},
			ports.Field{Key: "start_seen", Value: framer.Started()})
	}

	if err := commit(batch, obs); err != nil {
		syncJournal(jr, obs)
		return rep, err
	}
	rep.Complete = framer.Complete()
	obs.IncCounter(ports.MetricReadingsIngested, float64(sess.Accepted))

	if jr != nil && lastEntry > 0 {
		settleJournal(jr, lastEntry, obs)
	}
	return rep, nil
}

// ingestLine parses one payload line and appends it to batch. Rejected
// lines are only counted on the session.
func ingestLine(ctx context.Context, batch ports.Batch, sess *domain.Session, line string, obs ports.Observability) error {
	out := record.Parse(line, sess.Start)
	if !out.Accepted() {
		sess.Rejected++
		obs.RecordRejected(line, string(out.Rejection.Reason))
		return nil
	}

	id, err := batch.Append(ctx, out.Reading)
	if err != nil {
		return fmt.Errorf("append reading: %w", err)
	}
	sess.Accepted++

	r := out.Reading
	obs.LogDebug("reading_added",
		ports.Field{Key: "id", Value: id},
		ports.Field{Key: "real_time", Value: r.RealTime.Format(domain.RealTimeLayout)},
		ports.Field{Key: "tds", Value: r.TDS},
		ports.Field{Key: "ph", Value: r.PH},
		ports.Field{Key: "turb", Value: r.Turb})
	return nil
}

func commit(batch ports.Batch, obs ports.Observability) error {
	start := time.Now()
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	obs.ObserveLatency(ports.MetricSinkCommit, time.Since(start).Seconds())
	return nil
}

func rollback(batch ports.Batch, obs ports.Observability) {
	if err := batch.Rollback(); err != nil {
		obs.LogError("batch_rollback_failed", err)
	}
}

// drainToJournal keeps reading the dump after the sink failed so that
// RecoverJournal sees every line, not just those before the failure.
func drainToJournal(framer *dump.Framer, sess *domain.Session, jr ports.Journal, obs ports.Observability) {
	if jr == nil {
		return
	}
	for {
		line, ok, err := framer.Next()
		if err != nil || !ok {
			return
		}
		if _, err := jr.Append(&ports.JournalEntry{SessionID: sess.ID, Start: sess.Start, Line: line}); err != nil {
			obs.LogError("journal_append_failed", err, ports.Field{Key: "session", Value: sess.ID})
			return
		}
	}
}

func syncJournal(jr ports.Journal, obs ports.Observability) {
	if jr == nil {
		return
	}
	if err := jr.Sync(); err != nil {
		obs.LogError("journal_sync_failed", err)
	}
}

// settleJournal marks entries up to upto as stored and compacts the log.
func settleJournal(jr ports.Journal, upto ports.JournalEntryID, obs ports.Observability) {
	if err := jr.Commit(upto); err != nil {
		obs.LogError("journal_commit_failed", err)
		return
	}
	if err := jr.TruncateCommitted(); err != nil {
		obs.LogError("journal_truncate_failed", err)
	}
	obs.SetGauge(ports.MetricJournalSize, float64(jr.Stats().SizeBytes))
}
