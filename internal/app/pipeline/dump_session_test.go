package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/werpogo98-bit/buoysync/internal/adapters/journal"
	"github.com/werpogo98-bit/buoysync/internal/adapters/lines"
	"github.com/werpogo98-bit/buoysync/internal/adapters/sink"
	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

var sessionStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)

func newSession() *domain.Session {
	return &domain.Session{ID: "test-session", Start: sessionStart}
}

func newStore(t *testing.T) *sink.SQLiteSink {
	t.Helper()
	s, err := sink.OpenSQLiteSink(filepath.Join(t.TempDir(), "water_data.db"), "")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func storedRows(t *testing.T, s *sink.SQLiteSink) []domain.StoredReading {
	t.Helper()
	rows, err := s.Readings(context.Background())
	if err != nil {
		t.Fatalf("readings: %v", err)
	}
	return rows
}

func TestRunDumpSessionSingleReading(t *testing.T) {
	store := newStore(t)
	obs := &mockObs{}
	src := lines.FromStrings("---START_DUMP---", "10,120.5,3.2,7.1,OK", "---END_DUMP---")

	rep, err := RunDumpSession(context.Background(), newSession(), src, store, nil, obs)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if rep.Accepted != 1 || rep.Rejected != 0 || !rep.Complete {
		t.Fatalf("unexpected report %+v", rep)
	}

	rows := storedRows(t, store)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.UptimeSeconds != 10 || r.TDS != 120.5 || r.Turb != 3.2 || r.PH != 7.1 || r.Status != "OK" {
		t.Fatalf("unexpected row %+v", r)
	}
	if got := r.RealTime.Format(domain.RealTimeLayout); got != "2024-01-01 00:00:10" {
		t.Fatalf("expected real_time 2024-01-01 00:00:10, got %s", got)
	}
	if obs.sessions != 1 || obs.lastErr != nil {
		t.Fatalf("expected one successful session to be recorded")
	}
}

func TestRunDumpSessionSkipsMalformedLines(t *testing.T) {
	store := newStore(t)
	obs := &mockObs{}
	src := lines.FromStrings(
		"---START_DUMP---",
		"10,120.5,3.2,7.1,OK",
		"bad,line",
		"20,121,3,7,OK",
		"30,abc,3,7,OK",
		"---END_DUMP---",
	)

	rep, err := RunDumpSession(context.Background(), newSession(), src, store, nil, obs)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if rep.Accepted != 2 || rep.Rejected != 2 {
		t.Fatalf("expected 2 accepted and 2 rejected, got %+v", rep)
	}
	if len(storedRows(t, store)) != 2 {
		t.Fatalf("expected malformed lines to produce no rows")
	}
	if obs.rejected["field_count"] != 1 || obs.rejected["tds"] != 1 {
		t.Fatalf("unexpected rejection reasons %v", obs.rejected)
	}
}

func TestRunDumpSessionIncompleteKeepsReadings(t *testing.T) {
	store := newStore(t)
	obs := &mockObs{}
	src := lines.FromStrings("---START_DUMP---", "10,120.5,3.2,7.1,OK", "20,121,3,7,OK")

	rep, err := RunDumpSession(context.Background(), newSession(), src, store, nil, obs)
	if err != nil {
		t.Fatalf("exhausted stream must not be an error, got %v", err)
	}
	if rep.Complete {
		t.Fatalf("expected session to be reported incomplete")
	}
	if rep.Outcome() != "incomplete" {
		t.Fatalf("unexpected outcome %s", rep.Outcome())
	}
	if len(storedRows(t, store)) != 2 {
		t.Fatalf("expected readings of an incomplete dump to be kept")
	}
	if len(obs.warnings) == 0 {
		t.Fatalf("expected a warning about the missing end sentinel")
	}
}

func TestRunDumpSessionEmptyPayload(t *testing.T) {
	store := newStore(t)
	src := lines.FromStrings("---START_DUMP---", "---END_DUMP---")

	rep, err := RunDumpSession(context.Background(), newSession(), src, store, nil, &mockObs{})
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if rep.Accepted != 0 || !rep.Complete {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(storedRows(t, store)) != 0 {
		t.Fatalf("expected no rows")
	}
}

func TestRunDumpSessionIgnoresLinesOutsideFrame(t *testing.T) {
	var got []domain.StoredReading
	cb := sink.NewCallbackSink("capture", func(rs []domain.StoredReading) error {
		got = append(got, rs...)
		return nil
	})
	src := lines.FromStrings(
		"1,1,1,1,BEFORE",
		"---START_DUMP---",
		"2,2,2,2,R1",
		"3,3,3,3,R2",
		"1,9,9,9,R3",
		"---END_DUMP---",
		"4,4,4,4,AFTER",
	)

	rep, err := RunDumpSession(context.Background(), newSession(), src, cb, nil, &mockObs{})
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if rep.Accepted != 3 {
		t.Fatalf("expected 3 accepted, got %d", rep.Accepted)
	}
	want := []string{"R1", "R2", "R3"}
	for i, w := range want {
		if got[i].Status != w {
			t.Fatalf("expected arrival order %v, got %+v", want, got)
		}
		if i > 0 && got[i].ID <= got[i-1].ID {
			t.Fatalf("expected increasing ids, got %+v", got)
		}
	}
}

type failingSource struct {
	lines []string
	err   error
}

func (f *failingSource) Next() (string, error) {
	if len(f.lines) == 0 {
		return "", f.err
	}
	l := f.lines[0]
	f.lines = f.lines[1:]
	return l, nil
}

func (f *failingSource) Close() error { return nil }

func TestRunDumpSessionTransportFailureThenRecover(t *testing.T) {
	store := newStore(t)
	jr, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer jr.Close()
	obs := &mockObs{}

	src := &failingSource{
		lines: []string{"---START_DUMP---", "10,120.5,3.2,7.1,OK", "bad", "20,121,3,7,OK"},
		err:   errors.New("device disconnected"),
	}

	_, err = RunDumpSession(context.Background(), newSession(), src, store, jr, obs)
	if err == nil {
		t.Fatalf("expected transport failure")
	}
	if !errors.Is(obs.lastErr, err) {
		t.Fatalf("expected failed session to be recorded with its cause")
	}
	if len(storedRows(t, store)) != 0 {
		t.Fatalf("expected uncommitted readings to be rolled back")
	}
	if !Pending(jr) {
		t.Fatalf("expected journal to hold the interrupted lines")
	}

	reports, err := RecoverJournal(context.Background(), jr, store, obs)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(reports) != 1 || reports[0].Accepted != 2 || reports[0].Rejected != 1 {
		t.Fatalf("unexpected recovery reports %+v", reports)
	}
	rows := storedRows(t, store)
	if len(rows) != 2 || rows[1].RealTime.Format(domain.RealTimeLayout) != "2024-01-01 00:00:20" {
		t.Fatalf("unexpected recovered rows %+v", rows)
	}
	if Pending(jr) {
		t.Fatalf("expected journal to be settled after recovery")
	}
	if reports, err := RecoverJournal(context.Background(), jr, store, obs); err != nil || len(reports) != 0 {
		t.Fatalf("expected second recovery to be a no-op, got %v %v", reports, err)
	}
}

func TestRunDumpSessionSettlesJournal(t *testing.T) {
	store := newStore(t)
	jr, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer jr.Close()

	src := lines.FromStrings("---START_DUMP---", "10,120.5,3.2,7.1,OK", "---END_DUMP---")
	if _, err := RunDumpSession(context.Background(), newSession(), src, store, jr, &mockObs{}); err != nil {
		t.Fatalf("run session: %v", err)
	}
	if Pending(jr) {
		t.Fatalf("expected committed session to leave nothing pending")
	}
	if jr.Stats().SizeBytes != 0 {
		t.Fatalf("expected journal to be compacted")
	}
}

type failingSink struct{ ports.Sink }

func (failingSink) Begin(context.Context) (ports.Batch, error) { return nil, io.ErrClosedPipe }
func (failingSink) Name() string                              { return "broken" }

func TestRunDumpSessionSinkUnavailable(t *testing.T) {
	src := lines.FromStrings("---START_DUMP---", "1,1,1,1,OK")
	if _, err := RunDumpSession(context.Background(), newSession(), src, failingSink{}, nil, &mockObs{}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

type mockObs struct {
	warnings []string
	errors   []error
	rejected map[string]int
	sessions int
	lastErr  error
}

func (m *mockObs) LogDebug(string, ...ports.Field)               {}
func (m *mockObs) LogInfo(string, ...ports.Field)                {}
func (m *mockObs) LogWarn(msg string, _ ...ports.Field)          { m.warnings = append(m.warnings, msg) }
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) { m.errors = append(m.errors, err) }
func (m *mockObs) IncCounter(string, float64)                    {}
func (m *mockObs) ObserveLatency(string, float64)                {}
func (m *mockObs) SetGauge(string, float64)                      {}

func (m *mockObs) RecordRejected(_ string, reason string) {
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
}

func (m *mockObs) RecordSession(_ domain.Report, err error) {
	m.sessions++
	m.lastErr = err
}

func TestRunDumpSessionRejectsUptimePastYear9999(t *testing.T) {
	store := newStore(t)
	obs := &mockObs{}

	src := lines.FromStrings("---START_DUMP---", "10,120.5,3.2,7.1,OK", "300000000000,1,1,1,OK", "---END_DUMP---")
	rep, err := RunDumpSession(context.Background(), newSession(), src, store, nil, obs)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if rep.Accepted != 1 || rep.Rejected != 1 || obs.rejected["uptime"] != 1 {
		t.Fatalf("expected the far-future line to be rejected, got %+v %v", rep, obs.rejected)
	}

	rows := storedRows(t, store)
	if len(rows) != 1 || rows[0].UptimeSeconds != 10 {
		t.Fatalf("expected the table to stay readable with one row, got %+v", rows)
	}
}

// refusingSink fails Append for readings with the given status, the way a
// store rejects a value its column cannot hold.
type refusingSink struct {
	ports.Sink
	status string
}

func (s *refusingSink) Begin(ctx context.Context) (ports.Batch, error) {
	b, err := s.Sink.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &refusingBatch{Batch: b, status: s.status}, nil
}

type refusingBatch struct {
	ports.Batch
	status string
}

func (b *refusingBatch) Append(ctx context.Context, r *domain.Reading) (int64, error) {
	if r.Status == b.status {
		return 0, errors.New("timestamp out of range")
	}
	return b.Batch.Append(ctx, r)
}

func TestRecoverJournalSetsAsideRefusedLines(t *testing.T) {
	store := newStore(t)
	snk := &refusingSink{Sink: store, status: "POISON"}
	jr, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer jr.Close()
	obs := &mockObs{}

	src := lines.FromStrings("---START_DUMP---", "10,1,1,7,OK", "20,1,1,7,POISON", "junk", "30,1,1,7,OK", "---END_DUMP---")
	if _, err := RunDumpSession(context.Background(), newSession(), src, snk, jr, obs); err == nil {
		t.Fatalf("expected the refused insert to fail the live session")
	}
	if !Pending(jr) {
		t.Fatalf("expected lines of the failed session to stay journaled")
	}

	reports, err := RecoverJournal(context.Background(), jr, snk, obs)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one recovered session, got %+v", reports)
	}
	rep := reports[0]
	if rep.Accepted != 2 || rep.Rejected != 2 || rep.SetAside == "" {
		t.Fatalf("unexpected recovery report %+v", rep)
	}
	if obs.rejected[ReasonRefused] != 1 || obs.rejected["field_count"] != 1 {
		t.Fatalf("unexpected rejection counts %v", obs.rejected)
	}

	rows := storedRows(t, store)
	if len(rows) != 2 || rows[0].UptimeSeconds != 10 || rows[1].UptimeSeconds != 30 {
		t.Fatalf("expected the good lines to be stored, got %+v", rows)
	}
	data, err := os.ReadFile(rep.SetAside)
	if err != nil {
		t.Fatalf("read set-aside file: %v", err)
	}
	if !strings.Contains(string(data), "20,1,1,7,POISON\n") || strings.Contains(string(data), "30,1,1,7,OK") {
		t.Fatalf("expected only the refused line to be set aside, got:\n%s", data)
	}
	if Pending(jr) {
		t.Fatalf("expected journal to be settled after setting lines aside")
	}
}

func TestRecoverJournalKeepsEntriesWhenSinkUnavailable(t *testing.T) {
	jr, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer jr.Close()
	if _, err := jr.Append(&ports.JournalEntry{SessionID: "s", Start: sessionStart, Line: "1,1,1,1,OK"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := RecoverJournal(context.Background(), jr, failingSink{}, &mockObs{}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if !Pending(jr) {
		t.Fatalf("expected entries to stay pending while the sink is down")
	}
}
