// Package journal keeps raw dump lines on disk until the store has
// committed them, so a crash between reading and committing loses nothing.
package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/werpogo98-bit/buoysync/internal/domain"
	"github.com/werpogo98-bit/buoysync/internal/ports"
)

const (
	logName  = "dump.journal"
	metaName = "dump.journal.meta"

	// record layout: [8 bytes id][4 bytes len][len bytes json]
	recordHeaderLen = 12
)

var ErrClosed = errors.New("journal: closed")

// errTorn marks a record cut short by a crash mid-write.
var errTorn = errors.New("journal: torn record")

type meta struct {
	Committed ports.JournalEntryID `json:"committed"`
}

type FileJournal struct {
	mu        sync.Mutex
	dir       string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.JournalEntryID
	committed ports.JournalEntryID
	sizeBytes int64
}

func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, logName), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	j := &FileJournal{dir: dir, file: f, writer: bufio.NewWriterSize(f, 64<<10)}
	if err := j.open(); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) path() string     { return filepath.Join(j.dir, logName) }
func (j *FileJournal) metaPath() string { return filepath.Join(j.dir, metaName) }

func (j *FileJournal) open() error {
	valid, lastID, err := j.scan()
	if err != nil {
		return err
	}
	if info, err := j.file.Stat(); err != nil {
		return err
	} else if valid < info.Size() {
		if err := j.file.Truncate(valid); err != nil {
			return fmt.Errorf("journal: cut torn tail: %w", err)
		}
	}
	j.sizeBytes = valid

	m, err := readMeta(j.metaPath())
	if err != nil {
		return err
	}
	j.committed = m.Committed
	// an empty log after compaction still continues the id sequence
	j.nextID = max(lastID, j.committed)
	return nil
}

// scan walks the log and returns the byte length of its intact prefix and
// the id of the last intact record.
func (j *FileJournal) scan() (int64, ports.JournalEntryID, error) {
	f, err := os.Open(j.path())
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var (
		r      = bufio.NewReader(f)
		valid  int64
		lastID ports.JournalEntryID
	)
	for {
		id, body, err := readRecord(r)
		if errors.Is(err, io.EOF) || errors.Is(err, errTorn) {
			return valid, lastID, nil
		}
		if err != nil {
			return 0, 0, fmt.Errorf("journal scan: %w", err)
		}
		valid += recordHeaderLen + int64(len(body))
		lastID = id
	}
}

func readRecord(r *bufio.Reader) (ports.JournalEntryID, []byte, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTorn
		}
		return 0, nil, err
	}
	body := make([]byte, binary.BigEndian.Uint32(hdr[8:]))
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTorn
		}
		return 0, nil, err
	}
	return ports.JournalEntryID(binary.BigEndian.Uint64(hdr[:8])), body, nil
}

func readMeta(path string) (meta, error) {
	var m meta
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("journal meta %s: %w", path, err)
	}
	return m, nil
}

// writeMeta replaces the meta file atomically: a crash leaves either the
// old watermark or the new one, never a truncated file.
func writeMeta(path string, m meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), metaName+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (j *FileJournal) Append(e *ports.JournalEntry) (ports.JournalEntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, ErrClosed
	}

	body, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	id := j.nextID + 1
	rec := make([]byte, 0, recordHeaderLen+len(body))
	rec = binary.BigEndian.AppendUint64(rec, uint64(id))
	rec = binary.BigEndian.AppendUint32(rec, uint32(len(body)))
	rec = append(rec, body...)

	if _, err := j.writer.Write(rec); err != nil {
		return 0, err
	}
	j.nextID = id
	j.sizeBytes += int64(len(rec))
	return id, nil
}

// Sync flushes buffered entries and fsyncs the journal file.
func (j *FileJournal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Iterate calls fn for every entry with id >= from, in append order.
func (j *FileJournal) Iterate(from ports.JournalEntryID, fn func(id ports.JournalEntryID, e *ports.JournalEntry) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(j.path())
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		id, body, err := readRecord(r)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("corrupt journal: %w", err)
		case id < from:
			continue
		}

		var e ports.JournalEntry
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if err := fn(id, &e); err != nil {
			return err
		}
	}
}

// Commit moves the watermark to upto. It never moves backwards.
func (j *FileJournal) Commit(upto ports.JournalEntryID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	if upto <= j.committed {
		return nil
	}
	if err := writeMeta(j.metaPath(), meta{Committed: upto}); err != nil {
		return fmt.Errorf("journal commit %d: %w", upto, err)
	}
	j.committed = upto
	return nil
}

// TruncateCommitted empties the log once every entry in it is committed.
// Entry ids keep increasing across truncation.
func (j *FileJournal) TruncateCommitted() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	if j.committed < j.nextID || j.sizeBytes == 0 {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	j.sizeBytes = 0
	return nil
}

// SetAside writes lines the store refused into a standalone dump file next
// to the journal. The file carries the sentinels, so `replay --file` can
// ingest it once the store accepts the lines again.
func (j *FileJournal) SetAside(sessionID string, start time.Time, lines []string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return "", ErrClosed
	}

	path := filepath.Join(j.dir, fmt.Sprintf("failed-%s-%s.dump", start.Format("20060102T150405"), sessionID))
	var b strings.Builder
	fmt.Fprintf(&b, "# session %s start %s\n", sessionID, start.Format(domain.RealTimeLayout))
	b.WriteString("---START_DUMP---\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("---END_DUMP---\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("journal set aside %s: %w", sessionID, err)
	}
	return path, nil
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		OldestUncommitted: j.committed + 1,
		LatestAppended:    j.nextID,
		SizeBytes:         j.sizeBytes,
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	ferr := j.writer.Flush()
	cerr := j.file.Close()
	j.file = nil
	return errors.Join(ferr, cerr)
}

var _ ports.Journal = (*FileJournal)(nil)
