package ports

import "time"

type JournalEntryID uint64

// JournalEntry is one raw payload line as received from the buoy, tagged
// with the session it belongs to.
type JournalEntry struct {
	SessionID string    `json:"session_id"`
	Start     time.Time `json:"start"`
	Line      string    `json:"line"`
}

// Journal keeps payload lines on disk until the sink has committed them.
type Journal interface {
	Append(e *JournalEntry) (JournalEntryID, error)
	Sync() error
	Iterate(from JournalEntryID, fn func(id JournalEntryID, e *JournalEntry) error) error
	Commit(upto JournalEntryID) error
	TruncateCommitted() error
	// SetAside stores lines of a session the sink keeps refusing outside
	// the log and returns where they went.
	SetAside(sessionID string, start time.Time, lines []string) (string, error)
	Stats() JournalStats
	Close() error
}

type JournalStats struct {
	OldestUncommitted JournalEntryID
	LatestAppended    JournalEntryID
	SizeBytes         int64
}
