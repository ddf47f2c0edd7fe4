package domain

import "time"

// Session is one request→ingest run against a single buoy dump.
// Start is fixed for the lifetime of the session.
type Session struct {
	ID       string
	Start    time.Time
	Accepted int
	Rejected int
}

// Report summarizes a finished session.
type Report struct {
	SessionID string
	Start     time.Time
	Accepted  int
	Rejected  int
	// Complete is false when the stream ran out before the end sentinel.
	Complete bool
	Duration time.Duration
	// SetAside names the file holding recovered lines the store refused.
	SetAside string
}

// Outcome labels a session result for logs and metrics.
func (r Report) Outcome() string {
	if r.Complete {
		return "complete"
	}
	return "incomplete"
}
