// Package dump frames the payload region of a buoy dump out of a raw line
// stream.
package dump

import (
	"errors"
	"io"
	"strings"

	"github.com/werpogo98-bit/buoysync/internal/ports"
)

const (
	StartSentinel = "---START_DUMP---"
	EndSentinel   = "---END_DUMP---"
)

type State int

const (
	AwaitingStart State = iota
	InDump
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting_start"
	case InDump:
		return "in_dump"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Framer yields only the lines strictly between the start and end
// sentinels. Sentinel lines are matched by substring, so device noise
// around them on the same line does not break framing.
type Framer struct {
	src       ports.LineSource
	state     State
	exhausted bool
}

func NewFramer(src ports.LineSource) *Framer {
	return &Framer{src: src, state: AwaitingStart}
}

// Next returns the next payload line. ok is false once framing has ended,
// either on the end sentinel or because the source ran dry. err is only
// set for transport failures.
func (f *Framer) Next() (line string, ok bool, err error) {
	for f.state != Done && !f.exhausted {
		raw, err := f.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.exhausted = true
				return "", false, nil
			}
			return "", false, err
		}

		switch f.state {
		case AwaitingStart:
			if strings.Contains(raw, StartSentinel) {
				f.state = InDump
			}
		case InDump:
			if strings.Contains(raw, EndSentinel) {
				f.state = Done
				return "", false, nil
			}
			// a repeated start marker is framing, not payload
			if strings.Contains(raw, StartSentinel) {
				continue
			}
			if strings.TrimSpace(raw) == "" {
				continue
			}
			return raw, true, nil
		}
	}
	return "", false, nil
}

func (f *Framer) State() State { return f.state }

// Complete reports whether the end sentinel was observed.
func (f *Framer) Complete() bool { return f.state == Done }

// Started reports whether the start sentinel was observed.
func (f *Framer) Started() bool { return f.state != AwaitingStart }
