// Package lines adapts byte streams into the pull-based line source the
// dump pipeline consumes.
package lines

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/werpogo98-bit/buoysync/internal/ports"
)

// Source reads newline terminated lines from an io.Reader. Invalid UTF-8
// bytes are dropped and surrounding whitespace (including \r) trimmed.
// A trailing line without a newline is still returned before io.EOF.
type Source struct {
	r      *bufio.Reader
	closer io.Closer
	done   bool
}

// NewSource wraps r. If r is also an io.Closer, Close closes it.
func NewSource(r io.Reader) *Source {
	s := &Source{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// FromStrings is a Source over canned lines.
func FromStrings(lines ...string) *Source {
	return NewSource(strings.NewReader(strings.Join(lines, "\n")))
}

func (s *Source) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	raw, err := s.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		s.done = true
		if raw == "" {
			return "", io.EOF
		}
	}
	return clean(raw), nil
}

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func clean(raw string) string {
	return strings.TrimSpace(strings.ToValidUTF8(raw, ""))
}

var _ ports.LineSource = (*Source)(nil)
