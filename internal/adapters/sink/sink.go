// Package sink persists readings into durable stores. Every sink hands out
// one batch per dump; nothing is visible to readers until the batch commits.
package sink

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultTable matches the table the buoy tooling has always written to.
const DefaultTable = "measurements"

var (
	ErrSinkClosed   = errors.New("sink: closed")
	ErrBatchDone    = errors.New("sink: batch already committed or rolled back")
	ErrBatchOpen    = errors.New("sink: another batch is still open")
	ErrInvalidTable = errors.New("sink: invalid table name")
)

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateTable(table string) error {
	if !tableRe.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

const insertColumns = "(uptime_seconds, real_time, tds, turb, ph, status)"
