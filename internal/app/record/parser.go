// Package record turns payload lines of a buoy dump into typed readings.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/werpogo98-bit/buoysync/internal/app/timeline"
	"github.com/werpogo98-bit/buoysync/internal/domain"
)

// FieldCount is the number of comma separated fields in a data line:
// uptime, tds, turb, ph, status.
const FieldCount = 5

type Reason string

const (
	ReasonFieldCount Reason = "field_count"
	ReasonUptime     Reason = "uptime"
	ReasonTDS        Reason = "tds"
	ReasonTurb       Reason = "turb"
	ReasonPH         Reason = "ph"
)

var errNegativeUptime = errors.New("negative uptime")

// Rejection describes why a payload line produced no reading.
type Rejection struct {
	Line   string
	Reason Reason
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("rejected line %q (%s): %v", r.Line, r.Reason, r.Err)
	}
	return fmt.Sprintf("rejected line %q (%s)", r.Line, r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Outcome holds exactly one of Reading or Rejection.
type Outcome struct {
	Reading   *domain.Reading
	Rejection *Rejection
}

func (o Outcome) Accepted() bool { return o.Reading != nil }

// Parse validates one payload line and stamps it with its absolute time.
// Any numeric field that fails to parse rejects the whole line.
func Parse(line string, start time.Time) Outcome {
	parts := strings.Split(line, ",")
	if len(parts) != FieldCount {
		return reject(line, ReasonFieldCount, fmt.Errorf("got %d fields, want %d", len(parts), FieldCount))
	}

	uptime, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return reject(line, ReasonUptime, err)
	}
	if uptime < 0 {
		return reject(line, ReasonUptime, errNegativeUptime)
	}

	realTime, err := timeline.ResolveChecked(uptime, start)
	if err != nil {
		return reject(line, ReasonUptime, err)
	}

	var vals [3]float64
	for i, reason := range [3]Reason{ReasonTDS, ReasonTurb, ReasonPH} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return reject(line, reason, err)
		}
		vals[i] = v
	}

	return Outcome{Reading: &domain.Reading{
		UptimeSeconds: uptime,
		RealTime:      realTime,
		TDS:           vals[0],
		Turb:          vals[1],
		PH:            vals[2],
		Status:        parts[4],
	}}
}

func reject(line string, reason Reason, err error) Outcome {
	return Outcome{Rejection: &Rejection{Line: line, Reason: reason, Err: err}}
}
