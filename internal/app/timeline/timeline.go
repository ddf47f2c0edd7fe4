// Package timeline maps device uptime onto wall-clock time.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeOfDayLayout is what operators type for the buoy power-on time.
// Minutes and seconds accept one or two digits.
const TimeOfDayLayout = "15:4:5"

// MaxYear is the last calendar year a reconstructed time may fall in; the
// stored "YYYY-MM-DD HH:MM:SS" text has room for four year digits only.
const MaxYear = 9999

var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day, want HH:MM:SS")
	ErrOutOfRange       = errors.New("uptime puts the reading past year 9999")
)

// Resolve returns start + uptimeSeconds. It is pure: identical inputs
// always produce the identical instant.
func Resolve(uptimeSeconds int64, start time.Time) time.Time {
	return time.Unix(start.Unix()+uptimeSeconds, int64(start.Nanosecond())).In(start.Location())
}

// ResolveChecked is Resolve for untrusted uptimes. It fails with
// ErrOutOfRange when start + uptime overflows or lands after MaxYear in
// start's location.
func ResolveChecked(uptimeSeconds int64, start time.Time) (time.Time, error) {
	if base := start.Unix(); uptimeSeconds > 0 && base > math.MaxInt64-uptimeSeconds {
		return time.Time{}, fmt.Errorf("%w: %d seconds", ErrOutOfRange, uptimeSeconds)
	}
	t := Resolve(uptimeSeconds, start)
	if t.Year() > MaxYear {
		return time.Time{}, fmt.Errorf("%w: %d seconds", ErrOutOfRange, uptimeSeconds)
	}
	return t, nil
}

// ResolveStart builds the session start from an operator supplied time of
// day on now's calendar date. An empty input yields now. An unparsable
// input also yields now, together with an error the caller should surface
// as a warning. The result is always whole seconds.
func ResolveStart(input string, now time.Time) (time.Time, error) {
	now = now.Truncate(time.Second)
	input = strings.TrimSpace(input)
	if input == "" {
		return now, nil
	}

	t, err := time.Parse(TimeOfDayLayout, input)
	if err != nil {
		return now, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, input)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
}
