package record

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/werpogo98-bit/buoysync/internal/app/timeline"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseValidLine(t *testing.T) {
	out := Parse("10,120.5,3.2,7.1,OK", start)
	if !out.Accepted() || out.Rejection != nil {
		t.Fatalf("expected accepted line, got %v", out.Rejection)
	}

	r := out.Reading
	if r.UptimeSeconds != 10 || r.TDS != 120.5 || r.Turb != 3.2 || r.PH != 7.1 || r.Status != "OK" {
		t.Fatalf("unexpected reading %+v", r)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC); !r.RealTime.Equal(want) {
		t.Fatalf("expected real time %s, got %s", want, r.RealTime)
	}
}

func TestParseToleratesPaddedNumbers(t *testing.T) {
	out := Parse(" 20 , 121 ,3, 7 ,LOW_BAT", start)
	if !out.Accepted() {
		t.Fatalf("expected accepted line, got %v", out.Rejection)
	}
	if out.Reading.UptimeSeconds != 20 || out.Reading.TDS != 121 || out.Reading.Status != "LOW_BAT" {
		t.Fatalf("unexpected reading %+v", out.Reading)
	}
}

func TestParseKeepsStatusOpaque(t *testing.T) {
	out := Parse("1,1,1,1, ", start)
	if !out.Accepted() {
		t.Fatalf("expected accepted line, got %v", out.Rejection)
	}
	if out.Reading.Status != " " {
		t.Fatalf("expected status to be stored verbatim, got %q", out.Reading.Status)
	}
}

func TestParseNoRangeChecks(t *testing.T) {
	out := Parse("5,-3,1e6,42,ERR", start)
	if !out.Accepted() {
		t.Fatalf("expected implausible but numeric values to pass, got %v", out.Rejection)
	}
	if out.Reading.PH != 42 || out.Reading.TDS != -3 {
		t.Fatalf("unexpected reading %+v", out.Reading)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		line   string
		reason Reason
	}{
		{"bad,line", ReasonFieldCount},
		{"", ReasonFieldCount},
		{"1,2,3,4", ReasonFieldCount},
		{"1,2,3,4,OK,extra", ReasonFieldCount},
		{"x,2,3,4,OK", ReasonUptime},
		{"1.5,2,3,4,OK", ReasonUptime},
		{"-1,2,3,4,OK", ReasonUptime},
		{"300000000000,2,3,4,OK", ReasonUptime},
		{"9223372036854775807,2,3,4,OK", ReasonUptime},
		{"1,abc,3,4,OK", ReasonTDS},
		{"1,2,,4,OK", ReasonTurb},
		{"1,2,3,seven,OK", ReasonPH},
	}
	for _, tc := range cases {
		out := Parse(tc.line, start)
		if out.Accepted() || out.Reading != nil {
			t.Fatalf("expected %q to be rejected", tc.line)
		}
		if out.Rejection.Reason != tc.reason {
			t.Fatalf("line %q: expected reason %s, got %s", tc.line, tc.reason, out.Rejection.Reason)
		}
		if out.Rejection.Line != tc.line {
			t.Fatalf("expected rejection to carry the raw line, got %q", out.Rejection.Line)
		}
	}
}

func TestParseRejectsUptimePastYear9999(t *testing.T) {
	out := Parse("300000000000,1,1,1,OK", start)
	if out.Accepted() {
		t.Fatalf("expected far-future uptime to be rejected, got %s", out.Reading.RealTime)
	}
	if !errors.Is(out.Rejection, timeline.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", out.Rejection)
	}

	edge := time.Date(timeline.MaxYear, 12, 31, 23, 59, 59, 0, time.UTC).Unix() - start.Unix()
	out = Parse(fmt.Sprintf("%d,1,1,1,OK", edge), start)
	if !out.Accepted() || out.Reading.RealTime.Year() != timeline.MaxYear {
		t.Fatalf("expected the last second of year 9999 to be accepted, got %+v", out)
	}
}
