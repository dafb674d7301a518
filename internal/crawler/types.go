package crawler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunState represents the lifecycle state of a station run.
type RunState string

// Run states reported by the Runner.
const (
	RunStateFresh            RunState = "fresh"
	RunStateRunning          RunState = "running"
	RunStateSucceeded        RunState = "succeeded"
	RunStateFailedAborted    RunState = "failed_aborted"
	RunStateFailedIncomplete RunState = "failed_incomplete"
)

// MonthKey identifies one fetch/parse/write cycle.
type MonthKey struct {
	Year  int
	Month time.Month
}

// NewMonthKey builds a MonthKey, rejecting months outside 1-12.
func NewMonthKey(year, month int) (MonthKey, error) {
	if month < 1 || month > 12 {
		return MonthKey{}, fmt.Errorf("month %d out of range 1-12", month)
	}
	if year < 1800 {
		return MonthKey{}, fmt.Errorf("year %d before 1800", year)
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// ParseMonthKey parses "YYYY-MM".
func ParseMonthKey(s string) (MonthKey, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return MonthKey{}, fmt.Errorf("month %q is not YYYY-MM", s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return MonthKey{}, fmt.Errorf("month %q: bad year: %w", s, err)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return MonthKey{}, fmt.Errorf("month %q: bad month: %w", s, err)
	}
	return NewMonthKey(year, month)
}

// Days returns the number of calendar days in the month.
func (m MonthKey) Days() int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Before reports whether m sorts strictly before other.
func (m MonthKey) Before(other MonthKey) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// Next returns the following month.
func (m MonthKey) Next() MonthKey {
	if m.Month == time.December {
		return MonthKey{Year: m.Year + 1, Month: time.January}
	}
	return MonthKey{Year: m.Year, Month: m.Month + 1}
}

// String renders the key as YYYY-MM.
func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MonthRange returns every MonthKey from start to end inclusive, ascending.
// An inverted range yields nothing.
func MonthRange(start, end MonthKey) []MonthKey {
	var out []MonthKey
	for m := start; !end.Before(m); m = m.Next() {
		out = append(out, m)
	}
	return out
}

// StationRun identifies one invocation of the pipeline for a station.
type StationRun struct {
	StationID  string
	Start      MonthKey
	End        MonthKey
	OutputRoot string
}

// Validate enforces the run's caller contract.
func (r StationRun) Validate() error {
	if r.StationID == "" {
		return fmt.Errorf("station id is required")
	}
	if strings.ContainsAny(r.StationID, `/\`) || strings.Contains(r.StationID, "..") || r.StationID == "." {
		return fmt.Errorf("station id %q must be a single path element", r.StationID)
	}
	if r.OutputRoot == "" {
		return fmt.Errorf("output root is required")
	}
	for _, m := range []MonthKey{r.Start, r.End} {
		if _, err := NewMonthKey(m.Year, int(m.Month)); err != nil {
			return err
		}
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("start %s is after end %s", r.Start, r.End)
	}
	return nil
}

// DirName is the per-range directory under the station directory.
func (r StationRun) DirName() string {
	return fmt.Sprintf("%04d-%02d-%04d-%02d", r.Start.Year, int(r.Start.Month), r.End.Year, int(r.End.Month))
}

// Record is one table row mapped through the column schema.
type Record struct {
	// Timestamp is the calendar day in YYYY-MM-DD form.
	Timestamp string
	Fields    map[string]string
}

// Report summarizes a finished run.
type Report struct {
	RunID         string
	StationID     string
	Destination   string
	State         RunState
	StartedAt     time.Time
	FinishedAt    time.Time
	MonthsOK      int
	MonthsNoData  int
	FailedMonths  []MonthKey
	LinesPerField map[string]int
}
