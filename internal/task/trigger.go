package task

import (
	"fmt"
	"strings"
	"time"
)

// Trigger decides when a task becomes eligible to run. last is the start time
// of the previous run and runs the number of completed runs.
type Trigger interface {
	Due(now, last time.Time, runs int) (bool, time.Time)
	Describe() string
}

// Manual tasks only run when started explicitly.
type Manual struct{}

func (Manual) Due(time.Time, time.Time, int) (bool, time.Time) { return false, time.Time{} }
func (Manual) Describe() string                                { return "manual" }

// Interval tasks run every Every, measured from the previous start. The first
// run is due immediately.
type Interval struct {
	Every time.Duration
}

func (i Interval) Due(now, last time.Time, runs int) (bool, time.Time) {
	if runs == 0 || last.IsZero() {
		return true, time.Time{}
	}
	next := last.Add(i.Every)
	return !now.Before(next), next
}

func (i Interval) Describe() string { return "every " + i.Every.String() }

// Once runs a single time, not before At.
type Once struct {
	At time.Time
}

func (o Once) Due(now, _ time.Time, runs int) (bool, time.Time) {
	if runs > 0 {
		return false, time.Time{}
	}
	return !now.Before(o.At), o.At
}

func (o Once) Describe() string {
	if o.At.IsZero() {
		return "once"
	}
	return "once at " + o.At.Format(time.RFC3339)
}

// ParseTrigger builds a trigger from its definition form: kind is manual,
// interval or once; every is a duration for interval; at is RFC3339 for once.
func ParseTrigger(kind, every, at string) (Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "manual":
		return Manual{}, nil
	case "interval":
		d, err := time.ParseDuration(strings.TrimSpace(every))
		if err != nil {
			return nil, fmt.Errorf("task: interval trigger: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("task: interval trigger requires a positive duration")
		}
		return Interval{Every: d}, nil
	case "once":
		if strings.TrimSpace(at) == "" {
			return Once{}, nil
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(at))
		if err != nil {
			return nil, fmt.Errorf("task: once trigger: %w", err)
		}
		return Once{At: ts}, nil
	default:
		return nil, fmt.Errorf("task: unknown trigger %q", kind)
	}
}
