package scheduler

import (
	"sort"
	"time"
)

// Candidate is the scheduler's view of one registered task.
type Candidate struct {
	Name string
	// Order is the registration index, the final tie breaker.
	Order    int
	Priority int
	// Default tasks lose ties against non-default ones at equal priority.
	Default bool
	Enabled bool
	Active  bool
	// Due reports whether the trigger allows a run now; DueAt is when it
	// became due.
	Due   bool
	DueAt time.Time
	// StartReady is the evaluated start-condition tree.
	StartReady  bool
	StartDetail string
}

// SkipReason explains why a candidate was excluded.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
}

// SkipReasonCode enumerates scheduler skip reasons.
type SkipReasonCode string

const (
	SkipReasonDisabled        SkipReasonCode = "disabled"
	SkipReasonActive          SkipReasonCode = "already-running"
	SkipReasonNotDue          SkipReasonCode = "not-due"
	SkipReasonStartConditions SkipReasonCode = "start-conditions"
)

// Decision describes the scheduler's choice.
type Decision struct {
	// Winner is nil when no candidate is eligible.
	Winner *Candidate
	// Eligible lists every eligible candidate in rank order.
	Eligible []Candidate
	Skipped  map[string]SkipReason
}

// Select filters and ranks candidates: highest priority first, then
// non-default, then the earliest due time, then registration order.
func Select(candidates []Candidate) Decision {
	result := Decision{}
	for _, c := range candidates {
		switch {
		case !c.Enabled:
			result.addSkip(c.Name, SkipReason{Reason: SkipReasonDisabled, Detail: "task disabled"})
		case c.Active:
			result.addSkip(c.Name, SkipReason{Reason: SkipReasonActive, Detail: "task already running"})
		case !c.Due:
			detail := "trigger not due"
			if !c.DueAt.IsZero() {
				detail = "due at " + c.DueAt.Format(time.RFC3339)
			}
			result.addSkip(c.Name, SkipReason{Reason: SkipReasonNotDue, Detail: detail})
		case !c.StartReady:
			detail := c.StartDetail
			if detail == "" {
				detail = "start conditions not met"
			}
			result.addSkip(c.Name, SkipReason{Reason: SkipReasonStartConditions, Detail: detail})
		default:
			result.Eligible = append(result.Eligible, c)
		}
	}
	sort.SliceStable(result.Eligible, func(i, j int) bool {
		return before(result.Eligible[i], result.Eligible[j])
	})
	if len(result.Eligible) > 0 {
		winner := result.Eligible[0]
		result.Winner = &winner
	}
	return result
}

func before(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Default != b.Default {
		return !a.Default
	}
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	return a.Order < b.Order
}

func (d *Decision) addSkip(name string, reason SkipReason) {
	if name == "" {
		return
	}
	if d.Skipped == nil {
		d.Skipped = make(map[string]SkipReason)
	}
	d.Skipped[name] = reason
}
