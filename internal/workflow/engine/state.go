package engine

import (
	"fmt"
	"time"
)

// Phase is the coarse position of a run relative to the task's main logic.
type Phase string

const (
	PhaseIdle Phase = "idle"
	PhasePre  Phase = "pre"
	PhaseMain Phase = "main"
	PhasePost Phase = "post"
)

// Status enumerates the execution states of a run.
type Status string

const (
	StatusStarting               Status = "starting"
	StatusFulfillingRequirements Status = "fulfilling_requirements"
	StatusCustomTasks            Status = "custom_tasks"
	StatusCompleted              Status = "completed"
	StatusFailed                 Status = "failed"
	StatusError                  Status = "error"
)

// Terminal reports whether no further ticks will change the run.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// Snapshot is a value copy of a machine's execution state.
type Snapshot struct {
	Phase       Phase    `json:"phase"`
	Status      Status   `json:"status"`
	Step        int      `json:"step"`
	TotalSteps  int      `json:"total_steps"`
	Current     string   `json:"current,omitempty"`
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`
	HasError    bool     `json:"has_error,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Skipped     []string `json:"skipped,omitempty"`
	Stopping    bool     `json:"stopping,omitempty"`
	// Generation is the requirement registry version the current phase walks.
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the run has finished.
func (s Snapshot) Terminal() bool { return s.Status.Terminal() }

// Details renders the one-line progress text shown on the status board.
func (s Snapshot) Details() string {
	switch s.Status {
	case StatusFulfillingRequirements:
		if s.Current == "" {
			return fmt.Sprintf("Fulfilling %s requirements", s.Phase)
		}
		if s.Attempt > 0 {
			return fmt.Sprintf("Processing: %s (%d/%d) attempt %d/%d", s.Current, s.Step, s.TotalSteps, s.Attempt, s.MaxAttempts)
		}
		return fmt.Sprintf("Processing: %s (%d/%d)", s.Current, s.Step, s.TotalSteps)
	case StatusCustomTasks:
		return "Running task logic"
	case StatusFailed, StatusError:
		return fmt.Sprintf("%s: %s", s.Status, s.Reason)
	case StatusCompleted:
		if len(s.Skipped) > 0 {
			return fmt.Sprintf("Completed (%d recommended skipped)", len(s.Skipped))
		}
		return "Completed"
	default:
		return string(s.Status)
	}
}

func (s Snapshot) clone() Snapshot {
	if len(s.Skipped) > 0 {
		s.Skipped = append([]string(nil), s.Skipped...)
	}
	return s
}
