package orchestrator

import (
	"time"

	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/workflow/engine"
	"github.com/kingrea/warden/internal/workflow/scheduler"
)

// Report is the per-tick status handed to presentation. It holds only value
// copies.
type Report struct {
	At      time.Time                       `json:"at"`
	Tick    uint64                          `json:"tick"`
	Active  bool                            `json:"active"`
	Current *RunReport                      `json:"current,omitempty"`
	Tasks   []task.Info                     `json:"tasks"`
	Skipped map[string]scheduler.SkipReason `json:"skipped,omitempty"`
	Last    *Outcome                        `json:"last,omitempty"`
	// Warnings collects condition evaluation failures from this tick.
	Warnings []string `json:"warnings,omitempty"`
}

// RunReport describes the run in progress.
type RunReport struct {
	Task       string          `json:"task"`
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	Lifecycle  task.Lifecycle  `json:"lifecycle"`
	Execution  engine.Snapshot `json:"execution"`
	StopMet    bool            `json:"stop_met"`
	Locked     bool            `json:"locked"`
	StopReason task.StopReason `json:"stop_reason,omitempty"`
	SoftStopAt time.Time       `json:"soft_stop_at,omitempty"`
	// StopTree is the rendered stop-condition tree.
	StopTree      string `json:"stop_tree,omitempty"`
	StopProgress  [2]int `json:"stop_progress"`
	StartProgress [2]int `json:"start_progress"`
}

// Outcome records how the last run ended.
type Outcome struct {
	Task       string          `json:"task"`
	RunID      string          `json:"run_id"`
	Result     task.Result     `json:"result"`
	Reason     task.StopReason `json:"reason"`
	Message    string          `json:"message,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Skipped    []string        `json:"skipped,omitempty"`
}

// Sink receives a report after every tick of Run.
type Sink func(Report)

func cloneSkipped(values map[string]scheduler.SkipReason) map[string]scheduler.SkipReason {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]scheduler.SkipReason, len(values))
	for name, reason := range values {
		out[name] = reason
	}
	return out
}
