// Package task defines the schedulable unit the orchestrator supervises: its
// conditions, requirements, trigger and the opaque logic it runs.
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/warden/internal/condition"
	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/world"
)

// Lifecycle is the orchestrator-facing state of a task.
type Lifecycle string

const (
	LifecycleIdle              Lifecycle = "idle"
	LifecycleStarting          Lifecycle = "starting"
	LifecycleRunning           Lifecycle = "running"
	LifecycleSoftStopRequested Lifecycle = "soft_stop_requested"
	LifecycleStopped           Lifecycle = "stopped"
	LifecycleFinished          Lifecycle = "finished"
)

// Active reports whether the task currently occupies the orchestrator.
func (l Lifecycle) Active() bool {
	switch l {
	case LifecycleStarting, LifecycleRunning, LifecycleSoftStopRequested:
		return true
	default:
		return false
	}
}

// Result is how a run ended from the task's own point of view.
type Result string

const (
	ResultSuccess     Result = "success"
	ResultSoftFailure Result = "soft_failure"
	// ResultHardFailure also disables the task until re-enabled.
	ResultHardFailure Result = "hard_failure"
)

// StopReason records why a run ended.
type StopReason string

const (
	StopReasonNone            StopReason = "none"
	StopReasonConditionsMet   StopReason = "conditions_met"
	StopReasonManualStop      StopReason = "manual_stop"
	StopReasonFinished        StopReason = "finished"
	StopReasonError           StopReason = "error"
	StopReasonRequirements    StopReason = "requirements_failed"
	StopReasonHardStopTimeout StopReason = "hard_stop_timeout"
)

// Status is returned by Logic.Step.
type Status int

const (
	Continue Status = iota
	Done
)

// Env is what a task's logic receives on every step.
type Env struct {
	Now      time.Time
	State    world.State
	Actions  world.Actions
	Reporter Reporter
}

// Logic is the task behaviour proper. Step is called once per tick while the
// run is in its main phase and must not block past that tick.
type Logic interface {
	Step(ctx context.Context, env Env) (Status, error)
}

// StepFunc adapts a function into Logic.
type StepFunc func(ctx context.Context, env Env) (Status, error)

func (f StepFunc) Step(ctx context.Context, env Env) (Status, error) { return f(ctx, env) }

// Starter is implemented by logic that needs per-run setup.
type Starter interface {
	OnStart(ctx context.Context, env Env) error
}

// SoftStopper is implemented by logic that wants to be told when a soft stop
// is requested. It is also the fallback used when a task reports itself
// finished while no orchestrator is running.
type SoftStopper interface {
	OnSoftStop(reason StopReason)
}

// HardStopper is implemented by logic that must clean up when terminated.
type HardStopper interface {
	OnHardStop()
}

// Queryable is an optional, versioned interface a task's logic can expose so
// other tasks may read selected values. Callers ask for a minimum version and
// treat anything older, or a missing implementation, as unsupported.
type Queryable interface {
	QueryVersion() int
	Query(key string) (any, bool)
}

// Reporter lets running logic end its own run early.
type Reporter interface {
	// ReportFinished returns false when the report was not accepted, for
	// example because the run it belongs to is no longer current.
	ReportFinished(reason string, result Result) bool
}

// Task is one independently schedulable automation unit.
type Task struct {
	Name        string
	Description string
	Enabled     bool
	Priority    int
	Default     bool
	Trigger     Trigger

	Start        *condition.Node
	Stop         *condition.Node
	Requirements *requirement.Registry
	Logic        Logic

	AllowHardStop bool
	// ImmediateHardStop skips the soft-stop grace period when stopping.
	ImmediateHardStop bool

	// Runtime bookkeeping, owned by the orchestrator's tick goroutine.
	Lifecycle   Lifecycle
	LastRun     time.Time
	RunCount    int
	LastResult  Result
	LastReason  StopReason
	LastMessage string
}

// Validate checks the task can be registered.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task: nil task")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task: name is required")
	}
	if t.Logic == nil {
		return fmt.Errorf("task %s: logic is required", t.Name)
	}
	if t.Trigger == nil {
		return fmt.Errorf("task %s: trigger is required", t.Name)
	}
	if t.Start != nil {
		if err := condition.Validate(t.Start); err != nil {
			return fmt.Errorf("task %s: start conditions: %w", t.Name, err)
		}
	}
	if t.Stop != nil {
		if err := condition.Validate(t.Stop); err != nil {
			return fmt.Errorf("task %s: stop conditions: %w", t.Name, err)
		}
	}
	return nil
}

// Info is a value copy of a task's identity and bookkeeping for display.
type Info struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	Priority    int        `json:"priority"`
	Default     bool       `json:"default,omitempty"`
	Trigger     string     `json:"trigger"`
	Lifecycle   Lifecycle  `json:"lifecycle"`
	LastRun     time.Time  `json:"last_run,omitempty"`
	RunCount    int        `json:"run_count"`
	LastResult  Result     `json:"last_result,omitempty"`
	LastReason  StopReason `json:"last_reason,omitempty"`
	LastMessage string     `json:"last_message,omitempty"`
}

// Info snapshots the task.
func (t *Task) Info() Info {
	info := Info{
		Name:        t.Name,
		Description: t.Description,
		Enabled:     t.Enabled,
		Priority:    t.Priority,
		Default:     t.Default,
		Lifecycle:   t.Lifecycle,
		LastRun:     t.LastRun,
		RunCount:    t.RunCount,
		LastResult:  t.LastResult,
		LastReason:  t.LastReason,
		LastMessage: t.LastMessage,
	}
	if info.Lifecycle == "" {
		info.Lifecycle = LifecycleIdle
	}
	if t.Trigger != nil {
		info.Trigger = t.Trigger.Describe()
	}
	return info
}
