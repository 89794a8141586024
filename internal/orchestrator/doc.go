// Package orchestrator selects and supervises the single running task. Each
// Tick drains queued signals, evaluates the current task's stop conditions,
// escalates stops, drives the task's execution machine one step and, when
// nothing is running, picks the next task to start. Every tick returns a
// Report describing the resulting state.
package orchestrator
