// Package engine drives one task run through its execution phases: fulfil the
// pre requirements, run the task's main logic, then fulfil the post
// requirements. A Machine advances exactly one step per Tick and reports its
// progress as a Snapshot value.
package engine
