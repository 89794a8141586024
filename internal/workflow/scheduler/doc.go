// Package scheduler decides which registered task should run next. It filters
// candidates that are disabled, not yet due, already active or whose start
// conditions do not hold, records why each was skipped, and ranks the rest.
package scheduler
