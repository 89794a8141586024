package orchestrator

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/warden/internal/task"
)

// ErrHistoryNotFound is returned when no persisted history exists yet.
var ErrHistoryNotFound = errors.New("orchestrator: history not found")

const maxHistoryRuns = 50

// History is the run bookkeeping that survives restarts.
type History struct {
	Tasks     map[string]TaskHistory `json:"tasks"`
	Runs      []Outcome              `json:"runs,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// TaskHistory is the persisted subset of a task's runtime state.
type TaskHistory struct {
	LastRun    time.Time       `json:"last_run"`
	RunCount   int             `json:"run_count"`
	LastResult task.Result     `json:"last_result,omitempty"`
	LastReason task.StopReason `json:"last_reason,omitempty"`
	Disabled   bool            `json:"disabled,omitempty"`
}

// HistoryStore persists run history.
type HistoryStore interface {
	Load() (History, error)
	Save(History) error
}

// Repository stores history as JSON under the project state directory.
type Repository struct {
	path string
}

// NewRepository creates a repository writing to path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the backing file.
func (r *Repository) Path() string { return r.path }

// Load reads the persisted history if present.
func (r *Repository) Load() (History, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return History{}, ErrHistoryNotFound
		}
		return History{}, err
	}
	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return History{}, err
	}
	if history.Tasks == nil {
		history.Tasks = map[string]TaskHistory{}
	}
	return history, nil
}

// Save writes the history to disk, replacing the file atomically.
func (r *Repository) Save(history History) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

func (h *History) record(t *task.Task, outcome Outcome, now time.Time) {
	if h.Tasks == nil {
		h.Tasks = map[string]TaskHistory{}
	}
	h.Tasks[t.Name] = TaskHistory{
		LastRun:    t.LastRun,
		RunCount:   t.RunCount,
		LastResult: t.LastResult,
		LastReason: t.LastReason,
		Disabled:   !t.Enabled,
	}
	h.Runs = append(h.Runs, outcome)
	if len(h.Runs) > maxHistoryRuns {
		h.Runs = append([]Outcome(nil), h.Runs[len(h.Runs)-maxHistoryRuns:]...)
	}
	h.UpdatedAt = now
}

func (h History) restore(t *task.Task) {
	entry, ok := h.Tasks[t.Name]
	if !ok {
		return
	}
	t.LastRun = entry.LastRun
	t.RunCount = entry.RunCount
	t.LastResult = entry.LastResult
	t.LastReason = entry.LastReason
	if entry.Disabled {
		t.Enabled = false
	}
}
