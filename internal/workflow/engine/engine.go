package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/workflow/resolver"
	"github.com/kingrea/warden/internal/world"
)

const defaultMaxAttempts = 5

// Logger receives warnings about requirements that could not be fulfilled.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// MainFunc runs one step of a task's main logic. Returning done ends the main
// phase and moves the run to its post requirements.
type MainFunc func(ctx context.Context) (done bool, err error)

// Config wires a machine to its collaborators.
type Config struct {
	Requirements *requirement.Registry
	State        world.State
	Actions      world.Actions
	Main         MainFunc
	// MaxAttempts is how many ticks a requirement may stay unsatisfied before
	// it is classified as failed.
	MaxAttempts int
}

// Machine is the execution state machine for a single run. Tick is expected
// to be called from one goroutine; RequestStop and Snapshot are safe from any.
type Machine struct {
	mu     sync.Mutex
	cfg    Config
	logger Logger
	clock  func() time.Time

	snap   Snapshot
	plan   *resolver.Plan
	idx    int
	cursor cursor
	stop   atomic.Bool
}

// cursor tracks the requirement currently being fulfilled.
type cursor struct {
	attempts  int
	invoked   bool
	committed requirement.Requirement
}

// Option customizes the machine instance.
type Option func(*Machine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger routes fulfillment warnings to logger.
func WithLogger(logger Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New builds a machine in the Starting state.
func New(cfg Config, opts ...Option) (*Machine, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("workflow engine: live state is required")
	}
	if cfg.Actions == nil {
		return nil, fmt.Errorf("workflow engine: action primitives are required")
	}
	if cfg.Requirements == nil {
		cfg.Requirements = requirement.NewRegistry()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	m := &Machine{
		cfg:    cfg,
		logger: nopLogger{},
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap = Snapshot{
		Phase:       PhaseIdle,
		Status:      StatusStarting,
		MaxAttempts: cfg.MaxAttempts,
		UpdatedAt:   m.clock(),
	}
	return m, nil
}

// Snapshot returns a copy of the current execution state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// RequestStop asks the run to wind down at the next safe point. Pre and main
// jump to the post phase so anything acquired is released; post runs to
// completion.
func (m *Machine) RequestStop() {
	m.stop.Store(true)
}

// StopRequested reports whether RequestStop was called.
func (m *Machine) StopRequested() bool {
	return m.stop.Load()
}

// Abort ends the run immediately without running post requirements.
func (m *Machine) Abort(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Status.Terminal() {
		return
	}
	m.snap.Status = StatusFailed
	m.snap.HasError = true
	m.snap.Reason = "aborted: " + reason
	m.snap.UpdatedAt = m.clock()
}

// Tick advances the run by one step and returns the resulting snapshot. Panics
// raised by fulfillment or main logic are recovered into the Error state.
func (m *Machine) Tick(ctx context.Context) (snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			m.markError(fmt.Sprintf("panic: %v", r))
		}
		m.snap.UpdatedAt = m.clock()
		snap = m.snap.clone()
	}()
	if m.snap.Status.Terminal() {
		return
	}
	stopping := m.stop.Load()
	m.snap.Stopping = stopping

	switch m.snap.Phase {
	case PhaseIdle:
		if stopping {
			m.enterRequirements(PhasePost)
			return
		}
		m.enterRequirements(PhasePre)
	case PhasePre:
		if stopping {
			m.enterRequirements(PhasePost)
			return
		}
		if m.walk(ctx) {
			m.enterMain()
		}
	case PhaseMain:
		if stopping {
			m.enterRequirements(PhasePost)
			return
		}
		if m.cfg.Main == nil {
			m.enterRequirements(PhasePost)
			return
		}
		done, err := m.cfg.Main(ctx)
		if err != nil {
			m.markError(err.Error())
			return
		}
		if done {
			m.enterRequirements(PhasePost)
		}
	case PhasePost:
		if m.walk(ctx) {
			m.snap.Status = StatusCompleted
			m.snap.Current = ""
			m.snap.Attempt = 0
		}
	}
	return
}

func (m *Machine) enterRequirements(phase Phase) {
	reqPhase := requirement.Pre
	if phase == PhasePost {
		reqPhase = requirement.Post
	}
	// The generation captured here is used for the whole phase even if the
	// registry is rebuilt meanwhile.
	plan, err := resolver.New(m.cfg.Requirements.Snapshot(), reqPhase)
	if err != nil {
		m.markError(err.Error())
		return
	}
	m.plan = plan
	m.idx = 0
	m.cursor = cursor{}
	m.snap.Phase = phase
	m.snap.Status = StatusFulfillingRequirements
	m.snap.Generation = plan.Version()
	m.snap.Step = 0
	m.snap.TotalSteps = plan.Len()
	m.snap.Current = ""
	m.snap.Attempt = 0
}

func (m *Machine) enterMain() {
	m.plan = nil
	m.snap.Phase = PhaseMain
	m.snap.Status = StatusCustomTasks
	m.snap.Step = 0
	m.snap.TotalSteps = 0
	m.snap.Current = ""
	m.snap.Attempt = 0
}

// walk processes the plan until a requirement needs to wait for a later tick.
// It returns true once every step is satisfied or skipped.
func (m *Machine) walk(ctx context.Context) bool {
	for m.idx < m.plan.Len() {
		step, _ := m.plan.Step(m.idx)
		req := step.Requirement
		m.snap.Step = m.idx + 1
		m.snap.Current = req.Label()

		target := req
		if m.cursor.invoked {
			target = m.cursor.committed
		}
		ok, err := requirement.Satisfied(target, m.cfg.State)
		if err != nil {
			m.logger.Warnf("engine: check %s: %v", req.ID, err)
		}
		if err == nil && ok {
			if m.cursor.invoked && requirement.Staged(target) {
				m.cursor.invoked = false
				m.cursor.committed = requirement.Requirement{}
				continue
			}
			m.advance()
			continue
		}

		if m.cursor.attempts >= m.cfg.MaxAttempts {
			if req.Priority == requirement.Mandatory {
				m.markFailed(req.Label())
				return false
			}
			m.logger.Warnf("engine: recommended requirement %s not fulfilled after %d attempts, skipping", req.ID, m.cursor.attempts)
			m.snap.Skipped = append(m.snap.Skipped, req.Label())
			m.advance()
			continue
		}

		m.cursor.attempts++
		m.snap.Attempt = m.cursor.attempts
		if !m.cursor.invoked {
			committed, err := requirement.Commit(ctx, req, m.cfg.State, m.cfg.Actions)
			if err != nil {
				m.logger.Warnf("engine: fulfil %s (attempt %d/%d): %v", req.ID, m.cursor.attempts, m.cfg.MaxAttempts, err)
				return false
			}
			m.cursor.invoked = true
			m.cursor.committed = committed
			m.logger.Debugf("engine: fulfilling %s via %s", req.ID, committed.Label())
		}
		return false
	}
	return true
}

func (m *Machine) advance() {
	m.idx++
	m.cursor = cursor{}
	m.snap.Attempt = 0
}

func (m *Machine) markFailed(reason string) {
	m.snap.Status = StatusFailed
	m.snap.HasError = true
	m.snap.Reason = reason
}

func (m *Machine) markError(reason string) {
	m.snap.Status = StatusError
	m.snap.HasError = true
	m.snap.Reason = reason
}
