package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/warden/internal/condition"
	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/workflow/engine"
	"github.com/kingrea/warden/internal/workflow/scheduler"
	"github.com/kingrea/warden/internal/world"
)

var (
	ErrTaskBusy      = errors.New("orchestrator: another task is running")
	ErrUnknownTask   = errors.New("orchestrator: unknown task")
	ErrDuplicateTask = errors.New("orchestrator: task already registered")
	ErrTaskDisabled  = errors.New("orchestrator: task disabled")
	ErrUnsupported   = errors.New("orchestrator: query not supported")
)

// Logger is the leveled logger the orchestrator writes decisions to.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Journal records outcomes the operator should acknowledge.
type Journal interface {
	Acknowledge(key, format string, args ...any) bool
}

// Settings tune supervision timing.
type Settings struct {
	TickInterval    time.Duration
	MaxAttempts     int
	SoftStopRetry   time.Duration
	HardStopTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.TickInterval <= 0 {
		s.TickInterval = 600 * time.Millisecond
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 5
	}
	if s.SoftStopRetry <= 0 {
		s.SoftStopRetry = 30 * time.Second
	}
	if s.HardStopTimeout <= 0 {
		s.HardStopTimeout = 2 * time.Minute
	}
	return s
}

// Orchestrator supervises registered tasks. Tick must be driven from a single
// goroutine (Run does this). ReportFinished, Stop, Start, the lock calls,
// Query and ReloadRequirements are safe from any goroutine, including task
// logic running inside a tick.
type Orchestrator struct {
	state    world.State
	actions  world.Actions
	settings Settings
	logger   Logger
	clock    func() time.Time
	history  HistoryStore
	journal  Journal
	newRunID func() string
	hook     func()

	// mu serialises ticks and guards task runtime fields.
	mu       sync.Mutex
	tickNo   uint64
	skipped  map[string]scheduler.SkipReason
	last     *Outcome
	warnings []string
	hist     History

	tasksMu sync.RWMutex
	tasks   map[string]*task.Task
	order   []string

	curMu   sync.RWMutex
	current *run

	sigMu   sync.Mutex
	signals []signal

	active atomic.Bool
}

type run struct {
	id        string
	task      *task.Task
	machine   *engine.Machine
	startedAt time.Time
	ticks     int

	stopReason   task.StopReason
	softStopAt   time.Time
	lastSoftStop time.Time
	result       task.Result
	message      string
}

type signalKind int

const (
	signalFinished signalKind = iota
	signalStop
	signalStart
)

type signal struct {
	kind   signalKind
	name   string
	runID  string
	reason string
	result task.Result
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHistory persists run bookkeeping to store.
func WithHistory(store HistoryStore) Option {
	return func(o *Orchestrator) {
		o.history = store
	}
}

// WithJournal records unsuccessful runs for operator acknowledgement.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newRunID = gen
		}
	}
}

// WithTickHook runs fn at the end of every tick. Simulation uses it to advance
// simulated time.
func WithTickHook(fn func()) Option {
	return func(o *Orchestrator) {
		o.hook = fn
	}
}

// New wires an orchestrator to live state and action primitives.
func New(state world.State, actions world.Actions, settings Settings, opts ...Option) (*Orchestrator, error) {
	if state == nil {
		return nil, fmt.Errorf("orchestrator: live state is required")
	}
	if actions == nil {
		return nil, fmt.Errorf("orchestrator: action primitives are required")
	}
	o := &Orchestrator{
		state:    state,
		actions:  actions,
		settings: settings.withDefaults(),
		logger:   nopLogger{},
		clock:    time.Now,
		newRunID: uuid.NewString,
		tasks:    map[string]*task.Task{},
		hist:     History{Tasks: map[string]TaskHistory{}},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.history != nil {
		loaded, err := o.history.Load()
		switch {
		case errors.Is(err, ErrHistoryNotFound):
		case err != nil:
			return nil, fmt.Errorf("orchestrator: load history: %w", err)
		default:
			o.hist = loaded
		}
	}
	return o, nil
}

// Settings returns the effective supervision settings.
func (o *Orchestrator) Settings() Settings { return o.settings }

// SetActive marks whether the orchestrator is driving tasks. Run sets it for
// its own lifetime.
func (o *Orchestrator) SetActive(active bool) { o.active.Store(active) }

// Active reports whether the orchestrator is driving tasks.
func (o *Orchestrator) Active() bool { return o.active.Load() }

// Register validates and adds a task. Persisted history for the task name is
// restored.
func (o *Orchestrator) Register(t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Requirements == nil {
		t.Requirements = requirement.NewRegistry()
	}
	if t.Lifecycle == "" {
		t.Lifecycle = task.LifecycleIdle
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasksMu.Lock()
	defer o.tasksMu.Unlock()
	if _, exists := o.tasks[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
	}
	o.hist.restore(t)
	o.tasks[t.Name] = t
	o.order = append(o.order, t.Name)
	return nil
}

// Tasks returns info for every task in registration order.
func (o *Orchestrator) Tasks() []task.Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.taskInfos()
}

// Task returns info for one task.
func (o *Orchestrator) Task(name string) (task.Info, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.lookup(name)
	if !ok {
		return task.Info{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t.Info(), nil
}

// SetEnabled enables or disables a task for automatic selection.
func (o *Orchestrator) SetEnabled(name string, enabled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	t.Enabled = enabled
	return nil
}

// Current returns the running task name and run id, if any.
func (o *Orchestrator) Current() (name, runID string, ok bool) {
	o.curMu.RLock()
	defer o.curMu.RUnlock()
	if o.current == nil {
		return "", "", false
	}
	return o.current.task.Name, o.current.id, true
}

// Start queues a manual start of name. The task starts on the next tick,
// regardless of its trigger and start conditions. Start must not be called
// from task logic.
func (o *Orchestrator) Start(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if !t.Enabled {
		return fmt.Errorf("%w: %s", ErrTaskDisabled, name)
	}
	if cur, _, busy := o.Current(); busy {
		return fmt.Errorf("%w: %s", ErrTaskBusy, cur)
	}
	o.enqueue(signal{kind: signalStart, name: t.Name})
	return nil
}

// LockStatus describes the outcome of a lock request.
type LockStatus string

const (
	LockApplied       LockStatus = "applied"
	LockUnsupported   LockStatus = "unsupported"
	LockNoCurrentTask LockStatus = "no_current_task"
)

// LockResult reports what a lock request did.
type LockResult struct {
	Status LockStatus `json:"status"`
	Task   string     `json:"task,omitempty"`
	Locked bool       `json:"locked"`
}

// Lock holds the current task's stop conditions unmet.
func (o *Orchestrator) Lock() LockResult {
	return o.withLock(func(n *condition.Node) { n.Lock() })
}

// Unlock releases the current task's stop lock.
func (o *Orchestrator) Unlock() LockResult {
	return o.withLock(func(n *condition.Node) { n.Unlock() })
}

// ToggleLock flips the current task's stop lock.
func (o *Orchestrator) ToggleLock() LockResult {
	return o.withLock(func(n *condition.Node) { n.Toggle() })
}

// withLock applies fn to the first lock node in the current task's stop tree.
// Tasks without a lock node report LockUnsupported.
func (o *Orchestrator) withLock(fn func(*condition.Node)) LockResult {
	r := o.currentRun()
	if r == nil {
		return LockResult{Status: LockNoCurrentTask}
	}
	locks := condition.FindAllLocks(r.task.Stop)
	if len(locks) == 0 {
		return LockResult{Status: LockUnsupported, Task: r.task.Name}
	}
	fn(locks[0])
	locked := locks[0].Locked()
	o.logger.Infof("orchestrator: %s stop lock is now %s", r.task.Name, map[bool]string{true: "held", false: "released"}[locked])
	return LockResult{Status: LockApplied, Task: r.task.Name, Locked: locked}
}

// Stop requests a soft stop of the current task.
func (o *Orchestrator) Stop() bool {
	name, runID, ok := o.Current()
	if !ok {
		return false
	}
	o.enqueue(signal{kind: signalStop, name: name, runID: runID})
	return true
}

// ReportFinished lets the current run end itself early. Reports from any
// other task or from a previous run of the same task are stale: they are
// ignored and false is returned. An empty runID matches any run of the named
// task; only in-process callers may omit it, the event bridge requires one.
func (o *Orchestrator) ReportFinished(name, runID, reason string, result task.Result) bool {
	o.curMu.RLock()
	cur := o.current
	o.curMu.RUnlock()
	if cur == nil || cur.task.Name != name || (runID != "" && cur.id != runID) {
		current := "none"
		if cur != nil {
			current = cur.task.Name
		}
		o.logger.Debugf("orchestrator: ignoring stale finish report from %s (run %s), current task is %s", name, runID, current)
		return false
	}
	if result == "" {
		result = task.ResultSuccess
	}
	o.enqueue(signal{kind: signalFinished, name: name, runID: cur.id, reason: reason, result: result})
	return true
}

// ReportOrStop reports completion when the orchestrator is active; otherwise
// it falls back to the task's own stop routine.
func (o *Orchestrator) ReportOrStop(name, runID, reason string, result task.Result) bool {
	if o.Active() {
		return o.ReportFinished(name, runID, reason, result)
	}
	if t, ok := o.lookup(name); ok {
		if stopper, ok := t.Logic.(task.SoftStopper); ok {
			stopper.OnSoftStop(task.StopReasonFinished)
		}
	}
	o.logger.Infof("orchestrator: %s finished while inactive: %s", name, reason)
	return false
}

// Query reads a value exposed by a task's logic through task.Queryable.
func (o *Orchestrator) Query(name, key string, minVersion int) (any, error) {
	t, ok := o.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	q, ok := t.Logic.(task.Queryable)
	if !ok || q.QueryVersion() < minVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	value, ok := q.Query(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q", ErrUnsupported, name, key)
	}
	return value, nil
}

// ReloadRequirements rebuilds a task's requirement registry. On a
// configuration error the previous requirements stay active.
func (o *Orchestrator) ReloadRequirements(name string, reqs []requirement.Requirement) error {
	t, ok := o.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if err := t.Requirements.Rebuild(reqs); err != nil {
		o.logger.Warnf("orchestrator: reload requirements for %s: %v", name, err)
		return err
	}
	o.logger.Infof("orchestrator: reloaded %d requirements for %s", len(reqs), name)
	return nil
}

// Run ticks at the configured interval until ctx is cancelled, handing each
// report to sink.
func (o *Orchestrator) Run(ctx context.Context, sink Sink) error {
	o.SetActive(true)
	defer o.SetActive(false)
	ticker := time.NewTicker(o.settings.TickInterval)
	defer ticker.Stop()
	for {
		report := o.Tick(ctx)
		if sink != nil {
			sink(report)
		}
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

// Tick advances the orchestrator by one step.
func (o *Orchestrator) Tick(ctx context.Context) Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.clock()
	o.tickNo++
	o.warnings = nil

	o.drainSignals(ctx, now)
	if cur := o.currentRun(); cur != nil {
		o.supervise(ctx, cur, now)
	} else {
		o.selectAndStart(ctx, now)
	}
	if o.hook != nil {
		o.hook()
	}
	return o.report(now)
}

// SelectNext returns the task that would be started now, without starting
// it.
func (o *Orchestrator) SelectNext(now time.Time) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	decision := o.decide(now)
	if decision.Winner == nil {
		return "", false
	}
	return decision.Winner.Name, true
}

func (o *Orchestrator) selectAndStart(ctx context.Context, now time.Time) {
	decision := o.decide(now)
	o.skipped = decision.Skipped
	if decision.Winner == nil {
		return
	}
	t, ok := o.lookup(decision.Winner.Name)
	if !ok {
		return
	}
	o.startRun(ctx, t, now)
}

func (o *Orchestrator) decide(now time.Time) scheduler.Decision {
	o.tasksMu.RLock()
	names := append([]string(nil), o.order...)
	o.tasksMu.RUnlock()
	env := condition.Env{Now: now, State: o.state}
	candidates := make([]scheduler.Candidate, 0, len(names))
	for i, name := range names {
		t, ok := o.lookup(name)
		if !ok {
			continue
		}
		due, dueAt := t.Trigger.Due(now, t.LastRun, t.RunCount)
		c := scheduler.Candidate{
			Name:     t.Name,
			Order:    i,
			Priority: t.Priority,
			Default:  t.Default,
			Enabled:  t.Enabled,
			Active:   t.Lifecycle.Active(),
			Due:      due,
			DueAt:    dueAt,
		}
		if c.Enabled && due && !c.Active {
			c.StartReady, c.StartDetail = o.evaluateStart(t, env)
		}
		candidates = append(candidates, c)
	}
	return scheduler.Select(candidates)
}

func (o *Orchestrator) evaluateStart(t *task.Task, env condition.Env) (bool, string) {
	if t.Start == nil {
		return true, ""
	}
	o.logLeafErrors(t.Name, "start", condition.OnCheck(t.Start, env))
	if condition.Evaluate(t.Start) {
		return true, ""
	}
	met, total := condition.Progress(t.Start)
	return false, fmt.Sprintf("start conditions %d/%d met", met, total)
}

func (o *Orchestrator) startRun(ctx context.Context, t *task.Task, now time.Time) {
	r := &run{
		id:        o.newRunID(),
		task:      t,
		startedAt: now,
	}
	condition.Reset(t.Start, now)
	condition.Reset(t.Stop, now)
	env := o.taskEnv(r, now)
	if starter, ok := t.Logic.(task.Starter); ok {
		if err := starter.OnStart(ctx, env); err != nil {
			o.logger.Errorf("orchestrator: start %s: %v", t.Name, err)
			t.LastRun = now
			o.finishTask(r, task.ResultSoftFailure, task.StopReasonError, err.Error(), nil, now)
			return
		}
	}
	machine, err := engine.New(engine.Config{
		Requirements: t.Requirements,
		State:        o.state,
		Actions:      o.actions,
		MaxAttempts:  o.settings.MaxAttempts,
		Main: func(ctx context.Context) (bool, error) {
			status, err := t.Logic.Step(ctx, o.taskEnv(r, o.clock()))
			return status == task.Done, err
		},
	}, engine.WithClock(o.clock), engine.WithLogger(o.logger))
	if err != nil {
		o.logger.Errorf("orchestrator: start %s: %v", t.Name, err)
		return
	}
	r.machine = machine
	t.Lifecycle = task.LifecycleStarting
	t.LastRun = now
	o.curMu.Lock()
	o.current = r
	o.curMu.Unlock()
	o.logger.Infof("orchestrator: started %s (run %s)", t.Name, r.id)
}

func (o *Orchestrator) taskEnv(r *run, now time.Time) task.Env {
	return task.Env{
		Now:      now,
		State:    o.state,
		Actions:  o.actions,
		Reporter: runReporter{o: o, name: r.task.Name, runID: r.id},
	}
}

func (o *Orchestrator) supervise(ctx context.Context, r *run, now time.Time) {
	t := r.task
	env := condition.Env{Now: now, State: o.state}
	stopMet, locked := false, false
	if t.Stop != nil {
		o.logLeafErrors(t.Name, "stop", condition.OnCheck(t.Stop, env))
		locked = condition.AnyLocked(t.Stop)
		stopMet = condition.Evaluate(t.Stop)
	}
	if stopMet && !locked && r.stopReason == "" {
		o.softStop(r, task.StopReasonConditionsMet, now)
	}
	if !r.softStopAt.IsZero() {
		if o.shouldHardStop(r, now) {
			o.hardStop(r, now)
			return
		}
		if now.Sub(r.lastSoftStop) >= o.settings.SoftStopRetry {
			o.logger.Warnf("orchestrator: %s has not honoured the soft stop after %s, re-sending", t.Name, now.Sub(r.softStopAt).Round(time.Second))
			o.sendSoftStop(r, now)
		}
	}

	snap := r.machine.Tick(ctx)
	r.ticks++
	if t.Lifecycle == task.LifecycleStarting {
		t.Lifecycle = task.LifecycleRunning
	}
	if snap.Terminal() {
		o.completeRun(r, snap, now)
	}
}

func (o *Orchestrator) shouldHardStop(r *run, now time.Time) bool {
	if !r.task.AllowHardStop {
		return false
	}
	return r.task.ImmediateHardStop || now.Sub(r.softStopAt) >= o.settings.HardStopTimeout
}

func (o *Orchestrator) softStop(r *run, reason task.StopReason, now time.Time) {
	r.stopReason = reason
	r.softStopAt = now
	r.task.Lifecycle = task.LifecycleSoftStopRequested
	o.logger.Infof("orchestrator: soft stop %s (%s)", r.task.Name, reason)
	o.sendSoftStop(r, now)
}

func (o *Orchestrator) sendSoftStop(r *run, now time.Time) {
	r.lastSoftStop = now
	r.machine.RequestStop()
	if stopper, ok := r.task.Logic.(task.SoftStopper); ok {
		stopper.OnSoftStop(r.stopReason)
	}
}

func (o *Orchestrator) hardStop(r *run, now time.Time) {
	o.logger.Warnf("orchestrator: hard stopping %s after %s", r.task.Name, now.Sub(r.softStopAt).Round(time.Second))
	r.machine.Abort(string(task.StopReasonHardStopTimeout))
	if stopper, ok := r.task.Logic.(task.HardStopper); ok {
		stopper.OnHardStop()
	}
	r.stopReason = task.StopReasonHardStopTimeout
	snap := r.machine.Snapshot()
	o.finishTask(r, task.ResultSoftFailure, task.StopReasonHardStopTimeout, "hard stop", snap.Skipped, now)
}

func (o *Orchestrator) completeRun(r *run, snap engine.Snapshot, now time.Time) {
	result, reason, message := task.ResultSuccess, task.StopReasonFinished, snap.Details()
	switch snap.Status {
	case engine.StatusFailed:
		result, reason, message = task.ResultSoftFailure, task.StopReasonRequirements, snap.Reason
	case engine.StatusError:
		result, reason, message = task.ResultSoftFailure, task.StopReasonError, snap.Reason
	default:
		if r.stopReason != "" {
			reason = r.stopReason
		}
		if r.result != "" {
			result = r.result
			message = r.message
		}
	}
	o.finishTask(r, result, reason, message, snap.Skipped, now)
}

func (o *Orchestrator) finishTask(r *run, result task.Result, reason task.StopReason, message string, skipped []string, now time.Time) {
	t := r.task
	t.RunCount++
	t.LastResult = result
	t.LastReason = reason
	t.LastMessage = message
	if reason == task.StopReasonFinished && result == task.ResultSuccess {
		t.Lifecycle = task.LifecycleFinished
	} else {
		t.Lifecycle = task.LifecycleStopped
	}
	releaseLocks(t)
	if result == task.ResultHardFailure {
		t.Enabled = false
		o.logger.Errorf("orchestrator: %s reported a hard failure and was disabled: %s", t.Name, message)
	}
	outcome := Outcome{
		Task:       t.Name,
		RunID:      r.id,
		Result:     result,
		Reason:     reason,
		Message:    message,
		StartedAt:  r.startedAt,
		FinishedAt: now,
		Skipped:    append([]string(nil), skipped...),
	}
	o.last = &outcome
	o.logger.Infof("orchestrator: %s ended: %s (%s) %s", t.Name, result, reason, message)
	if result != task.ResultSuccess && reason != task.StopReasonManualStop && o.journal != nil {
		o.journal.Acknowledge(t.Name, "%s ended with %s (%s): %s", t.Name, result, reason, message)
	}
	o.hist.record(t, outcome, now)
	if o.history != nil {
		if err := o.history.Save(o.hist); err != nil {
			o.logger.Warnf("orchestrator: save history: %v", err)
		}
	}
	o.curMu.Lock()
	if o.current == r {
		o.current = nil
	}
	o.curMu.Unlock()
}

// releaseLocks clears every lock override so the next run starts with its
// conditions evaluated normally.
func releaseLocks(t *task.Task) {
	for _, tree := range []*condition.Node{t.Start, t.Stop} {
		for _, lock := range condition.FindAllLocks(tree) {
			lock.Unlock()
		}
	}
}

func (o *Orchestrator) drainSignals(ctx context.Context, now time.Time) {
	o.sigMu.Lock()
	pending := o.signals
	o.signals = nil
	o.sigMu.Unlock()
	for _, sig := range pending {
		cur := o.currentRun()
		switch sig.kind {
		case signalStart:
			if cur != nil {
				o.logger.Warnf("orchestrator: start of %s dropped, %s is running", sig.name, cur.task.Name)
				continue
			}
			t, ok := o.lookup(sig.name)
			if !ok {
				continue
			}
			o.startRun(ctx, t, now)
		case signalStop:
			if cur == nil || cur.id != sig.runID || cur.stopReason != "" {
				continue
			}
			o.softStop(cur, task.StopReasonManualStop, now)
		case signalFinished:
			if cur == nil || cur.id != sig.runID {
				o.logger.Debugf("orchestrator: dropping finish report for ended run %s of %s", sig.runID, sig.name)
				continue
			}
			if cur.result != "" {
				continue
			}
			cur.result = sig.result
			cur.message = sig.reason
			if cur.stopReason == "" {
				cur.stopReason = task.StopReasonFinished
			}
			cur.machine.RequestStop()
		}
	}
}

func (o *Orchestrator) enqueue(sig signal) {
	o.sigMu.Lock()
	o.signals = append(o.signals, sig)
	o.sigMu.Unlock()
}

func (o *Orchestrator) currentRun() *run {
	o.curMu.RLock()
	defer o.curMu.RUnlock()
	return o.current
}

func (o *Orchestrator) lookup(name string) (*task.Task, bool) {
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()
	t, ok := o.tasks[strings.TrimSpace(name)]
	return t, ok
}

func (o *Orchestrator) logLeafErrors(name, tree string, errs []condition.LeafError) {
	for _, err := range errs {
		msg := fmt.Sprintf("%s %s conditions: %v", name, tree, err)
		o.warnings = append(o.warnings, msg)
		o.logger.Warnf("orchestrator: %s", msg)
	}
}

func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.currentRun()
	if r == nil {
		return
	}
	o.logger.Infof("orchestrator: shutting down while %s is running", r.task.Name)
	r.machine.Abort("shutdown")
	if stopper, ok := r.task.Logic.(task.HardStopper); ok {
		stopper.OnHardStop()
	}
	o.finishTask(r, task.ResultSoftFailure, task.StopReasonManualStop, "orchestrator shut down", nil, o.clock())
}

func (o *Orchestrator) taskInfos() []task.Info {
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()
	infos := make([]task.Info, 0, len(o.order))
	for _, name := range o.order {
		infos = append(infos, o.tasks[name].Info())
	}
	return infos
}

func (o *Orchestrator) report(now time.Time) Report {
	rep := Report{
		At:       now,
		Tick:     o.tickNo,
		Active:   o.Active(),
		Tasks:    o.taskInfos(),
		Skipped:  cloneSkipped(o.skipped),
		Warnings: append([]string(nil), o.warnings...),
	}
	if o.last != nil {
		last := *o.last
		last.Skipped = append([]string(nil), last.Skipped...)
		rep.Last = &last
	}
	if r := o.currentRun(); r != nil {
		t := r.task
		cur := &RunReport{
			Task:       t.Name,
			RunID:      r.id,
			StartedAt:  r.startedAt,
			Lifecycle:  t.Lifecycle,
			Execution:  r.machine.Snapshot(),
			StopReason: r.stopReason,
			SoftStopAt: r.softStopAt,
		}
		if t.Stop != nil {
			cur.StopMet = condition.Evaluate(t.Stop)
			cur.Locked = condition.AnyLocked(t.Stop)
			cur.StopTree = condition.Describe(t.Stop)
			met, total := condition.Progress(t.Stop)
			cur.StopProgress = [2]int{met, total}
		}
		if t.Start != nil {
			met, total := condition.Progress(t.Start)
			cur.StartProgress = [2]int{met, total}
		}
		rep.Current = cur
	}
	return rep
}

// runReporter binds a Reporter to one run so reports from old runs are
// recognised as stale.
type runReporter struct {
	o     *Orchestrator
	name  string
	runID string
}

func (r runReporter) ReportFinished(reason string, result task.Result) bool {
	return r.o.ReportOrStop(r.name, r.runID, reason, result)
}
