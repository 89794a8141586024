package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingrea/warden/internal/condition"
	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/world"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeLogic steps until it has been called doneAfter times (never when zero).
type fakeLogic struct {
	doneAfter int
	steps     int
	starts    int
	softStops []task.StopReason
	hardStops int
	onStep    func(env task.Env)
}

func (l *fakeLogic) OnStart(context.Context, task.Env) error {
	l.starts++
	return nil
}

func (l *fakeLogic) Step(_ context.Context, env task.Env) (task.Status, error) {
	l.steps++
	if l.onStep != nil {
		l.onStep(env)
	}
	if l.doneAfter > 0 && l.steps >= l.doneAfter {
		return task.Done, nil
	}
	return task.Continue, nil
}

func (l *fakeLogic) OnSoftStop(reason task.StopReason) { l.softStops = append(l.softStops, reason) }
func (l *fakeLogic) OnHardStop()                       { l.hardStops++ }

type queryLogic struct {
	fakeLogic
	version int
}

func (q *queryLogic) QueryVersion() int { return q.version }

func (q *queryLogic) Query(key string) (any, bool) {
	if key == "trips" {
		return 3, true
	}
	return nil, false
}

type journal struct {
	entries []string
}

func (j *journal) Acknowledge(key, format string, args ...any) bool {
	j.entries = append(j.entries, key+": "+fmt.Sprintf(format, args...))
	return true
}

func newOrchestrator(t *testing.T, clock *fakeClock, opts ...Option) (*Orchestrator, *world.Sim) {
	t.Helper()
	sim := world.NewSim()
	settings := Settings{
		TickInterval:    time.Second,
		MaxAttempts:     100,
		SoftStopRetry:   30 * time.Second,
		HardStopTimeout: 2 * time.Minute,
	}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	o, err := New(sim, sim, settings, opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o, sim
}

func newTask(name string, logic task.Logic) *task.Task {
	return &task.Task{
		Name:    name,
		Enabled: true,
		Trigger: task.Manual{},
		Logic:   logic,
	}
}

func mustRegister(t *testing.T, o *Orchestrator, tasks ...*task.Task) {
	t.Helper()
	for _, tk := range tasks {
		if err := o.Register(tk); err != nil {
			t.Fatalf("register %s: %v", tk.Name, err)
		}
	}
}

func currentName(o *Orchestrator) string {
	name, _, _ := o.Current()
	return name
}

// tickUntilIdle ticks until no run is current and returns the final report.
func tickUntilIdle(t *testing.T, o *Orchestrator, limit int) Report {
	t.Helper()
	var rep Report
	for i := 0; i < limit; i++ {
		rep = o.Tick(context.Background())
		if rep.Current == nil && rep.Last != nil {
			return rep
		}
	}
	t.Fatalf("run did not finish within %d ticks", limit)
	return rep
}

func TestStaleReportFinishedIsIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	x, y := &fakeLogic{}, &fakeLogic{}
	mustRegister(t, o, newTask("X", x), newTask("Y", y))

	if err := o.Start("Y"); err != nil {
		t.Fatalf("start Y: %v", err)
	}
	o.Tick(context.Background())
	if got := currentName(o); got != "Y" {
		t.Fatalf("expected Y to be current, got %q", got)
	}

	if o.ReportFinished("X", "", "done", task.ResultSuccess) {
		t.Fatalf("report from a task that is not current must be rejected")
	}
	for i := 0; i < 5; i++ {
		rep := o.Tick(context.Background())
		if rep.Current == nil || rep.Current.Task != "Y" {
			t.Fatalf("tick %d: Y should remain current, got %+v", i, rep.Current)
		}
		if rep.Current.Execution.Stopping {
			t.Fatalf("tick %d: Y must not receive a stop", i)
		}
	}
	if len(y.softStops) != 0 {
		t.Fatalf("Y must not be soft stopped, got %v", y.softStops)
	}
}

func TestReportFromPreviousRunIsIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	ids := []string{"run-1", "run-2"}
	next := 0
	o, _ := newOrchestrator(t, clock, WithRunIDs(func() string {
		id := ids[next]
		next++
		return id
	}))
	logic := &fakeLogic{doneAfter: 1}
	mustRegister(t, o, newTask("gather", logic))

	if err := o.Start("gather"); err != nil {
		t.Fatalf("start: %v", err)
	}
	tickUntilIdle(t, o, 10)

	logic.doneAfter = 0
	if err := o.Start("gather"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	o.Tick(context.Background())
	if _, runID, _ := o.Current(); runID != "run-2" {
		t.Fatalf("expected second run, got %q", runID)
	}
	if o.ReportFinished("gather", "run-1", "late", task.ResultSuccess) {
		t.Fatalf("report tagged with an ended run must be rejected")
	}
	if !o.ReportFinished("gather", "run-2", "done", task.ResultSuccess) {
		t.Fatalf("report for the current run should be accepted")
	}
}

func TestReportFinishedEndsRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	o.SetActive(true)
	logic := &fakeLogic{}
	logic.onStep = func(env task.Env) {
		if logic.steps == 2 {
			if !env.Reporter.ReportFinished("bag full", task.ResultSuccess) {
				t.Errorf("report should be accepted while active")
			}
		}
	}
	mustRegister(t, o, newTask("gather", logic))
	if err := o.Start("gather"); err != nil {
		t.Fatalf("start: %v", err)
	}
	rep := tickUntilIdle(t, o, 20)
	if rep.Last.Result != task.ResultSuccess || rep.Last.Reason != task.StopReasonFinished {
		t.Fatalf("unexpected outcome %+v", rep.Last)
	}
	if rep.Last.Message != "bag full" {
		t.Fatalf("expected report message, got %q", rep.Last.Message)
	}
	if logic.steps != 2 {
		t.Fatalf("logic should not step after reporting, got %d steps", logic.steps)
	}
	info, _ := o.Task("gather")
	if info.Lifecycle != task.LifecycleFinished || info.RunCount != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestReportWhileInactiveFallsBackToSoftStop(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	logic := &fakeLogic{}
	mustRegister(t, o, newTask("gather", logic))
	if o.ReportOrStop("gather", "", "done", task.ResultSuccess) {
		t.Fatalf("inactive orchestrator must not accept the report")
	}
	if len(logic.softStops) != 1 || logic.softStops[0] != task.StopReasonFinished {
		t.Fatalf("expected fallback soft stop, got %v", logic.softStops)
	}
}

func TestSelectionPrefersPriorityThenNonDefault(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	low := newTask("low", &fakeLogic{})
	low.Trigger = task.Interval{Every: time.Minute}
	low.Priority = 1
	fallback := newTask("fallback", &fakeLogic{})
	fallback.Trigger = task.Interval{Every: time.Minute}
	fallback.Priority = 5
	fallback.Default = true
	high := newTask("high", &fakeLogic{})
	high.Trigger = task.Interval{Every: time.Minute}
	high.Priority = 5
	disabled := newTask("disabled", &fakeLogic{})
	disabled.Trigger = task.Interval{Every: time.Minute}
	disabled.Priority = 9
	disabled.Enabled = false
	mustRegister(t, o, low, fallback, high, disabled)

	if name, ok := o.SelectNext(clock.now); !ok || name != "high" {
		t.Fatalf("expected high, got %q", name)
	}
	rep := o.Tick(context.Background())
	if rep.Current == nil || rep.Current.Task != "high" {
		t.Fatalf("expected high to start, got %+v", rep.Current)
	}
	if _, ok := rep.Skipped["disabled"]; !ok {
		t.Fatalf("disabled task should be reported as skipped: %+v", rep.Skipped)
	}
}

func TestStartConditionsGateSelection(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, sim := newOrchestrator(t, clock)
	tk := newTask("fish", &fakeLogic{})
	tk.Trigger = task.Interval{Every: time.Minute}
	tk.Start = condition.NewLeaf("rod", condition.Count{Item: "rod", Min: 1})
	mustRegister(t, o, tk)

	rep := o.Tick(context.Background())
	if rep.Current != nil {
		t.Fatalf("task must wait for its start conditions")
	}
	if _, ok := rep.Skipped["fish"]; !ok {
		t.Fatalf("expected skip reason for fish")
	}
	sim.SetCount("rod", "inventory", 1)
	rep = o.Tick(context.Background())
	if rep.Current == nil || rep.Current.Task != "fish" {
		t.Fatalf("expected fish to start once holding a rod")
	}
}

func TestStartErrors(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	off := newTask("off", &fakeLogic{})
	off.Enabled = false
	mustRegister(t, o, newTask("a", &fakeLogic{}), newTask("b", &fakeLogic{}), off)

	if err := o.Start("missing"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if err := o.Start("off"); !errors.Is(err, ErrTaskDisabled) {
		t.Fatalf("expected ErrTaskDisabled, got %v", err)
	}
	if err := o.Start("a"); err != nil {
		t.Fatalf("start a: %v", err)
	}
	o.Tick(context.Background())
	if err := o.Start("b"); !errors.Is(err, ErrTaskBusy) {
		t.Fatalf("expected ErrTaskBusy, got %v", err)
	}
	if err := o.Register(newTask("a", &fakeLogic{})); !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestLockRequests(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	if res := o.Lock(); res.Status != LockNoCurrentTask {
		t.Fatalf("expected no current task, got %+v", res)
	}
	mustRegister(t, o, newTask("plain", &fakeLogic{}))
	if err := o.Start("plain"); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Tick(context.Background())
	if res := o.ToggleLock(); res.Status != LockUnsupported || res.Task != "plain" {
		t.Fatalf("expected unsupported, got %+v", res)
	}
}

func TestTimerStopHonoursLock(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	o, _ := newOrchestrator(t, clock)
	logic := &fakeLogic{}
	tk := newTask("woodcut", logic)
	tk.Stop = condition.NewLock("hold", condition.NewLeaf("ten minutes", &condition.Timer{Duration: 10 * time.Minute}))
	mustRegister(t, o, tk)
	if err := o.Start("woodcut"); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Tick(context.Background())

	clock.now = start.Add(9*time.Minute + 59*time.Second)
	rep := o.Tick(context.Background())
	if rep.Current == nil || rep.Current.StopMet {
		t.Fatalf("stop must not be met at 9:59: %+v", rep.Current)
	}
	if res := o.Lock(); res.Status != LockApplied || !res.Locked {
		t.Fatalf("lock: %+v", res)
	}
	clock.now = start.Add(10*time.Minute + time.Second)
	rep = o.Tick(context.Background())
	if rep.Current == nil || rep.Current.StopReason != "" || !rep.Current.Locked {
		t.Fatalf("locked task must keep running at 10:01: %+v", rep.Current)
	}
	if len(logic.softStops) != 0 {
		t.Fatalf("no soft stop while locked")
	}

	if res := o.Unlock(); res.Status != LockApplied || res.Locked {
		t.Fatalf("unlock: %+v", res)
	}
	rep = o.Tick(context.Background())
	if rep.Current == nil || rep.Current.StopReason != task.StopReasonConditionsMet {
		t.Fatalf("expected soft stop once unlocked: %+v", rep.Current)
	}
	if len(logic.softStops) != 1 || logic.softStops[0] != task.StopReasonConditionsMet {
		t.Fatalf("logic should be told about the soft stop: %v", logic.softStops)
	}
	rep = tickUntilIdle(t, o, 10)
	if rep.Last.Reason != task.StopReasonConditionsMet || rep.Last.Result != task.ResultSuccess {
		t.Fatalf("unexpected outcome %+v", rep.Last)
	}
	info, _ := o.Task("woodcut")
	if info.Lifecycle != task.LifecycleStopped {
		t.Fatalf("expected stopped lifecycle, got %s", info.Lifecycle)
	}
}

func TestLocksAreReleasedWhenRunEnds(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	o, _ := newOrchestrator(t, clock)
	logic := &fakeLogic{}
	tk := newTask("fish", logic)
	tk.Stop = condition.NewLock("hold", condition.NewLeaf("ten minutes", &condition.Timer{Duration: 10 * time.Minute}))
	mustRegister(t, o, tk)

	runIntoMain(t, o, "fish")
	if res := o.Lock(); res.Status != LockApplied || !res.Locked {
		t.Fatalf("lock: %+v", res)
	}
	_, runID, _ := o.Current()
	if !o.ReportFinished("fish", runID, "bag full", task.ResultSuccess) {
		t.Fatalf("finish report should be accepted")
	}
	rep := tickUntilIdle(t, o, 10)
	if rep.Last.Reason != task.StopReasonFinished {
		t.Fatalf("unexpected first outcome %+v", rep.Last)
	}
	if condition.AnyLocked(tk.Stop) {
		t.Fatalf("lock must not outlive the run")
	}

	if err := o.Start("fish"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	o.Tick(context.Background())
	clock.Advance(30 * time.Minute)
	rep = tickUntilIdle(t, o, 10)
	if rep.Last.Reason != task.StopReasonConditionsMet || rep.Last.RunID == runID {
		t.Fatalf("second run should stop on its timer, got %+v", rep.Last)
	}
	if len(logic.softStops) != 1 || logic.softStops[0] != task.StopReasonConditionsMet {
		t.Fatalf("expected one soft stop from the timer, got %v", logic.softStops)
	}
}

func TestShutdownIsNotJournaled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	log := &journal{}
	o, _ := newOrchestrator(t, clock, WithJournal(log))
	logic := &fakeLogic{}
	mustRegister(t, o, newTask("fish", logic))
	runIntoMain(t, o, "fish")

	o.shutdown()
	if _, _, ok := o.Current(); ok {
		t.Fatalf("shutdown should end the current run")
	}
	if logic.hardStops != 1 {
		t.Fatalf("expected a hard stop on shutdown, got %d", logic.hardStops)
	}
	if len(log.entries) != 0 {
		t.Fatalf("shutdown must not ask for acknowledgement, got %v", log.entries)
	}
	info, _ := o.Task("fish")
	if info.LastReason != task.StopReasonManualStop {
		t.Fatalf("expected a manual stop to be recorded, got %+v", info)
	}
}

// stuckTask has a post requirement that never completes, so the run ignores
// soft stops.
func stuckTask(t *testing.T, sim *world.Sim, name string, logic task.Logic) *task.Task {
	t.Helper()
	sim.Block("bank")
	tk := newTask(name, logic)
	reg := requirement.NewRegistry()
	err := reg.Register(requirement.Requirement{
		ID:       "bank-mode",
		Priority: requirement.Mandatory,
		Phase:    requirement.Post,
		Spec:     requirement.ModeSpec{Mode: "bank"},
	})
	if err != nil {
		t.Fatalf("register requirement: %v", err)
	}
	tk.Requirements = reg
	return tk
}

func runIntoMain(t *testing.T, o *Orchestrator, name string) {
	t.Helper()
	if err := o.Start(name); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		o.Tick(context.Background())
	}
}

func TestSoftStopResendsWithoutHardStop(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, sim := newOrchestrator(t, clock)
	logic := &fakeLogic{}
	mustRegister(t, o, stuckTask(t, sim, "stuck", logic))
	runIntoMain(t, o, "stuck")

	if !o.Stop() {
		t.Fatalf("stop should be accepted")
	}
	o.Tick(context.Background())
	if len(logic.softStops) != 1 || logic.softStops[0] != task.StopReasonManualStop {
		t.Fatalf("expected manual soft stop, got %v", logic.softStops)
	}
	clock.Advance(31 * time.Second)
	o.Tick(context.Background())
	if len(logic.softStops) != 2 {
		t.Fatalf("soft stop should be re-sent, got %d", len(logic.softStops))
	}
	clock.Advance(5 * time.Minute)
	rep := o.Tick(context.Background())
	if rep.Current == nil || rep.Current.Task != "stuck" {
		t.Fatalf("task without hard stop permission must keep running")
	}
	if logic.hardStops != 0 {
		t.Fatalf("hard stop must not be sent")
	}
}

func TestHardStopAfterTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	log := &journal{}
	o, sim := newOrchestrator(t, clock, WithJournal(log))
	logic := &fakeLogic{}
	tk := stuckTask(t, sim, "stuck", logic)
	tk.AllowHardStop = true
	mustRegister(t, o, tk)
	runIntoMain(t, o, "stuck")

	o.Stop()
	o.Tick(context.Background())
	clock.Advance(time.Minute)
	if rep := o.Tick(context.Background()); rep.Current == nil {
		t.Fatalf("hard stop must wait for the timeout")
	}
	clock.Advance(61 * time.Second)
	rep := o.Tick(context.Background())
	if rep.Current != nil {
		t.Fatalf("expected the run to be hard stopped")
	}
	if logic.hardStops != 1 {
		t.Fatalf("expected one hard stop, got %d", logic.hardStops)
	}
	if rep.Last.Reason != task.StopReasonHardStopTimeout || rep.Last.Result != task.ResultSoftFailure {
		t.Fatalf("unexpected outcome %+v", rep.Last)
	}
	if len(log.entries) != 1 {
		t.Fatalf("unsuccessful run should be journaled, got %v", log.entries)
	}
}

func TestImmediateHardStop(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, sim := newOrchestrator(t, clock)
	logic := &fakeLogic{}
	tk := stuckTask(t, sim, "stuck", logic)
	tk.AllowHardStop = true
	tk.ImmediateHardStop = true
	mustRegister(t, o, tk)
	runIntoMain(t, o, "stuck")

	o.Stop()
	rep := o.Tick(context.Background())
	if rep.Current != nil || logic.hardStops != 1 {
		t.Fatalf("expected immediate hard stop, current=%+v hardStops=%d", rep.Current, logic.hardStops)
	}
}

func TestHardFailureDisablesTask(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	o.SetActive(true)
	logic := &fakeLogic{}
	logic.onStep = func(env task.Env) {
		env.Reporter.ReportFinished("tool broke", task.ResultHardFailure)
	}
	tk := newTask("mine", logic)
	tk.Trigger = task.Interval{Every: time.Second}
	mustRegister(t, o, tk)

	rep := tickUntilIdle(t, o, 10)
	if rep.Last.Result != task.ResultHardFailure {
		t.Fatalf("unexpected outcome %+v", rep.Last)
	}
	info, _ := o.Task("mine")
	if info.Enabled {
		t.Fatalf("hard failure must disable the task")
	}
	clock.Advance(time.Minute)
	if rep := o.Tick(context.Background()); rep.Current != nil {
		t.Fatalf("disabled task must not be selected again")
	}
}

func TestRequirementFailureEndsRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, sim := newOrchestrator(t, clock)
	sim.Block("axe")
	logic := &fakeLogic{}
	tk := newTask("chop", logic)
	reg := requirement.NewRegistry()
	if err := reg.Register(requirement.Requirement{
		ID:          "axe",
		Description: "hold an axe",
		Priority:    requirement.Mandatory,
		Phase:       requirement.Pre,
		Spec:        requirement.ItemSpec{Item: "axe", Quantity: 1},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	tk.Requirements = reg
	mustRegister(t, o, tk)
	if err := o.Start("chop"); err != nil {
		t.Fatalf("start: %v", err)
	}
	rep := tickUntilIdle(t, o, 200)
	if rep.Last.Reason != task.StopReasonRequirements || rep.Last.Message != "hold an axe" {
		t.Fatalf("unexpected outcome %+v", rep.Last)
	}
	if logic.steps != 0 {
		t.Fatalf("logic must not run when a mandatory requirement fails")
	}
}

func TestLeafErrorsBecomeWarnings(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	tk := newTask("probe", &fakeLogic{})
	tk.Trigger = task.Interval{Every: time.Minute}
	tk.Start = condition.NewLeaf("broken", condition.Func{Label: "broken", Fn: func(condition.Env) (bool, error) {
		return false, errors.New("sensor offline")
	}})
	mustRegister(t, o, tk)
	rep := o.Tick(context.Background())
	if rep.Current != nil {
		t.Fatalf("faulted start condition must not start the task")
	}
	if len(rep.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", rep.Warnings)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := NewRepository(filepath.Join(t.TempDir(), "state", "history.json"))
	o, _ := newOrchestrator(t, clock, WithHistory(repo))
	mustRegister(t, o, newTask("gather", &fakeLogic{doneAfter: 1}))
	if err := o.Start("gather"); err != nil {
		t.Fatalf("start: %v", err)
	}
	tickUntilIdle(t, o, 10)

	restarted, _ := newOrchestrator(t, clock, WithHistory(repo))
	mustRegister(t, restarted, newTask("gather", &fakeLogic{}))
	info, err := restarted.Task("gather")
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if info.RunCount != 1 || info.LastResult != task.ResultSuccess {
		t.Fatalf("history not restored: %+v", info)
	}
}

func TestQueryHonoursVersion(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	mustRegister(t, o, newTask("bank", &queryLogic{version: 1}), newTask("plain", &fakeLogic{}))

	got, err := o.Query("bank", "trips", 1)
	if err != nil || got != 3 {
		t.Fatalf("query: %v %v", got, err)
	}
	if _, err := o.Query("bank", "trips", 2); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("newer version should be unsupported, got %v", err)
	}
	if _, err := o.Query("plain", "trips", 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("non-queryable logic should be unsupported, got %v", err)
	}
	if _, err := o.Query("nobody", "trips", 0); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestReloadRequirementsKeepsPreviousOnError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o, _ := newOrchestrator(t, clock)
	mustRegister(t, o, newTask("chop", &fakeLogic{}))
	good := []requirement.Requirement{{
		ID:       "axe",
		Priority: requirement.Mandatory,
		Phase:    requirement.Pre,
		Spec:     requirement.ItemSpec{Item: "axe", Quantity: 1},
	}}
	if err := o.ReloadRequirements("chop", good); err != nil {
		t.Fatalf("reload: %v", err)
	}
	bad := append(append([]requirement.Requirement(nil), good...), good[0])
	if err := o.ReloadRequirements("chop", bad); err == nil {
		t.Fatalf("duplicate ids should be rejected")
	}
	o.tasksMu.RLock()
	gen := o.tasks["chop"].Requirements.Snapshot()
	o.tasksMu.RUnlock()
	if gen.Len() != 1 {
		t.Fatalf("previous requirements should stay active, got %d", gen.Len())
	}
}
