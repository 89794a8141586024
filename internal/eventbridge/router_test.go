package eventbridge

import (
	"errors"
	"testing"

	"github.com/kingrea/warden/internal/orchestrator"
	"github.com/kingrea/warden/internal/task"
)

type fakeController struct {
	current  string
	reports  []string
	starts   []string
	stops    int
	lockable bool
	locked   bool
}

func (c *fakeController) ReportFinished(name, runID, reason string, result task.Result) bool {
	if name != c.current {
		return false
	}
	c.reports = append(c.reports, name+":"+reason+":"+string(result))
	return true
}

func (c *fakeController) Start(name string) error {
	if c.current != "" {
		return orchestrator.ErrTaskBusy
	}
	c.starts = append(c.starts, name)
	return nil
}

func (c *fakeController) Stop() bool {
	c.stops++
	return c.current != ""
}

func (c *fakeController) lock(fn func()) orchestrator.LockResult {
	if c.current == "" {
		return orchestrator.LockResult{Status: orchestrator.LockNoCurrentTask}
	}
	if !c.lockable {
		return orchestrator.LockResult{Status: orchestrator.LockUnsupported, Task: c.current}
	}
	fn()
	return orchestrator.LockResult{Status: orchestrator.LockApplied, Task: c.current, Locked: c.locked}
}

func (c *fakeController) Lock() orchestrator.LockResult {
	return c.lock(func() { c.locked = true })
}

func (c *fakeController) Unlock() orchestrator.LockResult {
	return c.lock(func() { c.locked = false })
}

func (c *fakeController) ToggleLock() orchestrator.LockResult {
	return c.lock(func() { c.locked = !c.locked })
}

func TestRouterDispatchesReportFinished(t *testing.T) {
	ctrl := &fakeController{current: "Y"}
	router := NewRouter(ctrl)
	ack, err := router.HandleEvent(Event{EventID: "1", Type: TypeReportFinished, Task: "X", Reason: "done"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ack.Accepted {
		t.Fatalf("report from a task that is not current must not be accepted")
	}
	ack, _ = router.HandleEvent(Event{EventID: "2", Type: TypeReportFinished, Task: "Y", Reason: "done"})
	if !ack.Accepted {
		t.Fatalf("report from the current task should be accepted")
	}
	if len(ctrl.reports) != 1 || ctrl.reports[0] != "Y:done:success" {
		t.Fatalf("unexpected reports %v", ctrl.reports)
	}
}

func TestRouterDedupeByEventID(t *testing.T) {
	ctrl := &fakeController{current: "Y"}
	router := NewRouter(ctrl)
	event := Event{EventID: "evt-1", Type: TypeStop}
	if _, err := router.HandleEvent(event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := router.HandleEvent(event); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if ctrl.stops != 1 {
		t.Fatalf("duplicate must not reach the controller, got %d stops", ctrl.stops)
	}
}

func TestRouterLockEvents(t *testing.T) {
	ctrl := &fakeController{current: "woodcut"}
	router := NewRouter(ctrl)
	ack, _ := router.HandleEvent(Event{EventID: "1", Type: TypeToggleLock})
	if ack.Accepted || ack.Lock == nil || ack.Lock.Status != orchestrator.LockUnsupported {
		t.Fatalf("expected unsupported, got %+v", ack)
	}
	ctrl.lockable = true
	ack, _ = router.HandleEvent(Event{EventID: "2", Type: TypeLock})
	if !ack.Accepted || !ack.Lock.Locked {
		t.Fatalf("expected lock to apply, got %+v", ack)
	}
	ack, _ = router.HandleEvent(Event{EventID: "3", Type: TypeToggleLock})
	if ack.Lock.Locked {
		t.Fatalf("toggle should release the lock")
	}
}

func TestRouterStartReportsBusy(t *testing.T) {
	ctrl := &fakeController{current: "woodcut"}
	router := NewRouter(ctrl)
	ack, err := router.HandleEvent(Event{EventID: "1", Type: TypeStart, Task: "fish"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ack.Accepted || ack.Detail == "" {
		t.Fatalf("expected a busy rejection, got %+v", ack)
	}
}

func TestRouterPublishKeepsNewestReports(t *testing.T) {
	router := NewRouter(nil, RouterWithSubscriberCapacity(2))
	if _, ok := router.Latest(); ok {
		t.Fatalf("no report published yet")
	}
	sub := router.Subscribe()
	defer sub.Close()
	for tick := uint64(1); tick <= 3; tick++ {
		router.Publish(orchestrator.Report{Tick: tick})
	}
	first := <-sub.Reports
	second := <-sub.Reports
	if first.Tick != 2 || second.Tick != 3 {
		t.Fatalf("expected ticks 2 and 3, got %d and %d", first.Tick, second.Tick)
	}
	latest, ok := router.Latest()
	if !ok || latest.Tick != 3 {
		t.Fatalf("unexpected latest %+v", latest)
	}

	late := router.Subscribe()
	defer late.Close()
	if got := <-late.Reports; got.Tick != 3 {
		t.Fatalf("late subscriber should receive the latest report, got %d", got.Tick)
	}
}
