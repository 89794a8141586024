package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/warden/internal/logbook"
	"github.com/kingrea/warden/internal/orchestrator"
	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/workflow/engine"
)

type stubController struct {
	started []string
	stops   int
	lock    orchestrator.LockResult
	busy    bool
}

func (c *stubController) Start(name string) error {
	if c.busy {
		return orchestrator.ErrTaskBusy
	}
	c.started = append(c.started, name)
	return nil
}

func (c *stubController) Stop() bool {
	c.stops++
	return true
}

func (c *stubController) ToggleLock() orchestrator.LockResult {
	c.lock.Locked = !c.lock.Locked
	return c.lock
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sampleReport() orchestrator.Report {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return orchestrator.Report{
		At:     now,
		Tick:   4,
		Active: true,
		Current: &orchestrator.RunReport{
			Task:         "woodcut",
			RunID:        "run-1",
			StartedAt:    now.Add(-90 * time.Second),
			Lifecycle:    task.LifecycleRunning,
			Execution:    engine.Snapshot{Phase: engine.PhaseMain, Status: engine.StatusCustomTasks},
			StopProgress: [2]int{1, 3},
			Locked:       true,
		},
		Tasks: []task.Info{
			{Name: "woodcut", Enabled: true, Priority: 2, Trigger: "manual", Lifecycle: task.LifecycleRunning},
			{Name: "fish", Enabled: true, Priority: 1, Trigger: "every 5m0s", Lifecycle: task.LifecycleIdle},
			{Name: "mine", Enabled: false, Trigger: "manual", Lifecycle: task.LifecycleIdle},
		},
		Last: &orchestrator.Outcome{Task: "fish", Result: task.ResultSoftFailure, Reason: task.StopReasonRequirements, Message: "no bait"},
	}
}

func TestReportsFeedTheBoard(t *testing.T) {
	reports := make(chan orchestrator.Report, 1)
	app := New(&stubController{}, reports)
	reports <- sampleReport()
	msg := waitForReport(reports)()
	if _, ok := msg.(ReportMsg); !ok {
		t.Fatalf("expected ReportMsg, got %T", msg)
	}
	_, cmd := app.Update(msg)
	if cmd == nil {
		t.Fatalf("board should keep listening for reports")
	}
	view := app.View()
	for _, want := range []string{"woodcut", "1/3", "locked", "Soft Failure", "no bait", "Disabled"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	close(reports)
	if _, ok := waitForReport(reports)().(reportsClosedMsg); !ok {
		t.Fatalf("closed channel should end the feed")
	}
}

func TestKeysDriveController(t *testing.T) {
	ctrl := &stubController{lock: orchestrator.LockResult{Status: orchestrator.LockApplied, Task: "woodcut", Locked: true}}
	app := New(ctrl, nil)
	app.Update(ReportMsg(sampleReport()))

	app.Update(runes("l"))
	if ctrl.lock.Locked || !strings.Contains(app.statusMsg, "unlocked") {
		t.Fatalf("toggle should unlock, status %q", app.statusMsg)
	}
	app.Update(runes("s"))
	if ctrl.stops != 1 {
		t.Fatalf("expected one stop, got %d", ctrl.stops)
	}
	app.Update(runes("j"))
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if len(ctrl.started) != 1 || ctrl.started[0] != "fish" {
		t.Fatalf("expected fish to start, got %v", ctrl.started)
	}
	ctrl.busy = true
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(app.statusMsg, "stop it first") {
		t.Fatalf("busy start should explain itself, got %q", app.statusMsg)
	}
	if _, cmd := app.Update(runes("q")); cmd == nil {
		t.Fatalf("q should quit")
	}
}

func TestSelectionClampsWhenTasksShrink(t *testing.T) {
	app := New(&stubController{}, nil)
	app.Update(ReportMsg(sampleReport()))
	app.Update(runes("j"))
	app.Update(runes("j"))
	app.Update(runes("j"))
	if app.selection != 2 {
		t.Fatalf("selection should stop at the last task, got %d", app.selection)
	}
	report := sampleReport()
	report.Tasks = report.Tasks[:1]
	app.Update(ReportMsg(report))
	if app.selection != 0 {
		t.Fatalf("selection should clamp, got %d", app.selection)
	}
}

func TestAcknowledgeClearsOldestEntry(t *testing.T) {
	lb, err := logbook.New(filepath.Join(t.TempDir(), "logs", "warden.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	lb.Acknowledge("fish/run-1", "fish ended: %s", "no bait")
	app := New(&stubController{}, nil, WithLogbook(lb))
	app.Update(ReportMsg(sampleReport()))
	if view := app.View(); !strings.Contains(view, "ACK fish/run-1") {
		t.Fatalf("pending acknowledgement should be shown:\n%s", view)
	}
	app.Update(runes("a"))
	if len(lb.Pending()) != 0 {
		t.Fatalf("acknowledgement should be cleared")
	}
}
