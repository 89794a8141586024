// Package tui renders the orchestrator status board. It follows The Elm
// Architecture used by bubbletea: reports and key presses arrive as
// messages, Update folds them into the App and View renders it.
package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/warden/internal/logbook"
	"github.com/kingrea/warden/internal/orchestrator"
	"github.com/kingrea/warden/internal/task"
)

const logPanelLines = 6

// Controller is the part of the orchestrator the board drives from key presses.
type Controller interface {
	Start(name string) error
	Stop() bool
	ToggleLock() orchestrator.LockResult
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the logbook tail and pending acknowledgements.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithTitle overrides the header text.
func WithTitle(title string) AppOption {
	return func(a *App) {
		if strings.TrimSpace(title) != "" {
			a.title = title
		}
	}
}

// ReportMsg carries a tick report into the program. Callers holding a
// *tea.Program may also deliver reports with program.Send(ReportMsg(r)).
type ReportMsg orchestrator.Report

type reportsClosedMsg struct{}

// App is the status board model.
type App struct {
	controller Controller
	reports    <-chan orchestrator.Report
	logbook    *logbook.Logbook
	title      string

	spinner   spinner.Model
	report    orchestrator.Report
	hasReport bool
	selection int
	statusMsg string
	closed    bool

	width  int
	height int
}

// New builds the board. reports may be nil when reports are delivered with
// program.Send instead.
func New(controller Controller, reports <-chan orchestrator.Report, opts ...AppOption) *App {
	a := &App{
		controller: controller,
		reports:    reports,
		title:      "⬡ WARDEN",
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(labelStyleRunning),
		),
		statusMsg: "Waiting for the first tick...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, waitForReport(a.reports))
}

func waitForReport(reports <-chan orchestrator.Report) tea.Cmd {
	if reports == nil {
		return nil
	}
	return func() tea.Msg {
		report, ok := <-reports
		if !ok {
			return reportsClosedMsg{}
		}
		return ReportMsg(report)
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case ReportMsg:
		a.applyReport(orchestrator.Report(msg))
		return a, waitForReport(a.reports)

	case reportsClosedMsg:
		a.closed = true
		a.statusMsg = "Orchestrator stopped."
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) applyReport(report orchestrator.Report) {
	first := !a.hasReport
	a.report = report
	a.hasReport = true
	if a.selection >= len(report.Tasks) {
		a.selection = max(0, len(report.Tasks)-1)
	}
	if first {
		a.statusMsg = ""
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit
	case "up", "k":
		if a.selection > 0 {
			a.selection--
		}
	case "down", "j":
		if a.selection < len(a.report.Tasks)-1 {
			a.selection++
		}
	case "l":
		a.toggleLock()
	case "s":
		a.stopCurrent()
	case "enter":
		a.startSelected()
	case "a":
		a.clearOldestAck()
	}
	return a, nil
}

func (a *App) toggleLock() {
	if a.controller == nil {
		return
	}
	res := a.controller.ToggleLock()
	switch res.Status {
	case orchestrator.LockApplied:
		state := "unlocked"
		if res.Locked {
			state = "locked"
		}
		a.statusMsg = fmt.Sprintf("%s %s", res.Task, state)
	case orchestrator.LockUnsupported:
		a.statusMsg = fmt.Sprintf("%s has no lock in its stop conditions", res.Task)
	default:
		a.statusMsg = "No task is running."
	}
}

func (a *App) stopCurrent() {
	if a.controller == nil {
		return
	}
	if a.controller.Stop() {
		a.statusMsg = "Stop requested."
		return
	}
	a.statusMsg = "No task is running."
}

func (a *App) startSelected() {
	if a.controller == nil || len(a.report.Tasks) == 0 {
		return
	}
	name := a.report.Tasks[a.selection].Name
	err := a.controller.Start(name)
	switch {
	case err == nil:
		a.statusMsg = fmt.Sprintf("Starting %s...", name)
	case errors.Is(err, orchestrator.ErrTaskBusy):
		a.statusMsg = "Another task is running; stop it first."
	default:
		a.statusMsg = fmt.Sprintf("Cannot start %s: %v", name, err)
	}
}

func (a *App) clearOldestAck() {
	pending := a.logbook.Pending()
	if len(pending) == 0 {
		return
	}
	if a.logbook.Clear(pending[0].Key) {
		a.statusMsg = fmt.Sprintf("Acknowledged %s.", pending[0].Key)
	}
}

// View renders the board.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}

	header := a.title
	if a.hasReport && a.report.Active && a.report.Current != nil {
		header = fmt.Sprintf("%s %s", header, a.spinner.View())
	}
	sections := []string{headerStyle.Render(header)}

	left := panelStyle.Width(max(20, leftWidth)).Render(a.renderCurrent(leftWidth - 4))
	body := left
	if rightWidth > 0 {
		right := panelStyle.Width(max(20, rightWidth)).Render(a.renderTasks(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, left, panelStyle.Render(a.renderTasks(leftWidth-4)))
	}
	sections = append(sections, body)
	if panel := a.renderLogPanel(); panel != "" {
		sections = append(sections, panel)
	}
	if a.statusMsg != "" {
		sections = append(sections, mutedStyle.Render(a.statusMsg))
	}
	sections = append(sections, hintStyle.Render("enter=start  s=stop  l=toggle lock  a=acknowledge  q=quit"))
	return strings.Join(sections, "\n")
}

func (a *App) renderCurrent(width int) string {
	lines := []string{titleStyle.Render("CURRENT")}
	if !a.hasReport {
		return strings.Join(append(lines, mutedStyle.Render("No report yet.")), "\n")
	}
	if !a.report.Active {
		lines = append(lines, labelStyleSkipped.Render("Orchestrator inactive"))
	}
	run := a.report.Current
	if run == nil {
		lines = append(lines, mutedStyle.Render("Idle. Waiting for a due task."))
	} else {
		status := lifecycleStyle(run.Lifecycle).Render(friendlyLabel(string(run.Lifecycle)))
		lines = append(lines, fmt.Sprintf("%s · %s · %s", run.Task, status, humanizeDuration(a.report.At.Sub(run.StartedAt))))
		lines = append(lines, detailStyle.Render(run.Execution.Details()))
		stop := fmt.Sprintf("Stop conditions: %d/%d", run.StopProgress[0], run.StopProgress[1])
		if run.StopMet {
			stop += " · " + labelStyleReady.Render("met")
		}
		if run.Locked {
			stop += " · " + labelStyleLocked.Render("locked")
		}
		lines = append(lines, stop)
		if run.StopReason != "" && run.StopReason != task.StopReasonNone {
			lines = append(lines, fmt.Sprintf("Stopping: %s", friendlyLabel(string(run.StopReason))))
		}
		if tree := strings.TrimSpace(run.StopTree); tree != "" {
			lines = append(lines, detailStyle.Render(tree))
		}
	}
	if last := a.report.Last; last != nil {
		result := resultStyle(last.Result).Render(friendlyLabel(string(last.Result)))
		line := fmt.Sprintf("Last: %s · %s · %s", last.Task, result, friendlyLabel(string(last.Reason)))
		if last.Message != "" {
			line += " · " + last.Message
		}
		lines = append(lines, "", line)
	}
	for _, warning := range a.report.Warnings {
		lines = append(lines, labelStyleBlocked.Render("! "+warning))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) renderTasks(width int) string {
	lines := []string{titleStyle.Render("TASKS")}
	if len(a.report.Tasks) == 0 {
		lines = append(lines, mutedStyle.Render("No tasks registered."))
	}
	for i, info := range a.report.Tasks {
		indicator := " "
		if i == a.selection {
			indicator = ">"
		}
		lines = append(lines, fmt.Sprintf("%s %s · [%s]", indicator, info.Name, strings.Join(a.taskLabels(info), ", ")))
		if i == a.selection {
			lines = append(lines, a.renderTaskDetails(info))
		}
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) taskLabels(info task.Info) []string {
	var labels []string
	if !info.Enabled {
		labels = append(labels, labelStyleSkipped.Render("Disabled"))
	} else {
		labels = append(labels, lifecycleStyle(info.Lifecycle).Render(friendlyLabel(string(info.Lifecycle))))
	}
	if info.Default {
		labels = append(labels, labelStyleDefault.Render("Default"))
	}
	if skip, ok := a.report.Skipped[info.Name]; ok && info.Enabled && !info.Lifecycle.Active() {
		labels = append(labels, labelStyleSkipped.Render(friendlyLabel(string(skip.Reason))))
	}
	return labels
}

func (a *App) renderTaskDetails(info task.Info) string {
	details := []string{fmt.Sprintf("priority %d · %s · runs %d", info.Priority, info.Trigger, info.RunCount)}
	if info.Description != "" {
		details = append(details, info.Description)
	}
	if !info.LastRun.IsZero() {
		line := fmt.Sprintf("last %s ago: %s", humanizeDuration(a.report.At.Sub(info.LastRun)), friendlyLabel(string(info.LastResult)))
		if info.LastMessage != "" {
			line += " · " + info.LastMessage
		}
		details = append(details, line)
	}
	if skip, ok := a.report.Skipped[info.Name]; ok && skip.Detail != "" {
		details = append(details, skip.Detail)
	}
	return detailStyle.Render("  " + strings.Join(details, "\n  "))
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	var lines []string
	for _, ack := range a.logbook.Pending() {
		lines = append(lines, labelStyleLocked.Render(fmt.Sprintf("ACK %s: %s", ack.Key, ack.Message)))
	}
	tail, _ := a.logbook.Tail(logPanelLines)
	lines = append(lines, tail...)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := titleStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	return panelStyle.Render(fmt.Sprintf("%s\n%s", head, hintStyle.Render(strings.Join(lines, "\n"))))
}

func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
