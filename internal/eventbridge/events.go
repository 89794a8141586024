package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/warden/internal/orchestrator"
	"github.com/kingrea/warden/internal/task"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported inbound event version.
	EventSchemaVersion = 1
)

// Inbound event types.
const (
	TypeReportFinished = "report_finished"
	TypeLock           = "lock"
	TypeUnlock         = "unlock"
	TypeToggleLock     = "toggle_lock"
	TypeStop           = "stop"
	TypeStart          = "start"
)

// Event is a signal sent to the orchestrator by an external collaborator:
// task logic running out of process, an overlay button or a script.
type Event struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Task       string          `json:"task,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Result     task.Result     `json:"result,omitempty"`
	ClientTime time.Time       `json:"client_time"`
	ServerTime time.Time       `json:"server_time"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Normalize applies defaults and canonical formatting before validation.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.Task = strings.TrimSpace(e.Task)
	e.RunID = strings.TrimSpace(e.RunID)
	e.Reason = strings.TrimSpace(e.Reason)
	e.Result = task.Result(strings.ToLower(strings.TrimSpace(string(e.Result))))
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for incoming events.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	switch e.Type {
	case "":
		return errors.New("type is required")
	case TypeReportFinished:
		if e.Task == "" {
			return errors.New("task is required")
		}
		if e.RunID == "" {
			return errors.New("run_id is required")
		}
		switch e.Result {
		case "", task.ResultSuccess, task.ResultSoftFailure, task.ResultHardFailure:
		default:
			return fmt.Errorf("result %q not supported", e.Result)
		}
	case TypeStart:
		if e.Task == "" {
			return errors.New("task is required")
		}
	case TypeLock, TypeUnlock, TypeToggleLock, TypeStop:
	default:
		return fmt.Errorf("type %q not supported", e.Type)
	}
	return nil
}

// Ack is the processor's answer to an event.
type Ack struct {
	Accepted bool                     `json:"accepted"`
	Detail   string                   `json:"detail,omitempty"`
	Lock     *orchestrator.LockResult `json:"lock,omitempty"`
}

// EventProcessor consumes validated events.
type EventProcessor interface {
	HandleEvent(Event) (Ack, error)
}

// EventProcessorFunc adapts a function into an EventProcessor.
type EventProcessorFunc func(Event) (Ack, error)

// HandleEvent executes f(e).
func (f EventProcessorFunc) HandleEvent(e Event) (Ack, error) {
	if f == nil {
		return Ack{}, nil
	}
	return f(e)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Attached      bool   `json:"orchestrator_attached"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Tick          uint64 `json:"tick,omitempty"`
	Current       string `json:"current,omitempty"`
}

type eventResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
	Ack        Ack       `json:"ack"`
}
