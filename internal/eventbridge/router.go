package eventbridge

import (
	"errors"
	"sync"

	"github.com/kingrea/warden/internal/orchestrator"
	"github.com/kingrea/warden/internal/task"
)

const (
	defaultSubscriberCapacity = 16
	defaultDedupeWindow       = 1024
)

// ErrDuplicateEvent is returned for an event id seen within the dedupe window.
var ErrDuplicateEvent = errors.New("eventbridge: duplicate event")

// Controller is the part of the orchestrator the bridge drives.
type Controller interface {
	ReportFinished(name, runID, reason string, result task.Result) bool
	Start(name string) error
	Stop() bool
	Lock() orchestrator.LockResult
	Unlock() orchestrator.LockResult
	ToggleLock() orchestrator.LockResult
}

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router turns inbound events into orchestrator calls and fans tick reports
// out to subscribers. Event ids are deduplicated so client retries are safe;
// subscriber channels are bounded and keep only the newest reports.
type Router struct {
	controller Controller

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	latest      *orchestrator.Report
	recentIDs   map[string]struct{}
	recentOrder []string

	channelSize  int
	dedupeWindow int
	logger       Logger
}

// Subscription represents an active report subscription.
type Subscription struct {
	Reports <-chan orchestrator.Report
	cancel  func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router dispatching to controller.
func NewRouter(controller Controller, opts ...RouterOption) *Router {
	r := &Router{
		controller:   controller,
		subscribers:  map[*subscriber]struct{}{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		dedupeWindow: defaultDedupeWindow,
		logger:       nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// HandleEvent satisfies the EventProcessor interface.
func (r *Router) HandleEvent(event Event) (Ack, error) {
	if event.EventID != "" && r.isDuplicate(event.EventID) {
		return Ack{}, ErrDuplicateEvent
	}
	if r.controller == nil {
		return Ack{Detail: "no orchestrator attached"}, nil
	}
	switch event.Type {
	case TypeReportFinished:
		result := event.Result
		if result == "" {
			result = task.ResultSuccess
		}
		if !r.controller.ReportFinished(event.Task, event.RunID, event.Reason, result) {
			return Ack{Detail: "stale report ignored"}, nil
		}
		return Ack{Accepted: true}, nil
	case TypeStart:
		if err := r.controller.Start(event.Task); err != nil {
			return Ack{Detail: err.Error()}, nil
		}
		return Ack{Accepted: true}, nil
	case TypeStop:
		if !r.controller.Stop() {
			return Ack{Detail: "no task running"}, nil
		}
		return Ack{Accepted: true}, nil
	case TypeLock, TypeUnlock, TypeToggleLock:
		var res orchestrator.LockResult
		switch event.Type {
		case TypeLock:
			res = r.controller.Lock()
		case TypeUnlock:
			res = r.controller.Unlock()
		default:
			res = r.controller.ToggleLock()
		}
		return Ack{Accepted: res.Status == orchestrator.LockApplied, Detail: string(res.Status), Lock: &res}, nil
	default:
		return Ack{Detail: "unsupported event type"}, nil
	}
}

// Publish records report as the latest and delivers it to subscribers. It
// has the signature of orchestrator.Sink.
func (r *Router) Publish(report orchestrator.Report) {
	r.mu.Lock()
	r.latest = &report
	subs := make([]*subscriber, 0, len(r.subscribers))
	for sub := range r.subscribers {
		subs = append(subs, sub)
	}
	r.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(report)
	}
}

// Latest returns the most recently published report.
func (r *Router) Latest() (orchestrator.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return orchestrator.Report{}, false
	}
	return *r.latest, true
}

// Subscribe registers for published reports. The latest report, if any, is
// delivered immediately.
func (r *Router) Subscribe() Subscription {
	sub := newSubscriber(r.channelSize, r.logger)
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	latest := r.latest
	r.mu.Unlock()
	if latest != nil {
		sub.deliver(*latest)
	}
	return Subscription{
		Reports: sub.channel(),
		cancel: func() {
			r.removeSubscriber(sub)
		},
	}
}

func (r *Router) removeSubscriber(sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, sub)
	sub.close()
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan orchestrator.Report
	logger Logger
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan orchestrator.Report, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan orchestrator.Report {
	return s.ch
}

// deliver never blocks: when the buffer is full the oldest report is dropped.
func (s *subscriber) deliver(report orchestrator.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- report:
			return
		default:
		}
		select {
		case dropped := <-s.ch:
			s.logger.Printf("eventbridge: subscriber lagging, dropped report for tick %d", dropped.Tick)
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
