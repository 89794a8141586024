package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/warden/internal/orchestrator"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrServerDisabled is returned by Start when the bridge is not configured.
var ErrServerDisabled = errors.New("eventbridge: server disabled")

// ReportSource supplies the latest orchestrator report for /snapshot and
// /health.
type ReportSource interface {
	Latest() (orchestrator.Report, bool)
}

// Server exposes the orchestrator's signals over loopback HTTP:
//
//	GET  /health    liveness plus the last tick seen
//	POST /events    report_finished, start, stop and lock requests
//	GET  /snapshot  the latest orchestrator report
type Server struct {
	settings  Settings
	processor EventProcessor
	attached  bool
	reports   ReportSource
	logger    Logger
	clock     func() time.Time

	mu        sync.RWMutex
	http      *http.Server
	listener  net.Listener
	status    ServerStatus
	startedAt time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithProcessor routes accepted events to p, usually a Router.
func WithProcessor(p EventProcessor) Option {
	return func(s *Server) {
		if p != nil {
			s.processor = p
			s.attached = true
		}
	}
}

// WithReports serves the latest report on /snapshot.
func WithReports(src ReportSource) Option {
	return func(s *Server) {
		s.reports = src
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server. Nothing listens until Start.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings:  settings,
		processor: EventProcessorFunc(func(Event) (Ack, error) { return Ack{Detail: "no orchestrator attached"}, nil }),
		logger:    nopLogger{},
		clock:     time.Now,
		status:    StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the listener and serves in the background. ctx becomes the
// base context of every request.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("eventbridge: server is nil")
	}
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.http = srv
	s.startedAt = s.now()
	s.status = StatusReady
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: listening on %s", listener.Addr())
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	return mux
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.http = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the scheme and host:port of the running server, falling
// back to the configured address.
func (s *Server) BaseURL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return s.settings.URL()
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	return s.clock().UTC()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()
	resp := healthResponse{
		Status:   string(s.Status()),
		Version:  ProtocolVersion,
		Attached: s.attached,
	}
	if !started.IsZero() {
		resp.UptimeSeconds = int64(s.now().Sub(started).Seconds())
	}
	if s.reports != nil {
		if report, ok := s.reports.Latest(); ok {
			resp.Tick = report.Tick
			if report.Current != nil {
				resp.Current = report.Current.Task
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	evt, status, err := s.decodeEvent(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	ack, err := s.processor.HandleEvent(evt)
	switch {
	case errors.Is(err, ErrDuplicateEvent):
		writeJSON(w, http.StatusOK, eventResponse{Status: "duplicate", ServerTime: evt.ServerTime})
	case err != nil:
		s.logger.Printf("eventbridge: %s event %s: %v", evt.Type, evt.EventID, err)
		writeError(w, http.StatusInternalServerError, "event processing failed")
	default:
		writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted", ServerTime: evt.ServerTime, Ack: ack})
	}
}

// decodeEvent reads, normalizes, validates and stamps one event. On failure
// it returns the HTTP status to answer with.
func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request) (Event, int, error) {
	if r.Body == nil {
		return Event{}, http.StatusBadRequest, errors.New("empty body")
	}
	limit := s.settings.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	reader := http.MaxBytesReader(w, r.Body, limit)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return Event{}, http.StatusRequestEntityTooLarge, errors.New("payload exceeds limit")
		}
		return Event{}, http.StatusBadRequest, errors.New("unable to read body")
	}
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, http.StatusBadRequest, errors.New("invalid JSON")
	}
	evt.Normalize()
	if err := evt.Validate(); err != nil {
		return Event{}, http.StatusBadRequest, err
	}
	evt.StampServerTime(s.now())
	return evt, http.StatusOK, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "no report source")
		return
	}
	report, ok := s.reports.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no report yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
