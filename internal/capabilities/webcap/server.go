package webcap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ocfu/espconsole/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 5 * time.Second

// Error codes of JSON error responses.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeUnavailable = "unavailable"
	ErrCodeTimeout     = "timeout"
)

// ErrStopped is returned to requests pending when the server stops.
var ErrStopped = errors.New("web: server stopped")

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// Error is a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the response to a command line.
type Result struct {
	Line   string `json:"line"`
	Exit   int    `json:"exit"`
	Output string `json:"output"`
}

// Health is the response of the health endpoint.
type Health struct {
	Status   string `json:"status"`
	Hostname string `json:"hostname"`
	Uptime   int64  `json:"uptime_s"`
	FreeHeap uint64 `json:"free_heap"`
}

// Runner executes work on the console loop. Handlers never touch runtime
// state directly.
type Runner interface {
	Command(line string) Result
	Health() Health
	Vars() map[string]string
}

// job is one unit of work handed to the loop.
type job struct {
	run   func(Runner) any
	reply chan any
}

// Server serves the HTTP API and the websocket console.
type Server struct {
	logger  *logging.Logger
	maxMsg  int64
	timeout time.Duration

	jobs chan job
	done chan struct{}

	srv *http.Server
	ln  net.Listener

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// NewServer creates a stopped server.
func NewServer(logger *logging.Logger, maxMessage int, timeout time.Duration) *Server {
	if maxMessage <= 0 {
		maxMessage = 4096
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		logger:  logger,
		maxMsg:  int64(maxMessage),
		timeout: timeout,
		jobs:    make(chan job, 16),
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	if s.srv != nil {
		return fmt.Errorf("web: already listening on %s", s.Addr())
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.done = make(chan struct{})
	s.mu.Lock()
	s.closing = false
	s.mu.Unlock()
	s.srv = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", err)
		}
	}()
	s.logger.Info("web server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or "" when stopped.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Running reports whether the server is listening.
func (s *Server) Running() bool { return s.srv != nil }

// Clients returns the number of websocket connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops the listener, closes websocket connections and waits for the
// server goroutines.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	close(s.done)
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	s.closing = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.srv, s.ln = nil, nil
	if err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// Serve runs up to max queued jobs. It is called from the console loop.
func (s *Server) Serve(r Runner, max int) int {
	n := 0
	for n < max {
		select {
		case j := <-s.jobs:
			j.reply <- j.run(r)
			n++
		default:
			return n
		}
	}
	return n
}

// submit hands fn to the loop and waits for its result.
func (s *Server) submit(ctx context.Context, fn func(Runner) any) (any, error) {
	j := job{run: fn, reply: make(chan any, 1)}
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.jobs <- j:
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStopped
	}
	select {
	case v := <-j.reply:
		return v, nil
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStopped
	}
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/vars", s.handleVars)
		r.Post("/cmd", s.handleCommand)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	v, err := s.submit(r.Context(), func(run Runner) any { return run.Health() })
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleVars(w http.ResponseWriter, r *http.Request) {
	v, err := s.submit(r.Context(), func(run Runner) any { return run.Vars() })
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type commandRequest struct {
	Line string `json:"line"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxMsg)
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Line == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "line is required")
		return
	}
	v, err := s.submit(r.Context(), func(run Runner) any { return run.Command(req.Line) })
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "console loop did not respond")
		return
	}
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
}

// handleWebSocket runs a console session: each text message is a command
// line, each reply a Result.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		s.readPump(conn)
	}()
}

func (s *Server) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(s.maxMsg)
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		line := string(msg)
		v, err := s.submit(context.Background(), func(run Runner) any { return run.Command(line) })
		if err != nil {
			v = Error{Status: http.StatusServiceUnavailable, Code: ErrCodeUnavailable, Message: err.Error()}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
		if err := conn.WriteJSON(v); err != nil {
			return
		}
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("web: response does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}
