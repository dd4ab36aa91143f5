package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"remindly/internal/agenda"
	"remindly/internal/command"
	"remindly/internal/config"
	"remindly/internal/ics"
	appLog "remindly/internal/log"
	"remindly/internal/scheduler"
	"remindly/internal/store"
)

const maxCommandBytes = 16 << 10

// Server is the HTTP transport: it receives command text, exposes views and
// the calendar feed, and lets an external scheduler trigger the passes.
type Server struct {
	cfg   *config.Config
	svc   *agenda.Service
	sched *scheduler.Scheduler
	mux   *http.ServeMux
}

// NewServer constructs a new Server. sched may be nil, in which case the
// tick endpoints answer 503.
func NewServer(cfg *config.Config, svc *agenda.Service, sched *scheduler.Scheduler) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		sched: sched,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="remindly", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("POST /api/tick/{pass}", s.handleTick)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type commandRequest struct {
	Text string `json:"text"`
}

// handleCommand runs one command.
//
// POST /api/command
//   - JSON body {"text": "add Gym tomorrow 7am"}, or
//   - a text/plain body holding the command itself.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	text, err := readCommandText(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "", "empty command")
		return
	}

	res, err := s.svc.HandleCommand(r.Context(), text)
	if err != nil {
		s.writeCommandError(w, text, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readCommandText(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		return strings.TrimSpace(string(body)), nil
	}
	var req commandRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}
	return strings.TrimSpace(req.Text), nil
}

func (s *Server) writeCommandError(w http.ResponseWriter, text string, err error) {
	code := agenda.Code(err)
	switch {
	case errors.Is(err, agenda.ErrNoMatch):
		writeError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, agenda.ErrAmbiguous):
		writeError(w, http.StatusConflict, code, err.Error())
	case agenda.IsUserError(err):
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	default:
		appLog.Error("api command failed", err, "text", text)
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

// handleTasks returns a view.
//
// GET /api/tasks?view=list|today|week|month (default list)
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	v := command.View(strings.ToLower(r.URL.Query().Get("view")))
	switch v {
	case "":
		v = command.ViewList
	case command.ViewList, command.ViewToday, command.ViewWeek, command.ViewMonth:
	default:
		writeError(w, http.StatusBadRequest, "UnknownCommand", "unknown view "+string(v))
		return
	}
	res, err := s.svc.View(r.Context(), v)
	if err != nil {
		appLog.Error("api tasks failed", err, "view", string(v))
		writeError(w, http.StatusInternalServerError, "Internal", "failed to build view")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCalendar serves every active task as an iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Store().ListActiveTasks(r.Context(), store.TaskFilter{})
	if err != nil {
		appLog.Error("calendar feed failed", err)
		writeError(w, http.StatusInternalServerError, "Internal", "failed to list tasks")
		return
	}
	var buf bytes.Buffer
	err = ics.Write(&buf, tasks, ics.ExportConfig{
		Location: s.svc.Location(),
		Name:     "remindly",
		Now:      s.svc.Now(),
	})
	if err != nil {
		appLog.Error("calendar feed failed", err)
		writeError(w, http.StatusInternalServerError, "Internal", "failed to render calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="remindly.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleTick runs one scheduler pass on demand.
//
// POST /api/tick/expand | /api/tick/dispatch | /api/tick/cleanup
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "", "scheduler not configured")
		return
	}
	ctx := r.Context()
	switch pass := r.PathValue("pass"); pass {
	case "expand":
		writeJSON(w, http.StatusOK, s.sched.Expand(ctx))
	case "dispatch":
		writeJSON(w, http.StatusOK, s.sched.Dispatch(ctx))
	case "cleanup":
		writeJSON(w, http.StatusOK, s.sched.Cleanup(ctx))
	default:
		writeError(w, http.StatusNotFound, "", "unknown pass "+pass)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errResp{Error: msg, Code: code})
}
