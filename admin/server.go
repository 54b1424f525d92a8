// Package admin exposes a running module system over HTTP and reports its
// health on a cron schedule.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/modsys"
	"github.com/GoCodeAlone/modsys/graph"
	"github.com/GoCodeAlone/modsys/health"
	"github.com/GoCodeAlone/modsys/lifecycle"
)

const shutdownTimeout = 10 * time.Second

// Server serves the admin API of one module system.
type Server struct {
	sys    *modsys.ModuleSystem
	logger modsys.Logger
	router chi.Router
}

// ModuleView is the JSON shape of one registered module.
type ModuleView struct {
	modsys.ModuleDescriptor
	Lifecycle *lifecycle.Info `json:"lifecycle,omitempty"`
}

// TransitionView is the JSON shape of a lifecycle transition result.
type TransitionView struct {
	Module    string          `json:"module"`
	Operation string          `json:"operation"`
	Outcome   string          `json:"outcome"`
	From      lifecycle.State `json:"from"`
	To        lifecycle.State `json:"to"`
	Error     string          `json:"error,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Duration  string          `json:"duration"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewServer builds the router. A nil logger discards request logs.
func NewServer(sys *modsys.ModuleSystem, logger modsys.Logger) *Server {
	if logger == nil {
		logger = nopLogger{}
	}
	s := &Server{sys: sys, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/modules", s.listModules)
	r.Get("/modules/{name}", s.getModule)
	r.Post("/modules/{name}/{action}", s.transition)
	r.Get("/graph", s.graph)
	r.Get("/health", s.health)
	r.Get("/stats", s.stats)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	s.logger.Info("Admin server listening", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.logger.Info("Admin server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(started))
	})
}

func (s *Server) listModules(w http.ResponseWriter, _ *http.Request) {
	descs := s.sys.Modules().Descriptors()
	views := make([]ModuleView, 0, len(descs))
	for _, d := range descs {
		views = append(views, s.view(d))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.sys.Modules().Get(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", modsys.ErrModuleNotFound, name))
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(d))
}

func (s *Server) view(d modsys.ModuleDescriptor) ModuleView {
	v := ModuleView{ModuleDescriptor: d}
	if info, ok := s.sys.Lifecycle().Info(d.Name); ok {
		v.Lifecycle = info
	}
	return v
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	action := chi.URLParam(r, "action")

	// A client hanging up must not abandon the transition half way; the
	// system's transition timeout still bounds it.
	res, err := s.sys.Transition(context.WithoutCancel(r.Context()), name, action)
	switch {
	case errors.Is(err, modsys.ErrModuleNotFound):
		s.writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Info("Transition requested", "module", name, "action", action, "outcome", res.Outcome.String())
	s.writeJSON(w, statusFor(res.Outcome), transitionView(res))
}

func statusFor(o lifecycle.Outcome) int {
	switch o {
	case lifecycle.OutcomeSuccess:
		return http.StatusOK
	case lifecycle.OutcomeBlocked:
		return http.StatusConflict
	case lifecycle.OutcomeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func transitionView(res lifecycle.Result) TransitionView {
	v := TransitionView{
		Module:    res.Module,
		Operation: res.Operation,
		Outcome:   res.Outcome.String(),
		From:      res.From,
		To:        res.To,
		Reason:    res.Reason,
		Duration:  res.Duration.String(),
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	result := s.sys.Analyze()
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		s.writeJSON(w, http.StatusOK, result)
	case "dot":
		s.writeText(w, "text/vnd.graphviz; charset=utf-8", graph.ToDOT(result))
	case "mermaid":
		s.writeText(w, "text/plain; charset=utf-8", graph.ToMermaid(result))
	case "report":
		s.writeText(w, "text/plain; charset=utf-8", graph.Report(result))
	case "svg":
		svg, err := graph.RenderSVG(r.Context(), graph.ToDOT(result))
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(svg)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown graph format %q", format))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	report := s.sys.Health(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sys.Lifecycle().Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(body))
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
