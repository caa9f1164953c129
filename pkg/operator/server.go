package operator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/pagewire/pkg/channel"
	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/session"
)

// ChannelStatus is the part of *channel.Client the health check reads.
type ChannelStatus interface {
	State() channel.State
	QueueLen() int
}

// Config configures the operator API.
type Config struct {
	// Addr is the listen address.
	Addr string

	// Version is reported by /healthz.
	Version string

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	Sessions *session.Store
	Registry *router.Registry
	Channel  ChannelStatus

	// ShutdownTimeout bounds graceful shutdown. Default 5s.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// Server is the operator HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New builds the router. It does not listen.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger.With("component", "operator")}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/pages", func(r chi.Router) {
		r.Get("/", s.handlePages)
		r.Get("/{id}", s.handlePage)
	})
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleSessions)
		r.Get("/{id}", s.handleSession)
	})
	return r
}

// Handler returns the API's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("operator API listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("operator shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("operator request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Channel string `json:"channel,omitempty"`
	Queue   int    `json:"queue"`
	Pages   int    `json:"pages"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.cfg.Version}
	if s.cfg.Registry != nil {
		resp.Pages = s.cfg.Registry.Len()
	}
	code := http.StatusOK
	if s.cfg.Channel != nil {
		state := s.cfg.Channel.State()
		resp.Channel = state.String()
		resp.Queue = s.cfg.Channel.QueueLen()
		if state != channel.StateOpen {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

type pageView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Route        string   `json:"route"`
	AccessGroups []string `json:"access_groups"`
}

func viewOf(p *router.Page) pageView {
	info := p.Info()
	groups := info.AccessGroups
	if groups == nil {
		groups = []string{}
	}
	return pageView{ID: info.ID, Name: info.Name, Route: info.Route, AccessGroups: groups}
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	pages := []pageView{}
	if s.cfg.Registry != nil {
		for _, p := range s.cfg.Registry.Pages() {
			pages = append(pages, viewOf(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.cfg.Registry != nil {
		if p, ok := s.cfg.Registry.Lookup(id); ok {
			writeJSON(w, http.StatusOK, viewOf(p))
			return
		}
	}
	writeError(w, http.StatusNotFound, "page not found")
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeJSON(w, http.StatusOK, map[string]any{"stats": session.Stats{}, "sessions": []session.Info{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":    s.cfg.Sessions.Stats(),
		"sessions": s.cfg.Sessions.Sessions(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.cfg.Sessions != nil {
		for _, info := range s.cfg.Sessions.Sessions() {
			if info.ID == id {
				writeJSON(w, http.StatusOK, info)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "session not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
