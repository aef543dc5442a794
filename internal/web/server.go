// Package web provides the HTTP API for running and inspecting imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	mw "github.com/JonMunkholm/bulkimport/internal/web/middleware"
)

// Importer runs and inspects imports. *core.Service implements it.
type Importer interface {
	Run(ctx context.Context, job *core.Job) (*core.Result, error)
	Status(ctx context.Context, job *core.Job) (*core.CheckpointStatus, error)
	Reset(ctx context.Context, job *core.Job) (bool, error)
	Running() core.RunningStatus
}

// RunHistory lists recorded runs. *core.HistoryStore implements it.
type RunHistory interface {
	List(ctx context.Context, opts core.HistoryOptions) ([]core.RunRecord, error)
	Get(ctx context.Context, id string) (*core.RunRecord, error)
}

// Server is the HTTP server for the import API.
type Server struct {
	importer Importer
	history  RunHistory
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a new Server. history may be nil when no database is
// configured; the history routes then answer 503.
func NewServer(importer Importer, history RunHistory, cfg *config.Config) *Server {
	s := &Server{
		importer: importer,
		history:  history,
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := s.newRateLimiter(s.cfg.Rate.RequestsPerMinute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Route("/imports", func(r chi.Router) {
			run := http.HandlerFunc(s.handleRunImport)
			if s.cfg.Rate.Enabled && s.cfg.Rate.ImportLimit > 0 {
				r.Method(http.MethodPost, "/", s.newRateLimiter(s.cfg.Rate.ImportLimit).middleware(run))
			} else {
				r.Method(http.MethodPost, "/", run)
			}

			r.Post("/status", s.handleImportStatus)
			r.Post("/reset", s.handleResetImport)
			r.Get("/running", s.handleRunning)
			r.Get("/history", s.handleHistory)
			r.Get("/history/export", s.handleHistoryExport)
			r.Get("/history/{runID}", s.handleHistoryEntry)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, l := range s.limiters {
		l.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// The API serves JSON only
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	perMin   int
	done     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter allowing perMin requests per minute per IP
// with a burst of the same size.
func (s *Server) newRateLimiter(perMin int) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		perMin:   max(perMin, 1),
		done:     make(chan struct{}),
	}
	s.limiters = append(s.limiters, rl)
	go rl.cleanup()
	return rl
}

// cleanup removes visitors idle for more than two minutes.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > 2*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMin)), rl.perMin)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// middleware returns an HTTP middleware that rate limits by IP.
// TrustedRealIP has already rewritten RemoteAddr for trusted proxies.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(mw.ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int((time.Minute / time.Duration(rl.perMin)).Seconds())+1))
			respondErrorJSON(w, rateLimitedMessage, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
