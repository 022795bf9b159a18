// Package httpapi expone el controller por HTTP/JSON.
//
// La identidad del llamante viaja en la cabecera X-Caller; la autenticación
// queda delante (gateway o proxy), aquí solo se aplica la autorización.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/ertvault/internal/application/controller"
	"github.com/alejandrodnm/ertvault/internal/observability"
)

// CallerHeader identifica al llamante de cada operación.
const CallerHeader = "X-Caller"

// Config parametriza el servidor HTTP.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxBodyBytes      int64
	RequestsPerSecond float64 // 0 = sin límite
	Burst             int
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond) + 1
	}
}

// Server es el adaptador HTTP del controller.
type Server struct {
	ctl     *controller.Controller
	metrics *observability.Metrics
	cfg     Config
	limiter *rate.Limiter
	router  chi.Router
}

// New construye el router con todas las rutas montadas.
func New(ctl *controller.Controller, metrics *observability.Metrics, cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{ctl: ctl, metrics: metrics, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	s.router = s.routes()
	return s
}

// Handler devuelve el router (útil para httptest).
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.limitRequestBody)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(api chi.Router) {
		api.Use(s.rateLimit)

		api.Route("/vault", func(v chi.Router) {
			v.Get("/", s.getVault)
			v.Get("/balances/{depositor}", s.getBalance)
			v.Post("/deposit", s.deposit)
			v.Post("/withdraw", s.withdraw)
			v.Post("/redeem", s.redeem)
		})

		api.Route("/erts", func(e chi.Router) {
			e.Get("/", s.listERTs)
			e.Post("/", s.mintERT)
			e.Get("/{id}", s.getERT)
			e.Get("/{id}/estimate", s.estimateSettlement)
			e.Get("/{id}/pnl", s.estimatePnl)
			e.Post("/{id}/settle", s.settle)
			e.Post("/{id}/force-settle", s.forceSettle)
			e.Get("/{id}/positions", s.listPositions)
			e.Post("/{id}/positions", s.openPosition)
		})
		api.Post("/positions/{id}/close", s.closePosition)

		api.Route("/executors", func(x chi.Router) {
			x.Post("/", s.registerExecutor)
			x.Get("/{addr}", s.getExecutor)
			x.Get("/{addr}/check", s.checkExecutor)
			x.Get("/{addr}/required-stake", s.requiredStake)
			x.Post("/{addr}/whitelist", s.whitelistExecutor)
			x.Post("/{addr}/ban", s.banExecutor)
			x.Post("/{addr}/unban", s.unbanExecutor)
		})

		api.Get("/breaker", s.getBreaker)
		api.Post("/breaker/reset", s.resetBreaker)
		api.Get("/reserve", s.getReserve)
		api.Post("/reserve/fund", s.fundReserve)
		api.Get("/events", s.listEvents)
	})
	return r
}

// ListenAndServe sirve hasta que ctx se cancela y luego drena las conexiones.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi.ListenAndServe: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("httpapi: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi.ListenAndServe: shutdown: %w", err)
	}
	return nil
}

// ─── Middleware ──────────────────────────────────────────────────────────────

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("httpapi: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"caller", r.Header.Get(CallerHeader),
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed", time.Since(start),
		)
	})
}

func (s *Server) limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
