package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/hannes/yaak-guard/config"
	"github.com/hannes/yaak-guard/pii"
	detectors "github.com/hannes/yaak-guard/pii/detectors"
)

const auditCleanupInterval = time.Hour

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	handler *Handler
	audit   pii.AuditStore
	limiter *rate.Limiter
}

// NewServer creates a new server instance. audit may be nil to disable the audit log.
func NewServer(cfg *config.Config, guard detectors.Guard, provider string, audit pii.AuditStore) (*Server, error) {
	if guard == nil {
		return nil, errors.New("guard is required")
	}

	s := &Server{
		config:  cfg,
		handler: NewHandler(guard, provider, audit, cfg.Logging.LogValues, cfg.Server.MaxBodyBytes),
		audit:   audit,
	}
	if cfg.Server.RateLimitRPS > 0 {
		burst := cfg.Server.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), burst)
	}
	return s, nil
}

// Routes returns the service mux
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /detect", s.rateLimit(http.HandlerFunc(s.handler.Detect)))
	mux.Handle("GET /audit", s.rateLimit(http.HandlerFunc(s.handler.Audit)))
	return mux
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is canceled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	slog.Info("starting guard service", "port", s.config.Server.Port, "provider", s.handler.provider)
	if s.config.Database.Enabled {
		slog.Info("audit log stored in database", "host", s.config.Database.Host)
	} else if s.audit != nil {
		slog.Info("audit log kept in memory", "capacity", s.config.Server.AuditCapacity)
	}

	// Create server with timeout configuration
	server := &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // LLM backends are slow
		IdleTimeout:  60 * time.Second,
	}

	if s.audit != nil && s.config.Database.CleanupHours > 0 {
		go s.cleanupLoop(ctx, time.Duration(s.config.Database.CleanupHours)*time.Hour)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := time.Duration(s.config.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	slog.Info("shutting down guard service", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) cleanupLoop(ctx context.Context, olderThan time.Duration) {
	ticker := time.NewTicker(auditCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.audit.CleanupOld(ctx, olderThan)
			if err != nil {
				slog.Warn("audit cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("removed old audit entries", "count", removed)
			}
		}
	}
}

// StartWithErrorHandling starts the server and logs a failure instead of returning it
func (s *Server) StartWithErrorHandling(ctx context.Context) {
	if err := s.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
	}
}

// Close closes the server and cleans up resources
func (s *Server) Close() error {
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if closer, ok := detectors.Unwrap(s.handler.guard).(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
