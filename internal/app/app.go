package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RealKorush/bahbah/internal/config"
	"github.com/RealKorush/bahbah/internal/httpapi"
	"github.com/RealKorush/bahbah/internal/prober"
	"github.com/RealKorush/bahbah/internal/service"
	"github.com/RealKorush/bahbah/internal/storage"
)

// NewService builds the prober and scheduler described by cfg.
func NewService(cfg *config.Config, metrics *service.Metrics, logger *slog.Logger) (*service.Service, error) {
	policy, err := service.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	dialer, err := prober.NewDialer(cfg.UpstreamProxy)
	if err != nil {
		return nil, err
	}

	p := prober.NewTCP(dialer, cfg.Timeout)
	return service.New(p, service.Options{
		Concurrency:      cfg.Concurrency,
		Policy:           policy,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		Metrics:          metrics,
		Logger:           logger,
	}), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStorage loads run storage: a SQL database when DatabaseURL is set,
// otherwise the newline-delimited JSON file at TasksFile.
func OpenStorage(cfg *config.Config) (*storage.FileStorage, io.Closer, error) {
	var (
		repo   storage.RunRepository
		closer io.Closer = nopCloser{}
	)
	if cfg.DatabaseURL != "" {
		sqlRepo, err := storage.OpenSQL(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		repo, closer = sqlRepo, sqlRepo
	} else {
		repo = storage.NewJSONRepository(cfg.TasksFile)
	}

	st := storage.NewFileStorage(repo)
	if err := st.Load(); err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("load storage: %w", err)
	}
	return st, closer, nil
}

// NewServer wires application dependencies and returns the configured HTTP
// server, a stats function for shutdown logging and a cleanup function.
func NewServer(cfg *config.Config, logger *slog.Logger) (*http.Server, func() (int, int), func() error, error) {
	st, closer, err := OpenStorage(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc, err := NewService(cfg, service.NewMetrics(reg), logger)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	h := httpapi.NewHandler(svc, st, cfg.MaxLinks)

	var limiter *ipRateLimiter
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		limiter = newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	}

	mux := http.NewServeMux()
	mux.Handle("/links", rateLimitMiddleware(limiter, loggingMiddleware(logger, http.HandlerFunc(h.Links))))
	mux.Handle("/report", rateLimitMiddleware(limiter, loggingMiddleware(logger, http.HandlerFunc(h.Report))))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, st.Stats, closer.Close, nil
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lw, r)
		if v := r.Context().Value(httpapi.RunIDContextKey); v != nil {
			if id, ok := v.(int); ok {
				lw.runID = id
			}
		}

		latency := time.Since(start)
		logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"run_id", lw.runID,
			"latency_ms", latency.Milliseconds(),
			"status", lw.statusCode,
		)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	runID      int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}
