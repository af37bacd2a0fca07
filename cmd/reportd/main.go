package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clearcite/reportd/cmd/reportd/internal/middleware"
	authpkg "github.com/clearcite/reportd/internal/auth"
	"github.com/clearcite/reportd/internal/cache"
	"github.com/clearcite/reportd/internal/config"
	"github.com/clearcite/reportd/internal/db"
	"github.com/clearcite/reportd/internal/httpapi"
	"github.com/clearcite/reportd/internal/metrics"
	"github.com/clearcite/reportd/internal/render"
	"github.com/clearcite/reportd/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Atomic level so a config reload can change verbosity without a restart
	atomicLevel := zap.NewAtomicLevelAt(parseLogLevel(cfg.Logging.Level))
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = atomicLevel
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Bridge the config switch to the env var the auth middleware reads.
	// An explicit REPORTD_SKIP_AUTH always wins over the config file.
	if os.Getenv("REPORTD_SKIP_AUTH") == "" && !cfg.Auth.Enabled {
		_ = os.Setenv("REPORTD_SKIP_AUTH", "1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("Auth enabled but no API keys configured; all requests will be rejected")
	}

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
	}

	// Initialize database
	dbClient, err := db.NewClient(&db.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		Path:     cfg.Database.Path,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbClient.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 15*time.Second)
	err = dbClient.InitSchema(initCtx)
	cancelInit()
	if err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}

	// Initialize Redis for rate limiting, idempotency, and the render cache
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	_, err = redisClient.Ping(pingCtx).Result()
	cancelPing()
	if err != nil {
		// Rate limiting and idempotency fail open and the cache falls back
		// to its local tier, so an unreachable Redis degrades rather than
		// stops the service.
		logger.Warn("Redis unreachable at startup", zap.Error(err))
	}

	var renderCache *cache.Cache
	if cfg.Cache.Enabled {
		renderCache = cache.New(redisClient,
			time.Duration(cfg.Cache.TTLMs)*time.Millisecond,
			cfg.Cache.LocalSize,
			logger)
	}

	renderer := render.New(renderCache, dbClient, cfg.Render, logger)

	// Auth: API keys open the door, short-lived JWTs ride on them
	verifier := authpkg.NewKeyVerifier(cfg.Auth.APIKeys)
	jwtManager := authpkg.NewJWTManager(cfg.Auth.JWTSecret, 0)

	// Create handlers
	renderHandler := httpapi.NewRenderHandler(renderer, 0, logger)
	reportsHandler := httpapi.NewReportsHandler(dbClient, renderer, 0, logger)
	tokenHandler := httpapi.NewTokenHandler(jwtManager, logger)
	healthHandler := httpapi.NewHealthHandler(dbClient, redisClient, logger)
	liveHandler := httpapi.NewLiveRenderHandler(renderer, cfg.Live, logger)

	// Create middlewares
	authMiddleware := middleware.NewAuthMiddleware(verifier, jwtManager, logger).Middleware
	rateLimiter := middleware.NewRateLimiter(redisClient,
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowMs)*time.Millisecond,
		logger).Middleware
	idempotencyMiddleware := middleware.NewIdempotencyMiddleware(redisClient, logger).Middleware
	validationMiddleware := middleware.NewValidationMiddleware(logger).Middleware

	canRender := middleware.RequireScope(authpkg.ScopeRendersExecute)
	canReadReports := middleware.RequireScope(authpkg.ScopeReportsRead)
	canWriteReports := middleware.RequireScope(authpkg.ScopeReportsWrite)
	canExport := middleware.RequireScope(authpkg.ScopeExportsRead)

	// Setup HTTP mux
	mux := http.NewServeMux()

	// Health checks and metrics (no auth required)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /readiness", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Token minting (requires an API key, no extra scope)
	mux.Handle("POST /api/v1/auth/token",
		routeMetrics("/api/v1/auth/token",
			authMiddleware(
				validationMiddleware(
					rateLimiter(
						http.HandlerFunc(tokenHandler.IssueToken),
					),
				),
			),
		),
	)

	// Ad-hoc render (require auth)
	mux.Handle("POST /api/v1/render",
		routeMetrics("/api/v1/render",
			authMiddleware(
				canRender(
					validationMiddleware(
						rateLimiter(
							idempotencyMiddleware(
								http.HandlerFunc(renderHandler.Render),
							),
						),
					),
				),
			),
		),
	)

	// Report endpoints (require auth)
	mux.Handle("POST /api/v1/reports",
		routeMetrics("/api/v1/reports",
			authMiddleware(
				canWriteReports(
					validationMiddleware(
						rateLimiter(
							idempotencyMiddleware(
								http.HandlerFunc(reportsHandler.CreateReport),
							),
						),
					),
				),
			),
		),
	)

	mux.Handle("GET /api/v1/reports",
		routeMetrics("/api/v1/reports",
			authMiddleware(
				canReadReports(
					validationMiddleware(
						rateLimiter(
							http.HandlerFunc(reportsHandler.ListReports),
						),
					),
				),
			),
		),
	)

	mux.Handle("GET /api/v1/reports/{id}",
		routeMetrics("/api/v1/reports/{id}",
			authMiddleware(
				canReadReports(
					validationMiddleware(
						http.HandlerFunc(reportsHandler.GetReport),
					),
				),
			),
		),
	)

	mux.Handle("GET /api/v1/reports/{id}/render",
		routeMetrics("/api/v1/reports/{id}/render",
			authMiddleware(
				canRender(
					validationMiddleware(
						rateLimiter(
							http.HandlerFunc(reportsHandler.RenderReport),
						),
					),
				),
			),
		),
	)

	mux.Handle("GET /api/v1/reports/{id}/export",
		routeMetrics("/api/v1/reports/{id}/export",
			authMiddleware(
				canExport(
					validationMiddleware(
						rateLimiter(
							http.HandlerFunc(reportsHandler.ExportReport),
						),
					),
				),
			),
		),
	)

	// Live render over WebSocket. No routeMetrics wrapper here: the status
	// recorder would hide http.Hijacker from the upgrader. The handler keeps
	// its own session and render counters.
	mux.Handle("GET /api/v1/render/ws",
		authMiddleware(
			validationMiddleware(
				http.HandlerFunc(liveHandler.HandleWS),
			),
		),
	)

	// Request IDs and CORS wrap every route, websocket included; neither
	// touches the ResponseWriter, so the upgrader still sees http.Hijacker.
	requestIDMiddleware := middleware.NewRequestIDMiddleware(logger).Middleware
	corsHandler := corsMiddleware(requestIDMiddleware(mux))

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      corsHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:  120 * time.Second,
	}

	// Watch the config file so log verbosity follows it without a restart
	watcher, err := config.NewWatcher(logger)
	if err != nil {
		logger.Warn("Config watcher unavailable, hot-reload disabled", zap.Error(err))
	} else {
		watcher.OnChange(func(next *config.Config) {
			atomicLevel.SetLevel(parseLogLevel(next.Logging.Level))
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("Failed to start config watcher", zap.Error(err))
		}
		defer watcher.Stop()
	}

	// Start server in goroutine
	go func() {
		logger.Info("reportd starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("reportd shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}

	logger.Info("reportd stopped")
}

func parseLogLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// routeMetrics records request count and latency for one route pattern
func routeMetrics(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPMetrics(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers for development
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isWebsocket := strings.HasPrefix(r.URL.Path, "/api/v1/render/ws")

		allowedHeaders := "Content-Type, Authorization, X-API-Key, Idempotency-Key, traceparent, tracestate"

		if !isWebsocket {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
