package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kmccarthy/riskgate/internal/background"
	"github.com/kmccarthy/riskgate/internal/config"
	"github.com/kmccarthy/riskgate/internal/database"
	"github.com/kmccarthy/riskgate/internal/features"
	"github.com/kmccarthy/riskgate/internal/geo"
	"github.com/kmccarthy/riskgate/internal/handlers"
	"github.com/kmccarthy/riskgate/internal/history"
	middlewareCustom "github.com/kmccarthy/riskgate/internal/middleware"
	"github.com/kmccarthy/riskgate/internal/policy"
	"github.com/kmccarthy/riskgate/internal/repositories"
	"github.com/kmccarthy/riskgate/internal/risk"
	"github.com/kmccarthy/riskgate/internal/routes"
	"github.com/kmccarthy/riskgate/internal/services"
)

// retentionInterval is how often aged-out login events are swept.
const retentionInterval = 1 * time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize the geo resolver. MaxMind databases are optional; the
	// static resolver's sentinels keep scoring functional without them.
	resolver, closeResolver, err := buildResolver(cfg, logger)
	if err != nil {
		logger.Error("failed to open GeoIP databases", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeResolver()

	// Initialize repositories
	historyRepo := repositories.NewHistoryRepository(db)

	// Initialize retention manager
	retentionManager := background.NewRetentionManager(
		historyRepo, logger, retentionInterval, cfg.Risk.EventRetention)

	// Initialize the history cache
	store := history.NewStore(historyRepo, history.Config{TTL: cfg.Risk.CacheTTL}, logger)

	// Initialize the scoring core
	scorer := risk.NewScorer(risk.Params{
		Weights: risk.Weights{
			IP:  cfg.Risk.WeightIP,
			UA:  cfg.Risk.WeightUA,
			RTT: cfg.Risk.WeightRTT,
		},
		SmoothingAlpha:     cfg.Risk.SmoothingAlpha,
		MaliciousASNs:      toSet(cfg.Risk.MaliciousASNs),
		MaliciousCountries: toSet(cfg.Risk.MaliciousCountries),
		MinBrowserVersions: cfg.Risk.MinBrowserVersions,
		LogisticSteepness:  cfg.Risk.LogisticSteepness,
		LogisticMidpoint:   cfg.Risk.LogisticMidpoint,
	})

	policyEngine, err := policy.NewEngine(cfg.Risk.RejectThreshold, cfg.Risk.ChallengeThreshold)
	if err != nil {
		logger.Error("invalid policy thresholds", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	extractor := features.NewExtractor(resolver)
	riskService := services.NewRiskService(
		extractor, store, historyRepo, scorer, policyEngine, cfg.Risk.AssessTimeout, logger)

	// Initialize handlers
	riskHandler := handlers.NewRiskHandler(riskService)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, riskHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start retention task
	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	defer retentionCancel()

	go retentionManager.Start(retentionCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	retentionCancel()
	retentionManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Let in-flight history writes land before the pool closes.
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("history store shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// buildResolver picks the MaxMind resolver when both database paths are
// configured, and falls back to the static sentinel resolver otherwise.
func buildResolver(cfg *config.Config, logger *slog.Logger) (geo.Resolver, func(), error) {
	if cfg.GeoIP.ASNPath == "" && cfg.GeoIP.CountryPath == "" {
		logger.Info("GeoIP databases not configured, using sentinel resolver")
		return &geo.Static{}, func() {}, nil
	}

	mm, err := geo.OpenMaxMind(cfg.GeoIP.ASNPath, cfg.GeoIP.CountryPath)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("GeoIP databases loaded",
		slog.String("asn_db", cfg.GeoIP.ASNPath),
		slog.String("country_db", cfg.GeoIP.CountryPath))

	return mm, mm.Close, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
