package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/cache"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/config"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/engine"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/history"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/session"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/snapshot"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting streaming engine",
		logger.String("mic", cfg.Session.MIC),
		logger.String("stream", cfg.Stream.URL),
		logger.Int("health_port", cfg.Server.HealthCheckPort),
		logger.Int("instruments", len(cfg.Instruments)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exchange calendar for the session clock
	cal, err := session.NewExchangeCalendar(cfg.Session.MIC)
	if err != nil {
		logger.Fatal("Failed to load exchange calendar",
			logger.String("mic", cfg.Session.MIC),
			logger.ErrorField(err),
		)
	}

	// Last-known cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis cache",
			logger.ErrorField(err),
		)
	}
	defer redisCache.Close()

	// History API client (seeding + polling fallback)
	histClient := history.NewClient(history.Config{
		BaseURL: cfg.History.BaseURL,
		Timeout: cfg.History.Timeout,
	})

	eng := engine.New(cfg, cal, histClient, redisCache)
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine",
			logger.ErrorField(err),
		)
	}
	defer eng.Stop()

	// Background snapshotter persisting last finals to Redis
	snapSub := eng.Events("snapshotter")
	snapper := snapshot.NewSnapshotter(snapshot.Config{
		Interval: cfg.Snapshot.Interval,
		TTL:      cfg.Snapshot.TTL,
	}, redisCache, snapSub)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		snapper.Run(ctx)
	}()

	// Subscribe configured instruments
	for _, instrument := range cfg.Instruments {
		if err := eng.Subscribe(instrument, cfg.Candles.DefaultInterval, nil); err != nil {
			logger.Error("Failed to subscribe instrument",
				logger.String("instrument", instrument),
				logger.ErrorField(err),
			)
		}
	}

	// Health checks and metrics
	healthServer := startHealthServer(cfg.Server.HealthCheckPort, eng)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down streaming engine")

	cancel()
	eng.Stop()
	wg.Wait()

	logger.Info("Streaming engine stopped")
}

// startHealthServer starts the HTTP server for health checks and metrics
func startHealthServer(port int, eng *engine.Engine) *http.Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		conn := eng.ConnectionHealth()
		strategy := eng.FeedStrategy()

		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"checks": map[string]interface{}{
				"session": eng.SessionState().String(),
				"feed":    strategy.Mode.String(),
				"connection": map[string]interface{}{
					"state":            conn.State.String(),
					"last_message_age": conn.LastMessageAge.String(),
					"reconnects":       conn.ReconnectCount,
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")

		// Degraded push while the market is open is worth flagging
		if eng.SessionState() == models.SessionOpen && conn.State != models.ConnConnected {
			health["status"] = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(health)
	}).Methods("GET")

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("alive"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server",
			logger.Int("port", port),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Health check server failed",
				logger.ErrorField(err),
			)
		}
	}()

	return server
}
