package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"business-forecasting-engine/api"
	"business-forecasting-engine/config"
	"business-forecasting-engine/monitoring"
	"business-forecasting-engine/registry"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search for config.yaml)")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.WithField("environment", cfg.Environment).Info("Starting business forecasting engine")

	// Model registry is optional; without Redis the API still fits and
	// predicts, it just cannot store models between requests.
	var store api.ModelStore
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid redis url")
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		reg := registry.New(client, cfg.Redis.ModelCacheTTL, logger)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := reg.Ping(pingCtx); err != nil {
			logger.WithError(err).Warn("Model registry unreachable at startup")
		} else {
			logger.WithField("ttl", cfg.Redis.ModelCacheTTL).Info("Model registry connected")
		}
		pingCancel()
		store = reg
	} else {
		logger.Warn("No redis url configured, model registry disabled")
	}

	metrics := monitoring.New(nil)

	apiServer := api.NewServer(store, metrics, logger, api.Options{
		SecretKey: cfg.Security.SecretKey,
		TokenTTL:  cfg.Security.TokenTTL,
		RateLimit: cfg.Server.RequestsPerSecond(),
		RateBurst: cfg.Server.RateLimitRequests,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	printStartupInfo(cfg, store != nil)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func printStartupInfo(cfg *config.Config, registryEnabled bool) {
	host := cfg.Server.Addr()
	if cfg.Server.Host == "0.0.0.0" || cfg.Server.Host == "" {
		host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	}
	base := "http://" + host

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("🚀 Business Forecasting Engine Started")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("📊 HTTP API: %s\n", base)

	fmt.Println("\n🔧 Configuration:")
	fmt.Printf("  Environment:    %s\n", cfg.Environment)
	fmt.Printf("  Model registry: %s\n", enabledString(registryEnabled))
	fmt.Printf("  Bearer auth:    %s\n", enabledString(cfg.Security.SecretKey != ""))
	if cfg.Server.RequestsPerSecond() > 0 {
		fmt.Printf("  Rate limit:     %d requests / %v per client\n",
			cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow)
	} else {
		fmt.Println("  Rate limit:     disabled")
	}

	fmt.Println("\n📋 Available Endpoints:")
	fmt.Println("  POST   /api/v1/forecast/fit            - Fit a forecasting model")
	fmt.Println("  POST   /api/v1/forecast/{id}/predict   - Generate a forecast")
	fmt.Println("  POST   /api/v1/forecast/cross-validate - Rolling-origin evaluation")
	fmt.Println("  GET    /api/v1/models                  - List registered models")
	fmt.Println("  GET    /api/v1/models/{id}             - Model summary")
	fmt.Println("  DELETE /api/v1/models/{id}             - Remove a model")
	fmt.Println("  GET    /health                         - Health check")
	fmt.Println("  GET    /metrics                        - Prometheus metrics")

	fmt.Println("\n📊 Example Usage:")
	fmt.Println("  # Fit a model from an inline CSV")
	fmt.Printf(`  curl -X POST %s/api/v1/forecast/fit \`, base)
	fmt.Println(`
       -H "Content-Type: application/json" \
       -d '{
         "model_name": "daily-revenue",
         "timestamp_column": "date",
         "target_column": "revenue",
         "csv": "date,revenue\n2024-01-01,1250.0\n2024-01-02,1304.5\n..."
       }'`)

	fmt.Println("\n  # Generate a 30 day forecast")
	fmt.Printf(`  curl -X POST %s/api/v1/forecast/<model-id>/predict -d '{"periods": 30}'`, base)
	fmt.Println()

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("✅ Ready to accept requests!")
	fmt.Println("💡 Press Ctrl+C to gracefully shutdown")
	fmt.Println(strings.Repeat("=", 60) + "\n")
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
