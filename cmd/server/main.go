package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/integrations/mqtt"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/logger"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cameras"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cleanup"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/query"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/util/timezone"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	configPath := os.Getenv("CCTV_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logFile, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer logFile.Close()

	timezone.Initialize(cfg.Server.Timezone)

	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Info("Database initialization complete.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewSQLiteRepository(db.DB)

	// MQTT publishing is a no-op unless enabled
	mqttClient := mqtt.NewClient(cfg.MQTT)
	if err := mqttClient.Start(); err != nil {
		log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
	}
	defer mqttClient.Stop()
	notifier := services.NewNotifierService(mqttClient, mqttClient.Topic())

	ingester := ingest.NewIngester(repo, cameras.NewService(repo), cfg.Ingest.BatchSize, notifier)
	pool := ingest.NewPool(ingester, cfg.Ingest.Workers)
	defer pool.Shutdown()

	registry := exclusion.NewRegistry(repo)
	composer := query.NewComposer(repo, registry)

	cleanupService := cleanup.NewCleanupService(repo, cfg.Cleanup)
	go cleanupService.Start(ctx)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.NewRouter(api.Dependencies{
		Config:     cfg,
		Repo:       repo,
		Pool:       pool,
		Exclusions: registry,
		Composer:   composer,
	})
	if err != nil {
		log.Fatalf("Failed to initialize HTTP router: %v", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	log.Info("Server stopped.")
}
