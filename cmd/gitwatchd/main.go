// Package main is the entry point for gitwatchd, the process that wires
// the Local Git Activity Observer core to a Sink, an event bus, and a
// small HTTP control surface, grounded on the teacher's
// cmd/orchestrator/main.go wiring sequence.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/activity"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/config"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/httpmw"
	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/coordinator"
	"github.com/Sxriptor/colabify-app-sub001/internal/eventbus"
	"github.com/Sxriptor/colabify-app-sub001/internal/httpapi"
	"github.com/Sxriptor/colabify-app-sub001/internal/liveactivity"
	"github.com/Sxriptor/colabify-app-sub001/internal/manager"
	"github.com/Sxriptor/colabify-app-sub001/internal/repostore"
	"github.com/Sxriptor/colabify-app-sub001/internal/sink"
	"github.com/Sxriptor/colabify-app-sub001/internal/sink/postgres"
	"github.com/Sxriptor/colabify-app-sub001/internal/sink/sqlite"
	"github.com/Sxriptor/colabify-app-sub001/internal/streaming"
)

func main() {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger.
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("starting gitwatchd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the Sink backend selected by config.Database.Driver.
	sinkImpl, closeSink, err := openSink(cfg.Database)
	if err != nil {
		log.Fatal("failed to open sink", zap.Error(err))
	}
	defer closeSink()
	log.Info("sink ready", zap.String("driver", cfg.Database.Driver))

	// 4. Connect the event bus (NATS when configured, in-memory otherwise).
	bus, closeBus, err := eventbus.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to connect event bus", zap.Error(err))
	}
	defer closeBus()
	log.Info("event bus ready", zap.Bool("nats", cfg.NATS.URL != ""))

	// 5. Construct the core: RepoStore, ActivityDetector, G, and J.
	store := repostore.New()
	detector := activity.NewDetector(activity.Config{PushLookback: cfg.Watch.PushLookback()})

	liveCfg := liveactivity.Config{
		HeartbeatInterval: cfg.Watch.HeartbeatInterval(),
		SessionTimeout:    cfg.Watch.SessionTimeout(),
		SyncInterval:      cfg.Watch.SyncInterval(),
		GitTimeout:        cfg.Watch.GitTimeout(),
	}
	live := liveactivity.New(liveCfg, coordinator.NewSinkAdapter(sinkImpl), log)

	managerCfg := manager.Config{
		RemotePollInterval: cfg.Watch.RemotePollInterval(),
		Debounce:           cfg.Watch.Debounce(),
		GitTimeout:         cfg.Watch.GitTimeout(),
		FetchTimeout:       cfg.Watch.GitFetchTimeout(),
	}
	backend := coordinator.New(store, detector, managerCfg, live, sinkImpl, bus, log)

	// 6. Start the coordinator for the configured default user.
	backendCfg := coordinator.Config{
		UserID:             defaultUserID(),
		EnableLiveActivity: true,
		SyncInterval:       cfg.Watch.SyncInterval(),
	}
	if err := backend.Start(ctx, backendCfg); err != nil {
		log.Fatal("failed to start coordinator", zap.Error(err))
	}
	log.Info("coordinator started", zap.String("user_id", backendCfg.UserID))

	// 7. WebSocket hub for the outbound activity stream.
	streamHub := streaming.NewHub(bus, log)
	go streamHub.Run(ctx)

	// 8. HTTP control surface.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(httpmw.RequestLogger(log, "gitwatchd"))
	router.Use(httpmw.Recovery(log))
	router.Use(httpmw.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	httpapi.SetupRoutes(v1, backend, log)
	streaming.SetupRoutes(v1, streaming.NewWSHandler(streamHub, log))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 9. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gitwatchd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	backend.Stop()
	log.Info("gitwatchd stopped")
}

// openSink constructs the Sink backend named by cfg.Driver.
func openSink(cfg config.DatabaseConfig) (sink.DatabaseSync, func(), error) {
	switch cfg.Driver {
	case "postgres":
		repo, err := postgres.Open(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		repo, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}
}

// defaultUserID resolves the single-user identity gitwatchd runs the
// coordinator under; a future multi-user deployment would start one
// Backend per authenticated user instead.
func defaultUserID() string {
	if v := os.Getenv("GITWATCH_USER_ID"); v != "" {
		return v
	}
	return "local"
}
