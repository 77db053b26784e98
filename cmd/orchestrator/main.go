// Command orchestrator runs the Mesh's C8 Orchestrator process: the
// WebSocket admission/fan-out router and the REST session surface. It
// also links the C9 Trigger/Mapper library directly for the `/v1/map`
// collaborator endpoint's synchronous in-process computation — the
// bus-driven intents-to-design_specs loop itself runs in cmd/trigger,
// not here. Grounded on MrWong99-glyphoxa/cmd/glyphoxa/main.go's
// run()-int / signal-context graceful-shutdown idiom (the teacher repo
// itself has no cmd/ entry point to imitate directly).
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

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/config"
	"github.com/rapidaai/mesh/internal/connectors"
	"github.com/rapidaai/mesh/internal/mappings"
	"github.com/rapidaai/mesh/internal/orchestrator"
	"github.com/rapidaai/mesh/internal/sessionstore"
	"github.com/rapidaai/mesh/internal/sttrelay"
	"github.com/rapidaai/mesh/internal/token"
	"github.com/rapidaai/mesh/internal/trigger"
	"github.com/rapidaai/mesh/internal/wsconn"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mesh-orchestrator: logger init: %v\n", err)
		return 1
	}
	defer logger.Sync()

	vConfig, err := config.InitConfig()
	if err != nil {
		logger.Errorf("orchestrator: load config: %v", err)
		return 1
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		logger.Errorf("orchestrator: resolve config: %v", err)
		return 1
	}

	if config.IsPlaceholderSecret(cfg.JWT.SecretKey) {
		logger.Warnw("orchestrator: JWT secret is the shipped placeholder, do not use in production")
	}

	redisConnector, err := connectors.NewRedisConnector(cfg.Redis.URL)
	if err != nil {
		logger.Errorf("orchestrator: connect redis: %v", err)
		return 1
	}
	defer redisConnector.Close()

	postgresConnector, err := connectors.NewPostgresConnector(cfg.Postgres)
	if err != nil {
		logger.Errorf("orchestrator: connect postgres: %v", err)
		return 1
	}
	defer postgresConnector.Close()

	if err := postgresConnector.DB(context.Background()).AutoMigrate(&sessionstore.Session{}); err != nil {
		logger.Errorf("orchestrator: migrate session schema: %v", err)
		return 1
	}

	busClient := bus.New(redisConnector.Client(), logger)
	defer busClient.Close()

	tokens := token.New(cfg.JWT.SecretKey, config.IsPlaceholderSecret(cfg.JWT.SecretKey), logger)
	sessions := sessionstore.NewStore(postgresConnector, logger)
	manager := wsconn.NewManager(logger)

	mappingsLoader, err := mappings.New(cfg.Mappings.FilePath, cfg.Mappings.EnableHotReload, logger)
	if err != nil {
		logger.Errorf("orchestrator: load mappings: %v", err)
		return 1
	}
	defer mappingsLoader.Close()

	triggerSvc := trigger.New(busClient, mappingsLoader, cfg.ConfidenceThreshold, logger)

	sttForwarder := sttrelay.New(cfg.STT.BaseURL, logger)
	defer sttForwarder.Close()

	heartbeat := time.Duration(cfg.WebSocket.HeartbeatIntervalS) * time.Second
	router := orchestrator.New(manager, tokens, sessions, busClient, sttForwarder.Forward, cfg.WebSocket.MaxQueueSize, heartbeat, logger).
		WithMapper(triggerSvc, mappingsLoader)

	gin.SetMode(ginModeFor(cfg.LogLevel))
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.RegisterRoutes(engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go router.RunFanOut(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("orchestrator: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Infof("orchestrator: shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Errorf("orchestrator: listen error: %v", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("orchestrator: graceful shutdown: %v", err)
		return 1
	}
	return 0
}

func ginModeFor(logLevel string) string {
	if logLevel == "debug" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
