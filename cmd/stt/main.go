// Command stt runs the Mesh's Streaming STT process (C3 VAD, C4
// transcription pool, C5 per-session pipeline), exposing
// `/v1/stream/{session_id}` for binary PCM ingress, grounded on
// MrWong99-glyphoxa/cmd/glyphoxa/main.go's run()-int / signal-context
// shutdown idiom.
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
	"github.com/rapidaai/mesh/internal/sttpipeline"
	"github.com/rapidaai/mesh/internal/transcription"
	"github.com/rapidaai/mesh/internal/transcription/providers"
	"github.com/rapidaai/mesh/internal/vad"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mesh-stt: logger init: %v\n", err)
		return 1
	}
	defer logger.Sync()

	vConfig, err := config.InitConfig()
	if err != nil {
		logger.Errorf("stt: load config: %v", err)
		return 1
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		logger.Errorf("stt: resolve config: %v", err)
		return 1
	}

	redisConnector, err := connectors.NewRedisConnector(cfg.Redis.URL)
	if err != nil {
		logger.Errorf("stt: connect redis: %v", err)
		return 1
	}
	defer redisConnector.Close()
	busClient := bus.New(redisConnector.Client(), logger)
	defer busClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := providers.New(ctx, cfg.Transcription)
	if err != nil {
		logger.Errorf("stt: build transcription provider: %v", err)
		return 1
	}
	pool := transcription.NewPool(provider, cfg.Transcription.MaxInFlight, logger)

	newDetector := func() (vad.SpeechDetector, error) {
		return vad.NewSileroDetector(cfg.VAD.ModelPath, cfg.Audio.SampleRate, cfg.VAD.Threshold, cfg.VAD.MinSilenceDurationMs)
	}

	server := sttpipeline.NewServer(
		newDetector,
		pool,
		busClient,
		cfg.Audio.SampleRate,
		cfg.VAD.WindowSizeSamples,
		cfg.VAD.MinSilenceDurationMs,
		"en",
		time.Duration(cfg.Transcription.PartialResultIntervalS)*time.Second,
		logger,
	)

	gin.SetMode(ginModeFor(cfg.LogLevel))
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/v1/stream/:session_id", server.HandleStream)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("stt: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Infof("stt: shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Errorf("stt: listen error: %v", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("stt: graceful shutdown: %v", err)
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
