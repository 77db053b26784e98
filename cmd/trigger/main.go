// Command trigger runs the Mesh's minor auxiliary pipeline stage: the
// Intent Extractor collaborator feeding the C9 Trigger/Mapper (C10
// Mappings Loader behind it), grounded on
// MrWong99-glyphoxa/cmd/glyphoxa/main.go's run()-int / signal-context
// shutdown idiom. The module layout names only three cmd/ processes, so
// the Intent Extractor — the direct producer of the intents channel C9
// consumes — runs in this process rather than a fourth of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/config"
	"github.com/rapidaai/mesh/internal/connectors"
	"github.com/rapidaai/mesh/internal/intent"
	"github.com/rapidaai/mesh/internal/mappings"
	"github.com/rapidaai/mesh/internal/trigger"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		os.Stderr.WriteString("mesh-trigger: logger init: " + err.Error() + "\n")
		return 1
	}
	defer logger.Sync()

	vConfig, err := config.InitConfig()
	if err != nil {
		logger.Errorf("trigger: load config: %v", err)
		return 1
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		logger.Errorf("trigger: resolve config: %v", err)
		return 1
	}

	redisConnector, err := connectors.NewRedisConnector(cfg.Redis.URL)
	if err != nil {
		logger.Errorf("trigger: connect redis: %v", err)
		return 1
	}
	defer redisConnector.Close()
	busClient := bus.New(redisConnector.Client(), logger)
	defer busClient.Close()

	mappingsLoader, err := mappings.New(cfg.Mappings.FilePath, cfg.Mappings.EnableHotReload, logger)
	if err != nil {
		logger.Errorf("trigger: load mappings: %v", err)
		return 1
	}
	defer mappingsLoader.Close()

	intentSvc := intent.New(busClient, logger)
	triggerSvc := trigger.New(busClient, mappingsLoader, cfg.ConfidenceThreshold, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("trigger: running intent extraction and design mapping")
	go intentSvc.Run(ctx)
	triggerSvc.Run(ctx)

	return 0
}
