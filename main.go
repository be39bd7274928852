package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"derivflow/config"
	"derivflow/internal/metrics"
	"derivflow/internal/pipeline"
	"derivflow/internal/server"
	"derivflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Derivflow.Name,
		"version": cfg.Derivflow.Version,
	}).Info("starting derivflow")

	if cfg.Cloudwatch.Enabled {
		logger.InitCloudWatch(cfg.Cloudwatch.Region, cfg.Cloudwatch.Namespace)
	}

	metrics.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orchestrator := pipeline.New(cfg, log)
	srv := server.NewServer(cfg.Server, orchestrator, log)

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("http server failed")
		os.Exit(1)
	}

	log.Info("derivflow stopped")
}
