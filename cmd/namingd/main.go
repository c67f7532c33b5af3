package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/corfid/namingd/internal/logger"
	protocol "github.com/corfid/namingd/internal/protocol/naming"
	"github.com/corfid/namingd/internal/server"
	"github.com/corfid/namingd/pkg/config"
	"github.com/corfid/namingd/pkg/metrics"
	"github.com/corfid/namingd/pkg/naming"
	"github.com/corfid/namingd/pkg/naming/lock"
	"github.com/corfid/namingd/pkg/naming/tree"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := logger.Configure(cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	logger.SetLevel(cfg.Logging.Level)

	fmt.Println("namingd - distributed filesystem naming server")

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics collection enabled")
	}
	namingMetrics := metrics.NewNamingMetrics()

	commandClient, err := config.CreateCommandClient(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage command client: %v", err)
	}

	locks := lock.NewManager()
	namespace := tree.New()
	registry := naming.NewRegistry()
	service := naming.NewService(locks, namespace, registry, commandClient, namingMetrics)
	registration := naming.NewRegistration(locks, namespace, registry, namingMetrics)

	srv := server.New(
		cfg.Server,
		service,
		protocol.NewServiceHandler(service, namingMetrics),
		protocol.NewRegistrationHandler(registration, namingMetrics),
		namingMetrics,
	)
	srv.OnStopped = func(cause error) {
		if cause != nil {
			logger.Error("server stopped: %v", cause)
			return
		}
		logger.Info("server stopped cleanly")
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start naming server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutting down...")
	srv.Stop()
}
