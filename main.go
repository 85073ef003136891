package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"basketflow/aggregator"
	"basketflow/api"
	"basketflow/basket"
	"basketflow/cache"
	"basketflow/config"
	"basketflow/logger"
	"basketflow/orchestrator"
	"basketflow/proxy"
	"basketflow/quality"
	"basketflow/source"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath, "config.yml", map[string]string{
		config.EnvironmentProduction: "config.production.yml",
		config.EnvironmentStaging:    "config.staging.yml",
	}))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Basketflow.Name,
		"version": cfg.Basketflow.Version,
	}).Info("starting basketflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.ReportInterval > 0 {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}
	if cfg.Metrics.CloudWatchRegion != "" || cfg.Metrics.CloudWatchNamespace != "" {
		logger.InitCloudWatch(cfg.Metrics.CloudWatchRegion, cfg.Metrics.CloudWatchNamespace, "")
	}

	var proxies []proxy.DataSourceProxy
	if cfg.Sources.Bloomberg.Enabled {
		sim := source.NewSimulator("BLOOMBERG", cfg.Sources.Bloomberg.Latency, cfg.Sources.Bloomberg.FailureRate)
		proxies = append(proxies, proxy.NewResilientProxy(sim, cfg.Sources.Bloomberg.SourceConfig))
	}
	if cfg.Sources.Sma.Enabled {
		proxies = append(proxies, proxy.NewResilientProxy(source.NewSmaSource(cfg.Sources.Sma), cfg.Sources.Sma.SourceConfig))
	}
	if cfg.Sources.Binance.Enabled {
		proxies = append(proxies, proxy.NewResilientProxy(source.NewBinanceSource(cfg.Sources.Binance), cfg.Sources.Binance))
	}
	if len(proxies) == 0 {
		log.Error("no data sources enabled")
		os.Exit(1)
	}

	quoteCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.WithError(err).Error("failed to build cache backend")
		os.Exit(1)
	}
	if err := quoteCache.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start cache")
		os.Exit(1)
	}

	engine := quality.NewEngine(cfg.Quality)
	market := orchestrator.New(proxies, quoteCache, cache.NewTTLPolicy(cfg.Cache), engine, cfg.Orchestrator)

	basketClient := basket.NewClient(cfg.Basket)
	publisher := basket.NewPublisher(cfg.Publishing)
	agg := aggregator.New(basketClient, market, publisher, cfg.Aggregator)

	server := api.NewServer(cfg.Server, market, agg, cfg.Metrics.Prometheus)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.WithFields(logger.Fields{
		"sources": market.Sources(),
		"port":    cfg.Server.Port,
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	log.Info("starting graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}

	log.Info("stopping cache")
	quoteCache.Stop()

	log.Info("basketflow stopped")
}
