package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/himanishpuri/DeepQuery/internal/config"
	"github.com/himanishpuri/DeepQuery/internal/metrics"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/engine"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/fetch"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/storage"
	"github.com/himanishpuri/DeepQuery/pkg/logger"
)

func main() {
	cfgFile := flag.String("config", "", "Config file (default ./deepquery.yaml)")
	addr := flag.String("addr", "", "Listen address (overrides server_addr)")
	flag.Parse()

	v := viper.New()
	cfg, err := config.Load(v, *cfgFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	db, err := storage.NewDBClientWithPath(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	q := engine.NewCommandQuerier(engine.ParseCommand(cfg.EngineQuery), engine.ParseCommand(cfg.EngineStore))
	q.Timeout = cfg.QueryTimeout

	service, err := deepquery.NewService(
		deepquery.WithTempDir(cfg.TempDir),
		deepquery.WithSampleRate(cfg.SampleRate),
		deepquery.WithProbeTimeout(cfg.ProbeTimeout),
		deepquery.WithExtractTimeout(cfg.ExtractTimeout),
		deepquery.WithQueryTimeout(cfg.QueryTimeout),
		deepquery.WithQuerier(q),
		deepquery.WithStore(db),
		deepquery.WithObserver(metrics.Default()),
	)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	server, err := NewServer(service, db, fetch.NewDownloader(cfg.DownloadDir), prometheus.DefaultGatherer, &ServerConfig{
		Addr:           cfg.ServerAddr,
		TempDir:        cfg.TempDir,
		AllowedOrigins: cfg.AllowedOrigins,
		LibraryRoot:    cfg.LibraryRoot,
		CacheSize:      cfg.CacheSize,
		Defaults:       cfg.Params(),
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
