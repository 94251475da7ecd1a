package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendpool/crypto"
	"lendpool/native/lendingpool"
	"lendpool/observability"
	"lendpool/observability/logging"
	"lendpool/storage"
)

const envVar = "LENDPOOL_ENV"

func main() {
	configFile := flag.String("config", "./lendingpool.toml", "Path to the configuration file")
	dataDir := flag.String("datadir", "./lendpool-data", "Directory for the pool state database")
	poolAddr := flag.String("pool", "", "Bech32 address the pool holds custody under (required)")
	metricsAddr := flag.String("metrics", "127.0.0.1:9464", "Listen address for the metrics endpoint")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("lendpoold", env)

	if strings.TrimSpace(*poolAddr) == "" {
		logger.Error("missing required -pool address")
		os.Exit(1)
	}
	pool, err := crypto.DecodeAddress(*poolAddr)
	if err != nil {
		logger.Error("invalid pool address", slog.Any("error", err))
		os.Exit(1)
	}

	cfg := lendingpool.DefaultConfig()
	if _, statErr := os.Stat(*configFile); statErr == nil {
		cfg, err = lendingpool.LoadConfig(*configFile)
		if err != nil {
			logger.Error("failed to load config", logging.MaskField("path", *configFile), slog.Any("error", err))
			os.Exit(1)
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		logger.Error("failed to read config", logging.MaskField("path", *configFile), slog.Any("error", statErr))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(*dataDir)
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	defer db.Close()

	engine := lendingpool.NewEngine(pool)
	engine.SetState(lendingpool.NewStorage(db))
	engine.SetLogger(logger)
	engine.SetTimestamp(uint64(time.Now().UnixMilli()))
	if err := engine.ApplyConfig(cfg); err != nil {
		logger.Error("failed to apply config", slog.Any("error", err))
		os.Exit(1)
	}
	// Touch the registry so the action counters exist before the first scrape.
	observability.LendingPoolMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()
	logger.Info("lendpoold started",
		slog.String("pool", pool.String()),
		logging.MaskField("datadir", *dataDir),
		slog.String("metrics", *metricsAddr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
	_ = server.Close()
}
