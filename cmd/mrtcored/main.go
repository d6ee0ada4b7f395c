package main

import (
	"context"
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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mrtcore/config"
	"mrtcore/core"
	"mrtcore/native/oracle"
	"mrtcore/observability"
	"mrtcore/observability/logging"
	telemetry "mrtcore/observability/otel"
	"mrtcore/rpc"
	"mrtcore/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(cfg.Log.Env)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("MRT_ENV"))
	}
	logger := logging.Setup("mrtcored", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if cfg.Telemetry.Enabled {
		telemetryEnv := strings.TrimSpace(cfg.Telemetry.Environment)
		if telemetryEnv == "" {
			telemetryEnv = env
		}
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "mrtcored",
			Environment: telemetryEnv,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	genesis := core.DefaultGenesis()
	if genesisPath != "" {
		loaded, err := config.LoadGenesis(genesisPath)
		if err != nil {
			panic(fmt.Sprintf("Failed to load genesis file: %v", err))
		}
		genesis = loaded
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, genesis)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}
	node.SetOracleConfig(oracle.Config{
		MaxAge:            cfg.Oracle.MaxAgeSeconds,
		MinSources:        cfg.Oracle.MinSources,
		MaxDeviationBps:   cfg.Oracle.MaxDeviationBps,
		CircuitBreakerBps: cfg.Oracle.CircuitBreakerBps,
		MaxBatchSize:      cfg.Oracle.MaxBatchSize,
		HistoryCapacity:   cfg.Oracle.HistoryCapacity,
	})
	if cfg.RPC.EventBacklog > 0 {
		node.SetEventBacklog(cfg.RPC.EventBacklog)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub := node.SubscribeEvents(256)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-stopCtx.Done():
				return
			case stored, ok := <-sub.Events():
				if !ok {
					return
				}
				observability.Events().RecordEvent(stored.Event.Type)
			}
		}
	}()

	rpcServer := rpc.NewServer(node, logger, rpc.ServerConfig{
		AuthTokenEnv:    cfg.RPC.AuthTokenEnv,
		WritesPerMinute: cfg.RPC.WriteRateLimitPerMin,
	})
	httpServer := &http.Server{
		Addr:         cfg.RPCAddress,
		Handler:      otelhttp.NewHandler(rpcServer.Handler(), "mrtcored"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("JSON-RPC listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
		errs <- httpServer.ListenAndServe()
	}()
	go func() {
		logger.Info("Metrics listening", "address", cfg.MetricsAddress)
		errs <- metricsServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			_ = metricsServer.Close()
		}
		logger.Info("Node stopped")
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
