package keeperd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mrtcore/observability/logging"
	telemetry "mrtcore/observability/otel"
)

// Main initialises and runs the settlement keeper daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/keeperd/config.yaml", "path to keeperd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MRT_ENV"))
	log := logging.Setup("keeperd", env, logging.Options{})
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "keeperd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	journal, err := OpenJournal(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	client := NewClient(ClientConfig{
		URL:     cfg.Node.Endpoint,
		Token:   cfg.Node.Token,
		Timeout: cfg.Node.Timeout.Duration,
	})
	runner := NewRunner(client, journal, cfg.Executor,
		WithPollInterval(cfg.PollInterval.Duration),
		WithRetryBackoff(cfg.RetryBackoff.Duration),
		WithLogger(log),
	)
	if cfg.PauseOnStart {
		runner.Pause()
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runner.Run(stopCtx)

	if !cfg.Report.Disabled {
		location, err := time.LoadLocation(cfg.Report.Timezone)
		if err != nil {
			return fmt.Errorf("load report timezone: %w", err)
		}
		reporter, err := NewReporter(ReporterConfig{
			Journal:   journal,
			OutputDir: cfg.Report.OutputDir,
			TZ:        location,
			Log:       log,
		})
		if err != nil {
			return fmt.Errorf("init reporter: %w", err)
		}
		scheduler := NewScheduler(SchedulerConfig{
			Reporter:  reporter,
			Window:    cfg.Report.Window.Duration,
			RunHour:   cfg.Report.RunHour,
			RunMinute: cfg.Report.RunMinute,
			Location:  location,
			Log:       log,
		})
		go scheduler.Start(stopCtx)
	}

	handler := NewAdminHandler(runner, cfg.Admin.BearerToken)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(handler, "keeperd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("keeperd listening",
			"address", cfg.ListenAddress,
			"node", cfg.Node.Endpoint,
			logging.MaskSecret("node_token", cfg.Node.Token),
		)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
