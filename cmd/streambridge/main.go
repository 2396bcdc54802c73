package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/streamhive/streambridge/client"
	"github.com/streamhive/streambridge/config"
	"github.com/streamhive/streambridge/fanout"
	"github.com/streamhive/streambridge/internal/history"
	"github.com/streamhive/streambridge/internal/metrics"
	"github.com/streamhive/streambridge/internal/telemetry"
	"github.com/streamhive/streambridge/pipeline"
)

// Build-time injected version info.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting streambridge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Warn("history store unavailable", zap.Error(err))
		}
	}

	collector := metrics.NewCollector("streambridge", logger)

	backends := cfg.ResolvedBackends()
	clients := make([]client.Client, 0, len(backends))
	for _, b := range backends {
		clients = append(clients, client.NewRemote(client.RemoteConfig{
			Host:           b.Host,
			Port:           b.Port,
			ReconnectDelay: cfg.Pipeline.ReconnectDelay,
			SubmitTimeout:  cfg.Pipeline.SubmitTimeout,
		}, logger))
	}
	logger.Info("backends configured", zap.Int("count", len(clients)))

	orch, err := fanout.New(clients, fanout.Config{
		MinSubmitInterval: cfg.Fanout.MinSubmitInterval,
		OutputTimeout:     cfg.Fanout.OutputTimeout,
		CollectPoll:       cfg.Fanout.CollectPoll,
		Pipeline: pipeline.Config{
			OutputTimeout:     cfg.Pipeline.OutputTimeout,
			AudioInputTimeout: cfg.Pipeline.AudioInputTimeout,
			WarmupRuns:        cfg.Pipeline.WarmupRuns,
			WarmupWidth:       cfg.Pipeline.WarmupWidth,
			WarmupHeight:      cfg.Pipeline.WarmupHeight,
			WarmupSamples:     cfg.Pipeline.WarmupSamples,
		},
	}, collector, store, logger)
	if err != nil {
		logger.Fatal("failed to build orchestrator", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := orch.Cleanup(shutdownCtx); err != nil {
			logger.Warn("orchestrator cleanup failed", zap.Error(err))
		}
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("history store close failed", zap.Error(err))
			}
		}
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("streambridge stopped")
}

func printVersion() {
	fmt.Printf("streambridge %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`streambridge - real-time media bridge for graph inference backends

Usage:
  streambridge <command> [options]

Commands:
  serve     Start the bridge
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Examples:
  streambridge serve
  streambridge serve --config /etc/streambridge/config.yaml`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
