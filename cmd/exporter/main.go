// Package main is the entry point for the Eaton UPS exporter.
// It loads the layered configuration, builds one scraper per device and
// serves the collected measurements as Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Guliveer/eaton-ups-exporter/internal/collector"
	"github.com/Guliveer/eaton-ups-exporter/internal/config"
	"github.com/Guliveer/eaton-ups-exporter/internal/exporter"
	"github.com/Guliveer/eaton-ups-exporter/internal/models"
	"github.com/Guliveer/eaton-ups-exporter/internal/scraper"
)

const name = "eaton-ups-exporter"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// -v is taken by --verbose.
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version and exit",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "Received signal %s, shutting down\n", sig)
		cancel()
	}()

	if err := rootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Prometheus exporter for Eaton UPS network cards",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file with the devices to scrape (YAML or JSON)",
				Sources: cli.EnvVars("UPS_EXPORTER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "web.listen-address",
				Aliases: []string{"w"},
				Usage:   "address to serve metrics on, as host:port",
			},
			&cli.BoolFlag{
				Name:    "insecure",
				Aliases: []string{"k"},
				Usage:   "skip TLS certificate verification for all devices",
			},
			&cli.BoolFlag{
				Name:    "threading",
				Aliases: []string{"t"},
				Usage:   "scrape devices concurrently",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
			&cli.DurationFlag{
				Name:  "login-timeout",
				Usage: "timeout of the login request to each device",
			},
		},
		Commands: []*cli.Command{
			scrapeCmd(),
			logsCmd(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := initLogger(cfg, os.Stdout)
			defer func() { _ = logger.Sync() }()

			return serve(ctx, cfg, logger)
		},
	}
}

func scrapeCmd() *cli.Command {
	return &cli.Command{
		Name:  "scrape",
		Usage: "Run one collection cycle and print the snapshots as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := initLogger(cfg, os.Stderr)
			defer func() { _ = logger.Sync() }()

			registry := buildRegistry(cfg, logger, nil)

			snapshots := make([]*models.Snapshot, 0, len(cfg.Devices))
			for res := range registry.ScrapeAll(ctx) {
				if res.Err != nil {
					return fmt.Errorf("scraping %s: %w", res.Device, res.Err)
				}
				snapshots = append(snapshots, res.Snapshot)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshots)
		},
	}
}

func logsCmd() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Download the measure log of one device as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "device",
				Aliases:  []string{"d"},
				Usage:    "name of the configured device",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "file to write to (default: stdout)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := initLogger(cfg, os.Stderr)
			defer func() { _ = logger.Sync() }()

			var device *config.Device
			for _, d := range cfg.Descriptors() {
				if d.Name == cmd.String("device") {
					device = &d
					break
				}
			}
			if device == nil {
				return fmt.Errorf("no device named %q is configured", cmd.String("device"))
			}

			client := scraper.New(*device, logger.Named("scraper"),
				scraper.WithLoginTimeoutMasking(cfg.Compat.MaskLoginTimeout))
			data, err := client.LogMeasures(ctx)
			if err != nil {
				return fmt.Errorf("downloading measure log: %w", err)
			}

			var out io.Writer = os.Stdout
			if path := cmd.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}
			_, err = out.Write(data)
			return err
		},
	}
}

// loadConfig builds the layered configuration from the root command's flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	overrides := config.CLIOverrides{
		ListenAddress: cmd.String("web.listen-address"),
		Insecure:      cmd.Bool("insecure"),
		Threading:     cmd.Bool("threading"),
		Verbose:       cmd.Bool("verbose"),
		LoginTimeout:  cmd.Duration("login-timeout"),
	}

	var (
		cfg *config.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.LoadLayered(overrides, embeddedConfig, path)
	} else {
		cfg, err = config.LoadLayered(overrides, embeddedConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRegistry creates one scraper per configured device.
func buildRegistry(cfg *config.Config, logger *zap.Logger, hook scraper.FailureHook) *collector.Registry {
	registry := collector.NewRegistry(collector.Options{
		Concurrent: cfg.Collection.Threading,
		Workers:    cfg.Collection.Workers,
		Deadline:   cfg.CollectionDeadline(),
	}, logger.Named("collector"))

	opts := []scraper.Option{scraper.WithLoginTimeoutMasking(cfg.Compat.MaskLoginTimeout)}
	if hook != nil {
		opts = append(opts, scraper.WithFailureHook(hook))
	}

	for _, dev := range cfg.Descriptors() {
		registry.Register(scraper.New(dev, logger.Named("scraper"), opts...))
	}
	return registry
}

// serve runs the metrics endpoint until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	host, port, err := config.SplitListenAddress(cfg.Web.ListenAddress)
	if err != nil {
		return err
	}

	metrics := exporter.NewMetrics()
	registry := buildRegistry(cfg, logger, metrics.ObserveFailure)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := exporter.New(registry, metrics, logger.Named("exporter")).Register(reg); err != nil {
		return fmt.Errorf("registering collectors: %w", err)
	}

	logger.Info("Exporter configured",
		zap.String("version", version),
		zap.Int("devices", len(cfg.Devices)),
		zap.Bool("threading", cfg.Collection.Threading),
		zap.Duration("login_timeout", cfg.Collection.LoginTimeout.Duration))

	start := time.Now()
	err = exporter.Serve(ctx, host, port, exporter.NewHandler(reg, cfg.Web.TelemetryPath, logger), logger)
	logger.Info("Exporter stopped", zap.Duration("uptime", time.Since(start)))
	return err
}

// initLogger creates a zap logger based on the configuration.
// It writes human-readable output to out and, if configured, JSON to a log file.
func initLogger(cfg *config.Config, out zapcore.WriteSyncer) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(out), level),
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
