package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hannes/yaak-guard/config"
	"github.com/hannes/yaak-guard/pii"
	detectors "github.com/hannes/yaak-guard/pii/detectors"
	"github.com/hannes/yaak-guard/server"
)

type cliFlags struct {
	configPath string
	provider   string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "yaak-guard",
		Short:         "Detect PII in text through a configurable guard backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML or JSON config file (default ./"+config.DefaultConfigFile+")")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "Guard provider, overrides config and GUARD_PROVIDER")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newDetectCmd(flags), newServeCmd(flags), newProvidersCmd())
	return root
}

func newDetectCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [text]",
		Short: "Run detection once and print the result as JSON",
		Long:  "Run detection once on the given text, or on stdin when no argument is given, and print the normalized result as JSON.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			shutdown := setupTracing(cfg)
			defer shutdown()

			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			guard, provider, err := buildGuard(cfg)
			if err != nil {
				return err
			}
			defer closeGuard(guard)

			res, err := guard.Detect(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("%s detect: %w", provider, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newServeCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP detection service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			shutdown := setupTracing(cfg)
			defer shutdown()

			if cfg.Server.SentryDSN != "" {
				if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Server.SentryDSN}); err != nil {
					slog.Warn("sentry initialization failed", "error", err)
				} else {
					defer sentry.Flush(2 * time.Second)
				}
			}

			guard, provider, err := buildGuard(cfg)
			if err != nil {
				return err
			}

			audit, err := buildAuditStore(cmd.Context(), cfg)
			if err != nil {
				closeGuard(guard)
				return err
			}

			srv, err := server.NewServer(cfg, guard, provider, audit)
			if err != nil {
				closeGuard(guard)
				return fmt.Errorf("failed to create server: %w", err)
			}
			defer func() {
				if err := srv.Close(); err != nil {
					slog.Warn("failed to close server resources", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List valid provider identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range detectors.SupportedProviders() {
				if _, err := fmt.Fprintln(out, p); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(out, "%s (fallback, also used for %q and empty)\n", detectors.ProviderRegex, detectors.ProviderNone)
			return err
		},
	}
}

// loadConfig layers defaults, config file, .env, environment and flags, then validates
func loadConfig(flags *cliFlags) (*config.Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file from current directory")
	}

	cfg := config.DefaultConfig()
	if err := config.LoadFile(flags.configPath, cfg); err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)

	if flags.provider != "" {
		cfg.Guard.Provider = flags.provider
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(lc config.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// setupTracing installs a stdout span exporter when tracing is enabled. The returned func
// flushes and stops it.
func setupTracing(cfg *config.Config) func() {
	if !cfg.Tracing.Enabled {
		return func() {}
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Warn("failed to create trace exporter", "error", err)
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Warn("failed to shut down tracer provider", "error", err)
		}
	}
}

// buildGuard resolves the configured provider, falling back to the regex detector when the
// selector yields no backend.
func buildGuard(cfg *config.Config) (detectors.Guard, string, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Guard.Provider))
	guard, err := detectors.NewGuard(provider, cfg.GuardOptions())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create guard: %w", err)
	}
	if guard == nil {
		slog.Info("no guard backend selected, using regex detector", "provider", provider)
		return detectors.Instrument(detectors.ProviderRegex, detectors.NewDefaultRegexDetector()), detectors.ProviderRegex, nil
	}
	slog.Info("guard backend ready", "provider", provider)
	return guard, provider, nil
}

func buildAuditStore(ctx context.Context, cfg *config.Config) (pii.AuditStore, error) {
	if !cfg.Database.Enabled {
		return pii.NewInMemoryAuditStore(cfg.Server.AuditCapacity), nil
	}
	store, err := pii.NewPostgresAuditStore(ctx, pii.DatabaseConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Database:     cfg.Database.Database,
		Username:     cfg.Database.Username,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetimeDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	return store, nil
}

func inputText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("no text given: pass it as an argument or on stdin")
	}
	return string(data), nil
}

func closeGuard(g detectors.Guard) {
	if closer, ok := detectors.Unwrap(g).(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("failed to close guard", "error", err)
		}
	}
}
