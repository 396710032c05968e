package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwbudde/adaptivexp/internal/config"
	"github.com/cwbudde/adaptivexp/internal/server"
	"github.com/cwbudde/adaptivexp/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	flagConfig = config.Default()
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the experiment HTTP server",
	Long: `Starts the HTTP API. Settings come from the defaults, then the optional
YAML file given by --config, then any flags set on the command line.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	flagConfig.AddFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

// resolveConfig layers the explicitly set flags of fs over the file at path.
func resolveConfig(path string, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	cfg.AddFlags(overrides)

	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		target := overrides.Lookup(f.Name)
		if target == nil || setErr != nil {
			return
		}
		if src, ok := f.Value.(pflag.SliceValue); ok {
			if dst, ok := target.Value.(pflag.SliceValue); ok {
				setErr = dst.Replace(src.GetSlice())
				return
			}
		}
		setErr = target.Value.Set(f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		setupLogger(cfg.LogLevel)
	}

	factory, err := cfg.OptimizerFactory()
	if err != nil {
		return err
	}

	st := store.New(factory,
		store.WithStrictObjectives(cfg.StrictObjectives),
		store.WithTraceDir(cfg.TraceDir))
	srv := server.NewServer(cfg.Addr, st, server.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimit:      cfg.RateLimit.RPS,
		RateBurst:      cfg.RateLimit.Burst,
	})

	slog.Info("Configuration loaded",
		"addr", cfg.Addr,
		"optimizer", cfg.Optimizer.Backend,
		"seed", cfg.Optimizer.Seed,
		"strict_objectives", cfg.StrictObjectives,
		"trace_dir", cfg.TraceDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	for _, summary := range st.List() {
		if err := st.Delete(summary.ID); err != nil {
			slog.Warn("Failed to release experiment", "experiment_id", summary.ID, "error", err)
		}
	}
	return <-errCh
}
