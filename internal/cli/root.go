// Package cli wires the neurobridge-content processes behind one cobra root.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-content/internal/app"
	"github.com/yungbote/neurobridge-content/internal/observability"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

var (
	// Version is set at build time.
	Version = "dev"

	logMode string
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "neurobridge-content",
	Short: "Content learning pipeline",
	Long: `neurobridge-content ingests blogs, videos and podcasts, analyses them, and serves
summaries, question answering and quizzes over the results.

Run "api" for the HTTP facade, "worker" for the ingest pool, or "all" for both.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		mode := strings.TrimSpace(logMode)
		if mode == "" {
			mode = envutil.String("LOG_MODE", "development")
		}
		l, err := logger.New(mode)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "logger mode: development, production or test (default $LOG_MODE)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp wires the application, installs tracing, and runs fn until a signal arrives.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signalContext()
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: envutil.String("SERVICE_NAME", "neurobridge-content"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     Version,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	a, err := app.New(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
