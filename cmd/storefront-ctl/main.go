// Command storefront-ctl runs one-off maintenance tasks against the
// storefront's cart storage and broker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/config"
	"storefront/internal/observability"
)

var (
	timeout time.Duration
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "storefront-ctl",
	Short:         "Maintenance commands for the storefront service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		observability.InitLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Operation timeout")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(purgeCartsCmd)
	rootCmd.AddCommand(publishCheckoutCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
