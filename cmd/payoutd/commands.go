package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/payoutd/internal/migration"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	"github.com/smallbiznis/payoutd/internal/scheduler"
	"github.com/smallbiznis/payoutd/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().IntP("limit", "n", 50, "Maximum number of stored events to replay")
}

var rootCmd = &cobra.Command{
	Use:           "payoutd",
	Short:         "Marketplace earnings, payouts and subscriptions service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, webhook receiver and background scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			infrastructure(),
			migration.Module,
			domains(),
			server.Module,
			scheduler.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), fx.Options(
			infrastructure(),
			migration.Module,
		))
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-dispatch stored webhook events whose handler failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}
		return runOnce(cmd.Context(), fx.Options(
			infrastructure(),
			domains(),
			fx.Invoke(func(lc fx.Lifecycle, svc paymentdomain.Service, log *zap.Logger) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						result, err := svc.Replay(ctx, limit)
						if err != nil {
							return err
						}
						log.Info("webhook replay complete",
							zap.Int("claimed", result.Claimed),
							zap.Int("processed", result.Processed),
							zap.Int("failed", result.Failed),
						)
						return nil
					},
				})
			}),
		))
	},
}

// runOnce starts the graph, letting OnStart hooks do the work, and stops it.
func runOnce(parent context.Context, opts fx.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	app := fx.New(opts, fx.StartTimeout(5*time.Minute))
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(parent, 5*time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}
