package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foodforge/internal/config"
	"foodforge/internal/logging"
	"foodforge/internal/notify"
	"foodforge/internal/store"
)

func watchCmd() *cobra.Command {
	var (
		tables []string
		count  int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream change events from the Redis feed as JSON lines",
		Long: `Stream insert events published by API instances.

Examples:
  # Every table
  forgectl watch

  # Only scans, stop after 10 events
  forgectl watch --table meal_scans --count 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cfg.NotifierBackend != "redis" {
				return errors.New("watch needs NOTIFIER_BACKEND=redis; the memory feed is private to one process")
			}
			logger, err := logging.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			redisClient := store.NewRedis(cfg.RedisAddr)
			defer redisClient.Close()

			feed := notify.NewRedis(redisClient.Client, cfg.NotifyChannel, logger)
			sub, err := feed.Subscribe(cmd.Context(), tables...)
			if err != nil {
				return err
			}
			defer sub.Close()
			logger.Info("watching change feed", zap.String("channel", cfg.NotifyChannel), zap.Strings("tables", tables))

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := 0
			for evt := range sub.C() {
				if err := enc.Encode(evt); err != nil {
					return fmt.Errorf("write event: %w", err)
				}
				seen++
				if count > 0 && seen >= count {
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil, "Tables to follow (default all)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 = until interrupted)")
	return cmd
}
