package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/huddlechat/huddle-server/internal/app"
	"github.com/huddlechat/huddle-server/internal/config"
	"github.com/huddlechat/huddle-server/internal/log"
)

var (
	flagAddr     string
	flagConfig   string
	flagLogLevel string
	flagRedisURL string
)

var rootCmd = &cobra.Command{
	Use:          "huddle-server",
	Short:        "Realtime presence, chat and call signaling server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := log.New(flagLogLevel)

		cfg, path, err := config.Load(logger, flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Info().Str("config", path).Msg("configuration loaded")

		// CLI flags win over file and environment values.
		if cmd.Flags().Changed("addr") {
			cfg.Addr = flagAddr
		}
		if cmd.Flags().Changed("redis-url") {
			cfg.RedisURL = flagRedisURL
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		} else if cfg.LogLevel != "" {
			logger = log.New(cfg.LogLevel)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(cfg, logger)
		if err != nil {
			return err
		}

		logger.Info().Str("addr", cfg.Addr).Msg("starting huddle server")
		if err := application.Run(ctx); err != nil {
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "HTTP listen address")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.Flags().StringVar(&flagRedisURL, "redis-url", "", "redis connection URL")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
