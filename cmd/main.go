package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/helper"
)

const (
	configFilePath = "./configs/config.yaml"
	envFilePath    = ".env"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docqa",
		Short:         "Answer questions about a local document corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath, opts.envFile)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			helper.SetupLogger(level, cmd.ErrOrStderr())
			log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", configFilePath, "path to the yaml config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", envFilePath, "dotenv file loaded before the environment overlay")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newIngestCmd(opts),
		newAskCmd(opts),
		newServeCmd(opts),
		newInspectCmd(opts),
	)
	return cmd
}

func main() {
	helper.SetupLogger("info", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("docqa failed")
	}
}
