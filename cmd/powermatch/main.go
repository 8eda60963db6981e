package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/app"
	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "powermatch",
		Short: "Match and reduce power plant databases",
		Long: `powermatch links the power plant records of several databases, combines the
pairwise matches into cross-source rows and reduces every row to one plant.

The pipeline is configured by a TOML or YAML file (see --config) and
POWERMATCH_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file (TOML or YAML); defaults to $CONFIG_PATH")
	root.PersistentFlags().String("log-level", "", "override the configured log level")
	root.AddCommand(newRunCmd(), newRunsCmd(), newCacheCmd())
	return root
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Run.LogLevel = level
	}
	return cfg, nil
}

// openApp loads the configuration, applies the command's overrides and wires the application.
// The returned close function releases the app and flushes the logger.
func openApp(ctx context.Context, cmd *cobra.Command, overrides ...func(*config.Config)) (*app.App, *zap.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	logger, err := logging.New(cfg.Run.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to start: %w", err)
	}
	closeFn := func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("failed to close", zap.Error(err))
		}
		logger.Sync()
	}
	return a, logger, closeFn, nil
}
