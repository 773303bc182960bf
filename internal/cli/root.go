package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"timed-exercise-service/internal/config"
	"timed-exercise-service/internal/logger"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "exercise-service",
		Short:        "Timed fill-in-the-blank exercise service",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on (overrides config and PORT)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	return cmd
}

// loadConfig reads configuration and builds the process logger from it.
func loadConfig(path string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logger.Setup(cfg.Log.Level, cfg.Log.Format), nil
}
