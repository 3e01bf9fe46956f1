package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ms-ticket-issuance/internal/config"
	"ms-ticket-issuance/internal/logger"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

const serviceName = "ticket-service"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Issue QR-coded entry tickets with a per-VATIN quota",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Optional config file (yaml, json or toml); environment variables take precedence")

	root.AddCommand(newServeCommand(&configPath), newMigrateCommand(&configPath))
	return root
}

// loadConfig loads .env if present, then the config file and environment.
func loadConfig(path string, validate bool) (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logger.New(logger.Options{Dir: cfg.Log.Dir, Service: serviceName, Level: level})
}
