package bootstrap

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jonesrussell/gobacklinks/internal/config"
	"github.com/jonesrussell/gobacklinks/internal/logger"
)

// LoadConfig loads configuration from the path given by the -config flag,
// after loading a .env file if one exists.
func LoadConfig() (*config.Config, error) {
	configPath := flag.String("config", defaultConfigPath(), "Path to configuration file")
	flag.Parse()

	// A missing .env is fine; env vars may come from the environment itself.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yml"
}

// CreateLogger creates the service logger.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", "gobacklinks"),
		logger.String("version", version),
	), nil
}
