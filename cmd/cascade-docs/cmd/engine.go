package cmd

import (
	"os"

	"github.com/cascadedocs/cascade/internal/config"
	"github.com/cascadedocs/cascade/pkg/docengine"
)

// loadConfig resolves the effective configuration for a command invocation,
// applying --data-dir last so it always wins over file and environment
// sources.
func loadConfig() (*config.Config, error) {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}

// openEngine loads configuration and opens an Engine over it. The caller
// is responsible for calling Close.
func openEngine() (*docengine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return docengine.New(cfg)
}

// openEngineFromConfig opens an Engine over an already-loaded configuration.
func openEngineFromConfig(cfg *config.Config) (*docengine.Engine, error) {
	return docengine.New(cfg)
}
