package base

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/rdocs/internal/config"
)

// LoadConfig loads envFile, when present, into the process environment and
// then the configuration at path. An empty path uses defaults and the
// environment only.
func (c *Command) LoadConfig(path, envFile string) (*config.Config, error) {
	fs := afero.NewOsFs()
	if envFile != "" {
		if err := config.LoadDotEnv(fs, envFile); err != nil {
			return nil, fmt.Errorf("error loading env file: %w", err)
		}
	}
	cfg, err := config.Load(fs, path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// ConfigureLogger applies the log level and format from cfg.
func (c *Command) ConfigureLogger(cfg *config.Config) {
	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	if cfg.LogFormat == "json" {
		c.Log = hclog.New(&hclog.LoggerOptions{
			Name:       c.Log.Name(),
			Level:      level,
			JSONFormat: true,
		})
		return
	}
	c.Log.SetLevel(level)
}
