package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/depwatch/timemachine/insights"
)

// Config is the explicit configuration struct handed to the services. It is
// loaded once from viper (config file + TIMEMACHINE_* env) and passed down;
// nothing reads viper after startup.
type Config struct {
	// DataDir holds the sqlite database; blobs live under DataDir/snapshots
	// unless StorageDir overrides it.
	DataDir    string `mapstructure:"data_dir"`
	StorageDir string `mapstructure:"storage_dir"`

	Typosquat TyposquatConfig `mapstructure:"typosquat"`
}

// TyposquatConfig parameterizes typosquat detection; see the insights
// package for the defaults.
type TyposquatConfig struct {
	MaxDistance     int      `mapstructure:"max_distance"`
	PopularPackages []string `mapstructure:"popular_packages"`
}

// Load builds the configuration from viper's current state, applying
// defaults for anything unset.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	viper.SetDefault("data_dir", filepath.Join(home, ".timemachine"))
	viper.SetDefault("typosquat.max_distance", 2)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(cfg.DataDir, "snapshots")
	}
	if cfg.Typosquat.MaxDistance == 0 {
		cfg.Typosquat.MaxDistance = 2
	}
	if len(cfg.Typosquat.PopularPackages) == 0 {
		cfg.Typosquat.PopularPackages = insights.DefaultPopularPackages
	}
	return &cfg, nil
}

// InsightConfig converts the typosquat section into the analyzer's config.
func (c *Config) InsightConfig() insights.Config {
	return insights.Config{
		TyposquatMaxDistance: c.Typosquat.MaxDistance,
		PopularPackages:      c.Typosquat.PopularPackages,
	}
}
