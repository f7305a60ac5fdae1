// Package config loads bylines settings from a config file, BYLINES_
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/bylines/internal/skipmark"
)

const (
	// DefaultSkipMetaKey is the metadata key skip markers are stored under.
	DefaultSkipMetaKey = skipmark.DefaultKey

	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "BYLINES"
)

// Config is the complete bylines configuration.
type Config struct {
	// Database is the path of the SQLite database.
	Database string `mapstructure:"database"`

	// Taxonomy holds the author terms.
	Taxonomy string `mapstructure:"taxonomy"`

	// TermSlugPrefix is prepended to every author term slug.
	TermSlugPrefix string `mapstructure:"term_slug_prefix"`

	// SkipMetaKey is the metadata key of skip markers.
	SkipMetaKey string `mapstructure:"skip_meta_key"`

	Log      LogConfig      `mapstructure:"log"`
	Backfill BackfillConfig `mapstructure:"backfill"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error or none.
	Level string `mapstructure:"level"`

	// Format is json or text.
	Format string `mapstructure:"format"`
}

type BackfillConfig struct {
	RecordsPerBatch int           `mapstructure:"records_per_batch"`
	ThrottleEvery   int           `mapstructure:"throttle_every"`
	ThrottlePause   time.Duration `mapstructure:"throttle_pause"`
	DefaultType     string        `mapstructure:"default_type"`
	DefaultStatus   string        `mapstructure:"default_status"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Database:       "bylines.db",
		Taxonomy:       "author",
		TermSlugPrefix: "cap-",
		SkipMetaKey:    DefaultSkipMetaKey,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backfill: BackfillConfig{
			RecordsPerBatch: 250,
			ThrottleEvery:   500,
			ThrottlePause:   time.Second,
			DefaultType:     "post",
			DefaultStatus:   "publish",
		},
	}
}

// NewViper returns a viper instance that reads bylines.yaml from
// $HOME/.bylines or the working directory and BYLINES_ environment
// variables, with every key defaulted.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("bylines")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, path := range []string{"$HOME/.bylines", "."} {
		v.AddConfigPath(path)
	}

	setDefaults(v, DefaultConfig())
	return v
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("database", c.Database)
	v.SetDefault("taxonomy", c.Taxonomy)
	v.SetDefault("term_slug_prefix", c.TermSlugPrefix)
	v.SetDefault("skip_meta_key", c.SkipMetaKey)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("backfill.records_per_batch", c.Backfill.RecordsPerBatch)
	v.SetDefault("backfill.throttle_every", c.Backfill.ThrottleEvery)
	v.SetDefault("backfill.throttle_pause", c.Backfill.ThrottlePause)
	v.SetDefault("backfill.default_type", c.Backfill.DefaultType)
	v.SetDefault("backfill.default_status", c.Backfill.DefaultStatus)
}

// Read loads the configuration. When file is empty the search paths are
// used and a missing config file is not an error; an explicit file must
// exist.
func Read(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		if file != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Verify checks the configuration for values no run could succeed with.
func (c *Config) Verify() error {
	if c.Database == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Taxonomy) == "" {
		return errors.New("taxonomy is required")
	}
	if c.SkipMetaKey == "" {
		return errors.New("skip_meta_key is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "none":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error or none", c.Log.Level)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}

	if c.Backfill.RecordsPerBatch <= 0 {
		return fmt.Errorf("backfill.records_per_batch must be positive, got %d", c.Backfill.RecordsPerBatch)
	}
	if c.Backfill.ThrottleEvery <= 0 {
		return fmt.Errorf("backfill.throttle_every must be positive, got %d", c.Backfill.ThrottleEvery)
	}
	if c.Backfill.ThrottlePause < 0 {
		return fmt.Errorf("backfill.throttle_pause must not be negative, got %s", c.Backfill.ThrottlePause)
	}

	return nil
}

// MustBindPFlag binds a config key to a pflag and panics if the binding
// fails.
func MustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}
