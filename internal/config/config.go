package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scanium ScaniumConfig `yaml:"scanium" mapstructure:"scanium"`
	Poll    PollConfig    `yaml:"poll" mapstructure:"poll"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ScaniumConfig holds credentials and tuning for the card scanning service.
type ScaniumConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
	// Mock swaps the real service for canned demo responses.
	Mock bool `yaml:"mock" mapstructure:"mock"`
}

// PollConfig configures the enrichment poll loop.
type PollConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
	MaxAttempts  int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StoreConfig configures the session snapshot backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures the batch scan command.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CARDSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Defaults returns the default configuration values keyed by viper path.
func Defaults() map[string]any {
	return map[string]any{
		"scanium.base_url":       "https://api.scanium.io/v1",
		"scanium.rps":            5.0,
		"scanium.mock":           false,
		"poll.interval_secs":     2,
		"poll.max_attempts":      30,
		"store.driver":           "sqlite",
		"store.path":             "cardscan.db",
		"server.port":            8080,
		"server.allowed_origins": []string{"*"},
		"batch.max_concurrent":   4,
		"log.level":              "info",
		"log.format":             "json",
	}
}

// Validate checks the configuration for the given run mode. Shared bounds are
// checked in every mode; credential requirements depend on which command runs.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "scan", "batch", "serve":
		if !c.Scanium.Mock && c.Scanium.Key == "" {
			problems = append(problems, "scanium.key is required (or set scanium.mock)")
		}
	case "sessions":
		if c.Store.Driver == "none" || c.Store.Driver == "" {
			problems = append(problems, "store.driver is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}
	if mode == "batch" && (c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50) {
		problems = append(problems, "batch.max_concurrent must be between 1 and 50")
	}
	if c.Poll.IntervalSecs < 1 {
		problems = append(problems, "poll.interval_secs must be >= 1")
	}
	if c.Poll.MaxAttempts < 1 {
		problems = append(problems, "poll.max_attempts must be >= 1")
	}
	switch c.Store.Driver {
	case "", "none", "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres, or none")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
