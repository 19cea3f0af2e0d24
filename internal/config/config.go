// Package config loads application configuration from file and
// environment and installs the global logger.
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
	GeoNames GeoNamesConfig `yaml:"geonames" mapstructure:"geonames"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GeoNamesConfig configures dump acquisition.
type GeoNamesConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
	RateMs      int    `yaml:"rate_ms" mapstructure:"rate_ms"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// IngestConfig holds per-run pipeline defaults, all overridable by flags.
type IngestConfig struct {
	FeatureClass string `yaml:"feature_class" mapstructure:"feature_class"`
	Layer        string `yaml:"layer" mapstructure:"layer"`
	CRS          string `yaml:"crs" mapstructure:"crs"`
	Encoding     string `yaml:"encoding" mapstructure:"encoding"`
	OnConflict   string `yaml:"on_conflict" mapstructure:"on_conflict"`
	Strict       bool   `yaml:"strict" mapstructure:"strict"`
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
	v.SetEnvPrefix("GAZETTEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("geonames.base_url", "https://download.geonames.org/export/dump")
	v.SetDefault("geonames.data_dir", "/tmp/geonames")
	v.SetDefault("geonames.rate_ms", 500)
	v.SetDefault("geonames.concurrency", 3)
	v.SetDefault("ingest.feature_class", "T")
	v.SetDefault("ingest.layer", "mountains")
	v.SetDefault("ingest.crs", "EPSG:4326")
	v.SetDefault("ingest.encoding", "utf-8")
	v.SetDefault("ingest.on_conflict", "overwrite")
	v.SetDefault("ingest.strict", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
