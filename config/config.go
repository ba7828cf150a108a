package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the main application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
	I18n    I18nConfig    `mapstructure:"i18n"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	DataDir       string   `mapstructure:"data_dir"`
	Timezone      string   `mapstructure:"timezone"`
	UploadPIN     string   `mapstructure:"upload_pin"`
	SessionSecret string   `mapstructure:"session_secret"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
	Version       string   `mapstructure:"version"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DBConfig struct {
	File string `mapstructure:"file"`
}

// IngestConfig tunes report ingestion.
type IngestConfig struct {
	BatchSize   int `mapstructure:"batch_size"`
	Workers     int `mapstructure:"workers"` // 0 picks a value from the CPU count
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// MQTTConfig configures the publisher for ingestion notifications.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// CleanupConfig controls how long ingestion audit rows are kept.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load reads the configuration from file, environment and defaults.
// Environment variables use the CCTV_ prefix, e.g. CCTV_SERVER_UPLOAD_PIN.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	v.SetEnvPrefix("CCTV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Ingest.BatchSize <= 0 {
		log.Warnf("Invalid ingest.batch_size %d, using 1000", cfg.Ingest.BatchSize)
		cfg.Ingest.BatchSize = 1000
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.upload_pin", "123")
	v.SetDefault("server.session_secret", "change-me")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.version", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./data/logs/cctv.log")

	v.SetDefault("db.file", "./data/cctv.db")

	v.SetDefault("ingest.batch_size", 1000)
	v.SetDefault("ingest.workers", 0)
	v.SetDefault("ingest.max_upload_mb", 64)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "cctv-gcc-api")
	v.SetDefault("mqtt.topic", "cctv")

	v.SetDefault("cleanup.retention_days", 90)

	v.SetDefault("i18n.default_language", "en")
}

// ensureDirectories creates the data, log and database directories.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
