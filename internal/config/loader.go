package config

import (
	"fmt"

	"github.com/rfenton/docimport/internal/db"
	"github.com/spf13/viper"
)

// ImporterConfig tunes the import engine.
type ImporterConfig struct {
	BatchSize      int
	SplitRowsAt    int
	MaxPreviewRows int
}

// DefaultImporterConfig returns the engine defaults.
func DefaultImporterConfig() ImporterConfig {
	return ImporterConfig{
		BatchSize:      1000,
		SplitRowsAt:    100,
		MaxPreviewRows: 10,
	}
}

func LoadDBConfig(configPath string) (db.Config, error) {
	// Start with default
	cfg := db.DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()     // allow environment overrides
	v.SetEnvPrefix("DB") // map env vars like DB_HOST, DB_PORT

	// Optional: Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}

// LoadImporterConfig reads the importer section of config.yaml with
// IMPORTER_* env overrides.
func LoadImporterConfig(configPath string) (ImporterConfig, error) {
	cfg := DefaultImporterConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("IMPORTER")

	v.BindEnv("importer.batch_size")
	v.BindEnv("importer.split_rows_at")
	v.BindEnv("importer.max_preview_rows")

	if err := v.ReadInConfig(); err == nil {
		if v.IsSet("importer.batch_size") {
			cfg.BatchSize = v.GetInt("importer.batch_size")
		}
		if v.IsSet("importer.split_rows_at") {
			cfg.SplitRowsAt = v.GetInt("importer.split_rows_at")
		}
		if v.IsSet("importer.max_preview_rows") {
			cfg.MaxPreviewRows = v.GetInt("importer.max_preview_rows")
		}
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.MaxPreviewRows <= 0 {
		cfg.MaxPreviewRows = 10
	}
	return cfg, nil
}
