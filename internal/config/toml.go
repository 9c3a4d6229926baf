// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Timer  TimerConfig  `toml:"timer"`
	Keys   KeysConfig   `toml:"keys"`
	Server ServerConfig `toml:"server"`
	Backup BackupConfig `toml:"backup"`
	Log    LogConfig    `toml:"log"`
}

// TimerConfig maps timer-related settings.
type TimerConfig struct {
	Group       *int64 `toml:"group"`
	TickMs      *int   `toml:"tick-ms"`
	DebounceMs  *int   `toml:"debounce-ms"`
	SaveRetries *int   `toml:"save-retries"`
}

// KeysConfig maps actions to key names as reported by Bubble Tea.
type KeysConfig struct {
	Split     []string `toml:"split"`
	Pause     []string `toml:"pause"`
	Reset     []string `toml:"reset"`
	NextGroup []string `toml:"next-group"`
	Quit      []string `toml:"quit"`
}

// ServerConfig maps the control API settings.
type ServerConfig struct {
	Enabled     *bool    `toml:"enabled"`
	Listen      *string  `toml:"listen"`
	CORSOrigins []string `toml:"cors-origins"`
}

// BackupConfig maps the S3 remote used by backup push/pull.
type BackupConfig struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access-key-id"`
	SecretAccessKey string `toml:"secret-access-key"`
	PathStyle       bool   `toml:"path-style"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
