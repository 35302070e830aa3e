package logger

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config represents logging configuration
type Config struct {
	// File is the rotated JSON log path; empty disables file output
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"` // debug, info, warn (warning), error
	Console    *bool  `mapstructure:"console"`
}

// DefaultConfig returns console-only info logging
func DefaultConfig() *Config {
	return (&Config{}).SetDefaults()
}

// SetDefaults fills unset fields and returns a copy
func (cfg *Config) SetDefaults() *Config {
	out := *cfg
	if out.Level == "" {
		out.Level = "info"
	}
	if out.MaxSize == 0 {
		out.MaxSize = 100
	}
	if out.MaxBackups == 0 {
		out.MaxBackups = 3
	}
	if out.MaxAge == 0 {
		out.MaxAge = 28
	}
	if out.Console == nil {
		on := true
		out.Console = &on
	}
	if out.File != "" {
		out.File = filepath.Clean(out.File)
	}
	return &out
}

// Validate validates logging configuration
func (cfg *Config) Validate() error {
	if cfg.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if cfg.MaxBackups < 0 || cfg.MaxAge < 0 {
		return fmt.Errorf("max_backups and max_age cannot be negative")
	}
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	if cfg.File == "" && cfg.Console != nil && !*cfg.Console {
		return fmt.Errorf("at least one of file or console output must be enabled")
	}
	return nil
}
