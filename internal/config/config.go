// Package config provides configuration loading for wortschatzd.
//
// Configuration is read from a YAML file and overridden by environment
// variables. This package covers server, logging, tutor and storage
// settings.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete wortschatzd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	Tutor   TutorConfig   `koanf:"tutor"`
	Storage StorageConfig `koanf:"storage"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TutorConfig holds remote AI service configuration. One model per task;
// the defaults match the models the service currently exposes.
type TutorConfig struct {
	APIKey         Secret   `koanf:"api_key"`
	AnalysisModel  string   `koanf:"analysis_model"`
	ChatModel      string   `koanf:"chat_model"`
	ImageModel     string   `koanf:"image_model"`
	SpeechModel    string   `koanf:"speech_model"`
	MediaBaseURL   string   `koanf:"media_base_url"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// StorageConfig holds notebook persistence configuration.
type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown or request timeout is not positive
//   - The API key is unset
//   - Any model name, the data directory, or a logging field is empty
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if !c.Tutor.APIKey.IsSet() {
		return errors.New("tutor API key is required (set TUTOR_API_KEY or GEMINI_API_KEY)")
	}
	for name, model := range map[string]string{
		"analysis_model": c.Tutor.AnalysisModel,
		"chat_model":     c.Tutor.ChatModel,
		"image_model":    c.Tutor.ImageModel,
		"speech_model":   c.Tutor.SpeechModel,
	} {
		if model == "" {
			return fmt.Errorf("tutor %s must not be empty", name)
		}
	}
	if c.Tutor.RequestTimeout.Duration() <= 0 {
		return errors.New("tutor request timeout must be positive")
	}

	if c.Storage.DataDir == "" {
		return errors.New("storage data directory must not be empty")
	}

	return nil
}

// defaultRequestTimeout bounds each remote tutor call so a hung upstream
// cannot pin a view's busy flag forever.
const defaultRequestTimeout = 60 * time.Second
