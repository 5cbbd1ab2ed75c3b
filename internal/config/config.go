package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Backend endpoints
	ServerURL string
	WSURL     string

	// Local state
	StateDir string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Transcription defaults
	Language string
}

// fileConfig mirrors the optional YAML config file. Environment variables
// take precedence over file values.
type fileConfig struct {
	ServerURL string `yaml:"server_url"`
	WSURL     string `yaml:"ws_url"`
	StateDir  string `yaml:"state_dir"`
	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	Language  string `yaml:"language"`
}

// Load reads configuration from ~/.config/scribe/config.yaml (if present)
// and environment variables, env winning.
func Load() Config {
	file := loadFile(configFilePath())

	stateDir := firstOf(os.Getenv("SCRIBE_STATE_DIR"), file.StateDir, defaultStateDir())
	return Config{
		ServerURL: firstOf(os.Getenv("SCRIBE_SERVER_URL"), file.ServerURL, "http://localhost:8000"),
		WSURL:     firstOf(os.Getenv("SCRIBE_WS_URL"), file.WSURL, ""),
		StateDir:  stateDir,
		LogFile:   firstOf(os.Getenv("SCRIBE_LOG_FILE"), file.LogFile, filepath.Join(stateDir, "scribe.log")),
		LogLevel:  parseLogLevel(firstOf(os.Getenv("SCRIBE_LOG_LEVEL"), file.LogLevel, "INFO")),
		Language:  firstOf(os.Getenv("SCRIBE_LANGUAGE"), file.Language, "nl-NL"),
	}
}

func configFilePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scribe", "config.yaml")
	}
	return ""
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "scribe")
	}
	return filepath.Join(os.TempDir(), "scribe")
}

func loadFile(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc
	}
	// A malformed config file falls back to defaults rather than failing.
	_ = yaml.Unmarshal(data, &fc)
	return fc
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
