package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the client settings read from config.toml.
type Config struct {
	APIURL            string
	Token             string
	DataDir           string
	LogFile           string
	LogLevel          string
	UndoWindow        time.Duration
	ProbeInterval     time.Duration
	PollInterval      time.Duration
	MaxReplayAttempts int
	HideQueued        bool
}

// TokenEnv overrides the token from the config file.
const TokenEnv = "RECALL_TOKEN"

const (
	defaultConfigPath    = "~/.config/recall/config.toml"
	defaultDataDir       = "~/.local/share/recall"
	defaultAPIURL        = "http://localhost:8081"
	defaultLogLevel      = "info"
	defaultUndoWindow    = 4000 * time.Millisecond
	defaultProbeInterval = 5000 * time.Millisecond
	defaultPollInterval  = 2000 * time.Millisecond
)

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		APIURL:        defaultAPIURL,
		DataDir:       mustExpand(defaultDataDir),
		LogLevel:      defaultLogLevel,
		UndoWindow:    defaultUndoWindow,
		ProbeInterval: defaultProbeInterval,
		PollInterval:  defaultPollInterval,
	}
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIURL            string `toml:"api_url"`
		Token             string `toml:"token"`
		DataDir           string `toml:"data_dir"`
		LogFile           string `toml:"log_file"`
		LogLevel          string `toml:"log_level"`
		UndoWindowMS      int    `toml:"undo_window_ms"`
		ProbeIntervalMS   int    `toml:"probe_interval_ms"`
		PollIntervalMS    int    `toml:"poll_interval_ms"`
		MaxReplayAttempts int    `toml:"max_replay_attempts"`
		HideQueued        bool   `toml:"hide_queued"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	cfg.Token = strings.TrimSpace(raw.Token)
	if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.DataDir = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	cfg.UndoWindow = millis(raw.UndoWindowMS, defaultUndoWindow)
	cfg.ProbeInterval = millis(raw.ProbeIntervalMS, defaultProbeInterval)
	cfg.PollInterval = millis(raw.PollIntervalMS, defaultPollInterval)
	if raw.MaxReplayAttempts < 0 {
		return Config{}, fmt.Errorf("parse config: max_replay_attempts must not be negative")
	}
	cfg.MaxReplayAttempts = raw.MaxReplayAttempts
	cfg.HideQueued = raw.HideQueued

	applyEnv(&cfg)
	return cfg, nil
}

// DBPath returns the SQLite file holding the action queue.
func (c Config) DBPath() string {
	return filepath.Join(c.dataDir(), "recall.db")
}

// LogPath returns the log file, defaulting to recall.log in the data dir.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.LogFile) != "" {
		return c.LogFile
	}
	return filepath.Join(c.dataDir(), "recall.log")
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.DataDir) == "" {
		return mustExpand(defaultDataDir)
	}
	return c.DataDir
}

func applyEnv(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(TokenEnv)); token != "" {
		cfg.Token = token
	}
}

func millis(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
