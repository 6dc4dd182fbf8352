// Package config loads the operator CLI settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:8090"
	DefaultTimeout     = 60 * time.Second
	DefaultStatePath   = "configs/cli_state.json"
	DefaultHistoryPath = ".autograde_history"
)

// Environment overrides, applied after the file.
const (
	EnvBaseURL = "AUTOGRADE_CLI_BASE_URL"
	EnvToken   = "AUTOGRADE_TOKEN"
)

// Config holds CLI configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Output  OutputConfig  `yaml:"output"`
}

// ServerConfig locates the grading API.
type ServerConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig holds per-operator files and the token override.
type SessionConfig struct {
	StatePath   string `yaml:"statePath"`
	HistoryPath string `yaml:"historyPath"`
	// Token, when set, is used instead of the saved one and never written to disk.
	Token string `yaml:"-"`
}

// OutputConfig controls how responses are printed.
type OutputConfig struct {
	Pretty *bool `yaml:"pretty"`
	// Raw prints the response body as received instead of the decoded data.
	Raw bool `yaml:"raw"`
}

// PrettyJSON reports whether JSON data should be indented.
func (c Config) PrettyJSON() bool {
	return c.Output.Pretty == nil || *c.Output.Pretty
}

// Load applies envFile to the environment, then reads path. Missing files
// are skipped so the CLI runs on defaults alone.
func Load(path, envFile string) (Config, error) {
	var cfg Config
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file failed: %w", err)
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config file failed: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file failed: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if cfg.Server.Timeout < 0 {
		return cfg, fmt.Errorf("server timeout must not be negative")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		cfg.Session.Token = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = DefaultBaseURL
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = DefaultTimeout
	}
	if cfg.Session.StatePath == "" {
		cfg.Session.StatePath = DefaultStatePath
	}
	if cfg.Session.HistoryPath == "" {
		cfg.Session.HistoryPath = DefaultHistoryPath
	}
}
