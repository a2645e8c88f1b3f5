package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the credentials and endpoints for one client instance.
// Exactly one of AccessToken or Email+Password must be set.
type Config struct {
	BackendURL  string `json:"backend_url" yaml:"backend_url"`
	AuthURL     string `json:"supabase_url" yaml:"supabase_url"`
	AuthAnonKey string `json:"supabase_anon_key" yaml:"supabase_anon_key"`

	AccessToken string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	UserID      string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
}

const defaultBackendURL = "http://localhost:8000"

// LoadConfig reads credentials from the given file (JSON, or YAML when
// the extension is .yaml/.yml), then fills anything missing from the
// SUNA_* environment variables. An empty path skips the file entirely.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config file %s not found", path)
			}
			return cfg, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("invalid YAML in config file %s: %w", path, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("invalid JSON in config file %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	setIfEmpty(&cfg.BackendURL, "SUNA_BACKEND_URL")
	setIfEmpty(&cfg.AuthURL, "SUNA_SUPABASE_URL")
	setIfEmpty(&cfg.AuthAnonKey, "SUNA_SUPABASE_ANON_KEY")
	setIfEmpty(&cfg.AccessToken, "SUNA_ACCESS_TOKEN")
	setIfEmpty(&cfg.UserID, "SUNA_USER_ID")
	setIfEmpty(&cfg.Email, "SUNA_EMAIL")
	setIfEmpty(&cfg.Password, "SUNA_PASSWORD")
}

// Validate checks the configuration before any network call is made.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend_url is required")
	}
	if c.AuthURL == "" {
		return errors.New("supabase_url is required")
	}
	if c.AuthAnonKey == "" {
		return errors.New("supabase_anon_key is required")
	}
	hasToken := c.AccessToken != ""
	hasLogin := c.Email != "" && c.Password != ""
	switch {
	case hasToken && hasLogin:
		return errors.New("provide either access_token or email+password, not both")
	case !hasToken && !hasLogin:
		return errors.New("provide either access_token or email+password")
	}
	return nil
}
