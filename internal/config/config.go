package config

// Package config loads the client configuration file. JSON is the native format
// (the same document other JScrambler clients read); files ending in .yaml or
// .yml are parsed as YAML with the same field names.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jscrambler-client/internal/api"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "jscrambler.json"

// Keys holds the account key pair.
type Keys struct {
	AccessKey string `json:"accessKey" yaml:"accessKey"`
	SecretKey string `json:"secretKey" yaml:"secretKey"`
}

type Config struct {
	Keys          Keys           `json:"keys" yaml:"keys"`
	Host          string         `json:"host,omitempty" yaml:"host,omitempty"`
	Port          int            `json:"port,omitempty" yaml:"port,omitempty"`
	APIVersion    int            `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	FilesSrc      []string       `json:"filesSrc" yaml:"filesSrc"`
	FilesDest     string         `json:"filesDest" yaml:"filesDest"`
	Params        map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	DeleteProject bool           `json:"deleteProject,omitempty" yaml:"deleteProject,omitempty"`

	PollInterval  string `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`   // e.g. "3s"
	PollTimeout   string `json:"pollTimeout,omitempty" yaml:"pollTimeout,omitempty"`     // empty or "0" = wait forever
	HTTPTimeout   string `json:"httpTimeout,omitempty" yaml:"httpTimeout,omitempty"`     // per request, empty = none
	WatchDebounce string `json:"watchDebounce,omitempty" yaml:"watchDebounce,omitempty"` // watch mode quiet period
	LogFile       string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	HistoryDB     string `json:"historyDB,omitempty" yaml:"historyDB,omitempty"`
}

// ConfigError reports a missing or invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration field %s must be provided", e.Field)
}

// Default returns a configuration with the client defaults applied.
func Default() *Config {
	return &Config{
		Host:          api.DefaultHost,
		Port:          api.DefaultPort,
		APIVersion:    api.DefaultAPIVersion,
		PollInterval:  "3s",
		WatchDebounce: "500ms",
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s configuration file not found: %w", path, err)
		}
		return nil, err
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s configuration file: %w", path, err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s configuration file: %w", path, err)
		}
	}

	return cfg, nil
}

// Save writes cfg to path, as YAML when the extension asks for it.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// The file holds the secret key.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields every workflow needs.
func (c *Config) Validate() error {
	switch {
	case c.Keys.AccessKey == "":
		return &ConfigError{Field: "keys.accessKey"}
	case c.Keys.SecretKey == "":
		return &ConfigError{Field: "keys.secretKey"}
	case len(c.FilesSrc) == 0:
		return &ConfigError{Field: "filesSrc"}
	case c.FilesDest == "":
		return &ConfigError{Field: "filesDest"}
	}
	for _, d := range []struct{ field, value string }{
		{"pollInterval", c.PollInterval},
		{"pollTimeout", c.PollTimeout},
		{"httpTimeout", c.HTTPTimeout},
		{"watchDebounce", c.WatchDebounce},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return &ConfigError{Field: d.field, Reason: err.Error()}
		}
	}
	return nil
}

// ValidateKeys checks only the credentials, for commands that do not upload.
func (c *Config) ValidateKeys() error {
	if c.Keys.AccessKey == "" {
		return &ConfigError{Field: "keys.accessKey"}
	}
	if c.Keys.SecretKey == "" {
		return &ConfigError{Field: "keys.secretKey"}
	}
	return nil
}

// Endpoint returns the service location.
func (c *Config) Endpoint() api.Endpoint {
	return api.Endpoint{Host: c.Host, Port: c.Port, APIVersion: c.APIVersion}.WithDefaults()
}

// Credentials returns the key pair.
func (c *Config) Credentials() api.Credentials {
	return api.Credentials{AccessKey: c.Keys.AccessKey, SecretKey: c.Keys.SecretKey}
}

// PollIntervalDuration defaults to 3s.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDuration(c.PollInterval, 3*time.Second)
}

// PollTimeoutDuration returns 0 for "no limit".
func (c *Config) PollTimeoutDuration() time.Duration {
	return parseDuration(c.PollTimeout, 0)
}

// HTTPTimeoutDuration returns 0 for "no limit".
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return parseDuration(c.HTTPTimeout, 0)
}

// WatchDebounceDuration defaults to 500ms.
func (c *Config) WatchDebounceDuration() time.Duration {
	return parseDuration(c.WatchDebounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
