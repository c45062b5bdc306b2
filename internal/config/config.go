package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file is absent or leaves fields empty.
const (
	DefaultConcurrency     = 4
	DefaultRetries         = 3
	DefaultMaxPayloadBytes = 50 << 20
	DefaultTimeout         = 30 * time.Second

	// stateFileName is the version marker sidecar, written next to the
	// installed filter files so it survives with them.
	stateFileName = "filterlaunch.state.json"
)

// Config represents the complete filterlaunch configuration
type Config struct {
	Paths  PathsConfig  `yaml:"paths"`
	GitHub GitHubConfig `yaml:"github"`
	Fetch  FetchConfig  `yaml:"fetch"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	// FilterDir overrides game directory discovery. Empty means "discover
	// the Steam compatibility prefix at startup".
	FilterDir string `yaml:"filter_dir"`
}

// GitHubConfig configures access to the GitHub API
type GitHubConfig struct {
	// APIBaseURL overrides the API endpoint, primarily for tests.
	APIBaseURL string `yaml:"api_base_url"`

	// TokenFile holds a personal access token for higher rate limits.
	// The GITHUB_TOKEN environment variable takes precedence.
	TokenFile string `yaml:"token_file"`
}

// FetchConfig tunes download behavior
type FetchConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	Retries         int           `yaml:"retries"`
	MaxPayloadBytes int64         `yaml:"max_payload_bytes"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file. A missing file is not an
// error; it yields a config of pure defaults.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file; run on defaults.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "filterlaunch", "config.yaml"), nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Paths.FilterDir = os.ExpandEnv(c.Paths.FilterDir)
	c.GitHub.APIBaseURL = os.ExpandEnv(c.GitHub.APIBaseURL)
	c.GitHub.TokenFile = os.ExpandEnv(c.GitHub.TokenFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = DefaultConcurrency
	}
	if c.Fetch.Retries == 0 {
		c.Fetch.Retries = DefaultRetries
	}
	if c.Fetch.MaxPayloadBytes == 0 {
		c.Fetch.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = DefaultTimeout
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.FilterDir != "" && !filepath.IsAbs(c.Paths.FilterDir) {
		return fmt.Errorf("paths.filter_dir must be an absolute path: %s", c.Paths.FilterDir)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be at least 1")
	}
	if c.Fetch.Retries < 1 {
		return fmt.Errorf("fetch.retries must be at least 1")
	}
	if c.Fetch.MaxPayloadBytes < 1 {
		return fmt.Errorf("fetch.max_payload_bytes must be positive")
	}
	return nil
}

// Token returns the GitHub token, preferring the GITHUB_TOKEN environment
// variable over the configured token file. Returns empty when neither is set.
func (c *Config) Token() (string, error) {
	if t := os.Getenv("GITHUB_TOKEN"); t != "" {
		return t, nil
	}
	if c.GitHub.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.GitHub.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// StateFilePath returns the marker sidecar path inside the filter directory.
func StateFilePath(filterDir string) string {
	return filepath.Join(filterDir, stateFileName)
}
