package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
paths:
  filter_dir: "/games/poe2/filters"

github:
  api_base_url: "https://github.example.com"
  token_file: "/secrets/github-token"

fetch:
  concurrency: 2
  retries: 5
  max_payload_bytes: 1048576
  timeout: 10s
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.FilterDir != "/games/poe2/filters" {
		t.Errorf("filter_dir = %q", cfg.Paths.FilterDir)
	}
	if cfg.GitHub.APIBaseURL != "https://github.example.com" {
		t.Errorf("api_base_url = %q", cfg.GitHub.APIBaseURL)
	}
	if cfg.Fetch.Concurrency != 2 {
		t.Errorf("concurrency = %d, want 2", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.Retries != 5 {
		t.Errorf("retries = %d, want 5", cfg.Fetch.Retries)
	}
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", cfg.Fetch.Timeout)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed for missing file: %v", err)
	}

	if cfg.Fetch.Concurrency != DefaultConcurrency {
		t.Errorf("concurrency = %d, want %d", cfg.Fetch.Concurrency, DefaultConcurrency)
	}
	if cfg.Fetch.Retries != DefaultRetries {
		t.Errorf("retries = %d, want %d", cfg.Fetch.Retries, DefaultRetries)
	}
	if cfg.Fetch.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Errorf("max_payload_bytes = %d", cfg.Fetch.MaxPayloadBytes)
	}
	if cfg.Paths.FilterDir != "" {
		t.Errorf("filter_dir = %q, want empty (discovery)", cfg.Paths.FilterDir)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("FILTER_TEST_DIR", "/expanded/path")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("paths:\n  filter_dir: \"$FILTER_TEST_DIR\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.FilterDir != "/expanded/path" {
		t.Errorf("filter_dir = %q, want /expanded/path", cfg.Paths.FilterDir)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Paths: PathsConfig{FilterDir: "/absolute"},
			Fetch: FetchConfig{Concurrency: 4, Retries: 3, MaxPayloadBytes: 1024},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty filter dir is valid (discovery)", mutate: func(c *Config) { c.Paths.FilterDir = "" }, wantErr: false},
		{name: "relative filter dir", mutate: func(c *Config) { c.Paths.FilterDir = "relative/path" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Fetch.Concurrency = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Fetch.Retries = -1 }, wantErr: true},
		{name: "zero payload ceiling", mutate: func(c *Config) { c.Fetch.MaxPayloadBytes = 0 }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestToken(t *testing.T) {
	t.Run("env wins over token file", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "env-token")
		cfg := Config{GitHub: GitHubConfig{TokenFile: "/does/not/exist"}}
		tok, err := cfg.Token()
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok != "env-token" {
			t.Errorf("token = %q, want env-token", tok)
		}
	})

	t.Run("token file is trimmed", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		path := filepath.Join(t.TempDir(), "token")
		if err := os.WriteFile(path, []byte("  file-token\n"), 0600); err != nil {
			t.Fatal(err)
		}
		cfg := Config{GitHub: GitHubConfig{TokenFile: path}}
		tok, err := cfg.Token()
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok != "file-token" {
			t.Errorf("token = %q, want file-token", tok)
		}
	})

	t.Run("no token configured", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		cfg := Config{}
		tok, err := cfg.Token()
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok != "" {
			t.Errorf("token = %q, want empty", tok)
		}
	})
}

func TestStateFilePath(t *testing.T) {
	got := StateFilePath("/games/filters")
	if got != "/games/filters/filterlaunch.state.json" {
		t.Errorf("StateFilePath = %q", got)
	}
}
