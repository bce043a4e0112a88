package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := Path(), "/custom/config/refy/config.yml"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	if got, want := Path(), filepath.Join(home, ".config", "refy", "config.yml"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got, want := DefaultDataDir(), "/data/refy"; got != want {
		t.Errorf("DefaultDataDir() = %q, want %q", got, want)
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopK != DefaultTopK || cfg.Suggestions != DefaultSuggestions || cfg.Scoring != DefaultScoring {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if got, want := cfg.IndexFilePath(), "/data/refy/index.gob"; got != want {
		t.Errorf("IndexFilePath() = %q, want %q", got, want)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `data_dir: /var/refy
model_path: /models/tfidf.gob
top_k: 50
scoring: reciprocal
min_similarity: 0.1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TopK != 50 || cfg.Scoring != "reciprocal" || cfg.MinSimilarity != 0.1 {
		t.Errorf("Load() = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.Suggestions != DefaultSuggestions {
		t.Errorf("Suggestions = %d, want %d", cfg.Suggestions, DefaultSuggestions)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"model", cfg.ModelFilePath(), "/models/tfidf.gob"},
		{"index", cfg.IndexFilePath(), "/var/refy/index.gob"},
		{"catalog", cfg.CatalogDBPath(), "/var/refy/catalog.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("top_k: [oops\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"REFY_TOP_K":          "7",
		"REFY_SCORING":        "Reciprocal",
		"REFY_MIN_SIMILARITY": "0.25",
		"REFY_OLLAMA_MODEL":   "mxbai-embed-large",
		"REFY_SUGGESTIONS":    "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.TopK != 7 || cfg.Scoring != "reciprocal" || cfg.MinSimilarity != 0.25 || cfg.OllamaModel != "mxbai-embed-large" {
		t.Errorf("ApplyEnv() = %+v", cfg)
	}
	if cfg.Suggestions != DefaultSuggestions {
		t.Errorf("empty override changed Suggestions to %d", cfg.Suggestions)
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "REFY_WORKERS" {
			return "many", true
		}
		return "", false
	}
	err := Default().ApplyEnv(lookup)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("ApplyEnv() error = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "REFY_WORKERS") {
		t.Errorf("error %q should name the variable", err)
	}
}

func TestSet_UnknownKey(t *testing.T) {
	if err := Default().Set("colour", "blue"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Set() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero top_k", func(c *Config) { c.TopK = 0 }, true},
		{"negative suggestions", func(c *Config) { c.Suggestions = -1 }, true},
		{"negative sample", func(c *Config) { c.SampleSize = -5 }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"floor too high", func(c *Config) { c.MinSimilarity = 1 }, true},
		{"unknown scoring", func(c *Config) { c.Scoring = "borda" }, true},
		{"empty scoring", func(c *Config) { c.Scoring = "" }, false},
		{"zero suggestions", func(c *Config) { c.Suggestions = 0 }, false},
		{"zero ollama batch", func(c *Config) { c.OllamaBatch = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := Default()
	cfg.TopK = 42
	cfg.DataDir = "/srv/refy"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TopK != 42 || got.DataDir != "/srv/refy" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	if got := ExpandPath("~/refy"); got != filepath.Join(home, "refy") {
		t.Errorf("ExpandPath(~/refy) = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
}
