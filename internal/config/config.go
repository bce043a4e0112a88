// Package config handles the refy configuration file and its environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME and XDG_DATA_HOME.
	ConfigDir = "refy"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"

	// EnvPrefix prefixes every environment override, e.g. REFY_TOP_K.
	EnvPrefix = "REFY_"

	CatalogDBFile = "catalog.db"
	ModelFile     = "model.gob"
	IndexFile     = "index.gob"
)

// Defaults.
const (
	DefaultTopK           = 100
	DefaultSuggestions    = 20
	DefaultVocabularySize = 50000
	DefaultScoring        = "linear"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultOllamaModel    = "all-minilm:l6-v2"
	DefaultOllamaDims     = 384
	DefaultOllamaRate     = 20.0
	DefaultOllamaBatch    = 64
)

// ErrInvalidConfig is returned by Validate and by malformed overrides.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidScoring lists the supported scoring policies.
var ValidScoring = []string{"linear", "reciprocal"}

// Config is the refy configuration stored in ~/.config/refy/config.yml.
// Empty paths are derived from DataDir.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	CatalogDB string `yaml:"catalog_db,omitempty"`
	ModelPath string `yaml:"model_path,omitempty"`
	IndexPath string `yaml:"index_path,omitempty"`

	TopK           int     `yaml:"top_k"`
	Suggestions    int     `yaml:"suggestions"`
	SampleSize     int     `yaml:"sample_size"`
	VocabularySize int     `yaml:"vocabulary_size"`
	MinSimilarity  float64 `yaml:"min_similarity"`
	Workers        int     `yaml:"workers"`
	Scoring        string  `yaml:"scoring"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OllamaURL        string  `yaml:"ollama_url"`
	OllamaModel      string  `yaml:"ollama_model"`
	OllamaDimensions int     `yaml:"ollama_dimensions"`
	OllamaRate       float64 `yaml:"ollama_rate"`
	OllamaBatch      int     `yaml:"ollama_batch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:          DefaultDataDir(),
		TopK:             DefaultTopK,
		Suggestions:      DefaultSuggestions,
		VocabularySize:   DefaultVocabularySize,
		Scoring:          DefaultScoring,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		OllamaURL:        DefaultOllamaURL,
		OllamaModel:      DefaultOllamaModel,
		OllamaDimensions: DefaultOllamaDims,
		OllamaRate:       DefaultOllamaRate,
		OllamaBatch:      DefaultOllamaBatch,
	}
}

// Path returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/refy/config.yml.
func Path() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), ConfigDir, ConfigFile)
}

// DefaultDataDir returns the directory holding the catalog, model and index.
// Respects XDG_DATA_HOME, defaults to ~/.local/share/refy.
func DefaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), ConfigDir)
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

// Load reads the config file at path over the defaults.
// A missing file yields the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.CatalogDB = ExpandPath(cfg.CatalogDB)
	cfg.ModelPath = ExpandPath(cfg.ModelPath)
	cfg.IndexPath = ExpandPath(cfg.IndexPath)
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// YAML encodes the configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// setters maps each config key to a parser for its override value.
var setters = map[string]func(c *Config, v string) error{
	"data_dir":   func(c *Config, v string) error { c.DataDir = ExpandPath(v); return nil },
	"catalog_db": func(c *Config, v string) error { c.CatalogDB = ExpandPath(v); return nil },
	"model_path": func(c *Config, v string) error { c.ModelPath = ExpandPath(v); return nil },
	"index_path": func(c *Config, v string) error { c.IndexPath = ExpandPath(v); return nil },

	"top_k":             intSetter(func(c *Config) *int { return &c.TopK }),
	"suggestions":       intSetter(func(c *Config) *int { return &c.Suggestions }),
	"sample_size":       intSetter(func(c *Config) *int { return &c.SampleSize }),
	"vocabulary_size":   intSetter(func(c *Config) *int { return &c.VocabularySize }),
	"workers":           intSetter(func(c *Config) *int { return &c.Workers }),
	"ollama_dimensions": intSetter(func(c *Config) *int { return &c.OllamaDimensions }),
	"ollama_batch":      intSetter(func(c *Config) *int { return &c.OllamaBatch }),
	"min_similarity":    floatSetter(func(c *Config) *float64 { return &c.MinSimilarity }),
	"ollama_rate":       floatSetter(func(c *Config) *float64 { return &c.OllamaRate }),

	"scoring":      func(c *Config, v string) error { c.Scoring = strings.ToLower(v); return nil },
	"log_level":    func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil },
	"log_format":   func(c *Config, v string) error { c.LogFormat = strings.ToLower(v); return nil },
	"ollama_url":   func(c *Config, v string) error { c.OllamaURL = v; return nil },
	"ollama_model": func(c *Config, v string) error { c.OllamaModel = v; return nil },
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

// Set assigns a key from its string form.
func (c *Config) Set(key, value string) error {
	set, ok := setters[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, value, err)
	}
	return nil
}

// ApplyEnv overrides keys from REFY_<KEY> variables found by lookup.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for key := range setters {
		v, ok := lookup(EnvPrefix + strings.ToUpper(key))
		if !ok || v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("from %s%s: %w", EnvPrefix, strings.ToUpper(key), err)
		}
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.TopK <= 0 {
		problems = append(problems, fmt.Sprintf("top_k must be positive, got %d", c.TopK))
	}
	if c.Suggestions < 0 {
		problems = append(problems, fmt.Sprintf("suggestions must not be negative, got %d", c.Suggestions))
	}
	if c.SampleSize < 0 {
		problems = append(problems, fmt.Sprintf("sample_size must not be negative, got %d", c.SampleSize))
	}
	if c.VocabularySize < 0 {
		problems = append(problems, fmt.Sprintf("vocabulary_size must not be negative, got %d", c.VocabularySize))
	}
	if c.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers must not be negative, got %d", c.Workers))
	}
	if c.OllamaDimensions <= 0 {
		problems = append(problems, fmt.Sprintf("ollama_dimensions must be positive, got %d", c.OllamaDimensions))
	}
	if c.OllamaBatch <= 0 {
		problems = append(problems, fmt.Sprintf("ollama_batch must be positive, got %d", c.OllamaBatch))
	}
	if c.MinSimilarity < -1 || c.MinSimilarity >= 1 {
		problems = append(problems, fmt.Sprintf("min_similarity must be in [-1, 1), got %g", c.MinSimilarity))
	}
	if !validScoring(c.Scoring) {
		problems = append(problems, fmt.Sprintf("invalid scoring: %s (valid: %v)", c.Scoring, ValidScoring))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func validScoring(s string) bool {
	if s == "" {
		return true
	}
	for _, valid := range ValidScoring {
		if s == valid {
			return true
		}
	}
	return false
}

// CatalogDBPath returns the catalog database path.
func (c *Config) CatalogDBPath() string {
	return c.resolve(c.CatalogDB, CatalogDBFile)
}

// ModelFilePath returns the fitted model path.
func (c *Config) ModelFilePath() string {
	return c.resolve(c.ModelPath, ModelFile)
}

// IndexFilePath returns the similarity index path.
func (c *Config) IndexFilePath() string {
	return c.resolve(c.IndexPath, IndexFile)
}

func (c *Config) resolve(path, file string) string {
	if path != "" {
		return path
	}
	return filepath.Join(c.DataDir, file)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
