// Package config loads and validates askfs configuration.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.config/askfs/config.yaml), project config (.askfs.yaml), ASKFS_*
// environment variables. The resulting Config record is passed explicitly
// into the engine constructors; core logic never reads the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete askfs configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Assemble  AssembleConfig  `yaml:"assemble" json:"assemble"`
	Answer    AnswerConfig    `yaml:"answer" json:"answer"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	// Include restricts scanning to these path prefixes when non-empty.
	Include []string `yaml:"include" json:"include"`
	// Exclude skips these path prefixes and directory names.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// Extensions is the file extension allowlist (with leading dot).
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// IndexConfig configures chunking and the incremental build.
type IndexConfig struct {
	// MaxChars is the character budget per chunk.
	MaxChars int `yaml:"max_chars" json:"max_chars"`
	// Overlap is the chunk overlap in characters, converted to lines
	// with the ~80 chars/line heuristic.
	Overlap int `yaml:"overlap" json:"overlap"`
	// Workers bounds the parallel per-file hash/chunk/tokenize pool.
	Workers int `yaml:"workers" json:"workers"`
	// MaxFileSizeKB skips files larger than this during scanning.
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
}

// RetrievalConfig configures the ranking layer.
type RetrievalConfig struct {
	// Algorithm selects the ranking function: "bm25" (default) or "jaccard".
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	// K is the default number of candidates to return.
	K int `yaml:"k" json:"k"`
	// K1 is the BM25 term-frequency saturation constant.
	K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	// B is the BM25 document-length normalization constant.
	B float64 `yaml:"bm25_b" json:"bm25_b"`
}

// AssembleConfig configures context window assembly.
type AssembleConfig struct {
	// Strategy selects the coverage strategy: "diversified", "deep", "wide".
	Strategy string `yaml:"strategy" json:"strategy"`
	// MinFiles is the minimum distinct files the diversified strategy targets.
	MinFiles int `yaml:"min_files" json:"min_files"`
	// Diversify disables the one-window-per-file rule when false.
	Diversify bool `yaml:"diversify" json:"diversify"`
	// FileLimit is the top-N file count for deep and wide strategies.
	FileLimit int `yaml:"file_limit" json:"file_limit"`
	// DeepWindowLines is the expansion window height for deep windows.
	DeepWindowLines int `yaml:"deep_window_lines" json:"deep_window_lines"`
	// DeepCharBudget caps total window characters per file for deep.
	DeepCharBudget int `yaml:"deep_char_budget" json:"deep_char_budget"`
	// DeepOverlapFraction drops a second window overlapping a chosen one
	// in the same file beyond this fraction.
	DeepOverlapFraction float64 `yaml:"deep_overlap_fraction" json:"deep_overlap_fraction"`
	// WideWindowLines is the fixed window height for wide.
	WideWindowLines int `yaml:"wide_window_lines" json:"wide_window_lines"`
	// DocFraction caps the fraction of documentation windows in the result.
	DocFraction float64 `yaml:"doc_fraction" json:"doc_fraction"`
	// MinHits drops windows with fewer literal query-term hits, unless
	// dropping would empty a non-empty result.
	MinHits int `yaml:"min_hits" json:"min_hits"`
}

// AnswerConfig configures the external answer-synthesis collaborator.
type AnswerConfig struct {
	// Provider selects the answerer: "baseline" (no LLM) or "ollama".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the model identifier for the ollama provider.
	Model string `yaml:"model" json:"model"`
	// Endpoint is the local model API base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// TimeoutSeconds bounds a single answer call.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// LoggingConfig configures the log level for file logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Defaults for the core engine tunables.
const (
	DefaultK        = 6
	DefaultMaxChars = 1200
	DefaultOverlap  = 150
	DefaultBM25K1   = 1.2
	DefaultBM25B    = 0.75
)

// defaultExtensions is the supported code + text extension allowlist.
var defaultExtensions = []string{
	".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".cs", ".go",
	".rs", ".cpp", ".c", ".h", ".hpp", ".rb", ".php", ".kt", ".swift",
	".md", ".rst", ".txt", ".ini", ".json", ".yaml", ".yml", ".toml",
}

// defaultExcludeDirs are directory names skipped anywhere in the tree.
var defaultExcludeDirs = []string{
	"node_modules", "vendor", "dist", "build", "target", "out",
	"__pycache__", ".venv", "venv",
}

// New creates a Config with built-in defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include:    []string{},
			Exclude:    defaultExcludeDirs,
			Extensions: defaultExtensions,
		},
		Index: IndexConfig{
			MaxChars:      DefaultMaxChars,
			Overlap:       DefaultOverlap,
			Workers:       runtime.NumCPU(),
			MaxFileSizeKB: 2048,
		},
		Retrieval: RetrievalConfig{
			Algorithm: "bm25",
			K:         DefaultK,
			K1:        DefaultBM25K1,
			B:         DefaultBM25B,
		},
		Assemble: AssembleConfig{
			Strategy:            "diversified",
			MinFiles:            2,
			Diversify:           true,
			FileLimit:           3,
			DeepWindowLines:     60,
			DeepCharBudget:      4000,
			DeepOverlapFraction: 0.5,
			WideWindowLines:     12,
			DocFraction:         0.5,
			MinHits:             1,
		},
		Answer: AnswerConfig{
			Provider:       "baseline",
			Model:          "qwen2.5:7b-instruct",
			Endpoint:       "http://localhost:11434",
			TimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigPath returns the path to the user/global configuration file.
// Follows the XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/askfs/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/askfs/config.yaml (default)
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "askfs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "askfs", "config.yaml")
	}
	return filepath.Join(home, ".config", "askfs", "config.yaml")
}

// Load builds the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := New()

	// Step 1: user/global config (if present)
	if userPath := UserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	// Step 2: project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: environment overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .askfs.yaml or .askfs.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".askfs.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".askfs.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = other.Paths.Extensions
	}

	if other.Index.MaxChars != 0 {
		c.Index.MaxChars = other.Index.MaxChars
	}
	if other.Index.Overlap != 0 {
		c.Index.Overlap = other.Index.Overlap
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.MaxFileSizeKB != 0 {
		c.Index.MaxFileSizeKB = other.Index.MaxFileSizeKB
	}

	if other.Retrieval.Algorithm != "" {
		c.Retrieval.Algorithm = other.Retrieval.Algorithm
	}
	if other.Retrieval.K != 0 {
		c.Retrieval.K = other.Retrieval.K
	}
	if other.Retrieval.K1 != 0 {
		c.Retrieval.K1 = other.Retrieval.K1
	}
	if other.Retrieval.B != 0 {
		c.Retrieval.B = other.Retrieval.B
	}

	if other.Assemble.Strategy != "" {
		c.Assemble.Strategy = other.Assemble.Strategy
	}
	if other.Assemble.MinFiles != 0 {
		c.Assemble.MinFiles = other.Assemble.MinFiles
	}
	if other.Assemble.FileLimit != 0 {
		c.Assemble.FileLimit = other.Assemble.FileLimit
	}
	if other.Assemble.DeepWindowLines != 0 {
		c.Assemble.DeepWindowLines = other.Assemble.DeepWindowLines
	}
	if other.Assemble.DeepCharBudget != 0 {
		c.Assemble.DeepCharBudget = other.Assemble.DeepCharBudget
	}
	if other.Assemble.DeepOverlapFraction != 0 {
		c.Assemble.DeepOverlapFraction = other.Assemble.DeepOverlapFraction
	}
	if other.Assemble.WideWindowLines != 0 {
		c.Assemble.WideWindowLines = other.Assemble.WideWindowLines
	}
	if other.Assemble.DocFraction != 0 {
		c.Assemble.DocFraction = other.Assemble.DocFraction
	}
	if other.Assemble.MinHits != 0 {
		c.Assemble.MinHits = other.Assemble.MinHits
	}

	if other.Answer.Provider != "" {
		c.Answer.Provider = other.Answer.Provider
	}
	if other.Answer.Model != "" {
		c.Answer.Model = other.Answer.Model
	}
	if other.Answer.Endpoint != "" {
		c.Answer.Endpoint = other.Answer.Endpoint
	}
	if other.Answer.TimeoutSeconds != 0 {
		c.Answer.TimeoutSeconds = other.Answer.TimeoutSeconds
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies ASKFS_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASKFS_RETRIEVER"); v != "" {
		c.Retrieval.Algorithm = v
	}
	if v := os.Getenv("ASKFS_DEFAULT_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.K = k
		}
	}
	if v := os.Getenv("ASKFS_BM25_K1"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			c.Retrieval.K1 = f
		}
	}
	if v := os.Getenv("ASKFS_BM25_B"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Retrieval.B = f
		}
	}
	if v := os.Getenv("ASKFS_STRATEGY"); v != "" {
		c.Assemble.Strategy = v
	}
	if v := os.Getenv("ASKFS_MODEL"); v != "" {
		c.Answer.Model = v
	}
	if v := os.Getenv("ASKFS_API_BASE"); v != "" {
		c.Answer.Endpoint = v
	}
	if v := os.Getenv("ASKFS_ANSWERER"); v != "" {
		c.Answer.Provider = v
	}
	if v := os.Getenv("ASKFS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration for consistency.
func (c *Config) Validate() error {
	validAlgorithms := map[string]bool{"bm25": true, "jaccard": true}
	if !validAlgorithms[strings.ToLower(c.Retrieval.Algorithm)] {
		return fmt.Errorf("retrieval.algorithm must be 'bm25' or 'jaccard', got %s", c.Retrieval.Algorithm)
	}

	validStrategies := map[string]bool{"diversified": true, "deep": true, "wide": true}
	if !validStrategies[strings.ToLower(c.Assemble.Strategy)] {
		return fmt.Errorf("assemble.strategy must be 'diversified', 'deep', or 'wide', got %s", c.Assemble.Strategy)
	}

	validProviders := map[string]bool{"baseline": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Answer.Provider)] {
		return fmt.Errorf("answer.provider must be 'baseline' or 'ollama', got %s", c.Answer.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.Index.MaxChars <= 0 {
		return fmt.Errorf("index.max_chars must be positive, got %d", c.Index.MaxChars)
	}
	if c.Index.Overlap < 0 {
		return fmt.Errorf("index.overlap must be non-negative, got %d", c.Index.Overlap)
	}
	if c.Index.Overlap >= c.Index.MaxChars {
		return fmt.Errorf("index.overlap (%d) must be smaller than index.max_chars (%d)", c.Index.Overlap, c.Index.MaxChars)
	}
	if c.Retrieval.K <= 0 {
		return fmt.Errorf("retrieval.k must be positive, got %d", c.Retrieval.K)
	}
	if c.Retrieval.K1 <= 0 {
		return fmt.Errorf("retrieval.bm25_k1 must be positive, got %f", c.Retrieval.K1)
	}
	if c.Retrieval.B < 0 || c.Retrieval.B > 1 {
		return fmt.Errorf("retrieval.bm25_b must be between 0 and 1, got %f", c.Retrieval.B)
	}
	if c.Assemble.DeepOverlapFraction < 0 || c.Assemble.DeepOverlapFraction > 1 {
		return fmt.Errorf("assemble.deep_overlap_fraction must be between 0 and 1, got %f", c.Assemble.DeepOverlapFraction)
	}
	if c.Assemble.DocFraction < 0 || c.Assemble.DocFraction > 1 {
		return fmt.Errorf("assemble.doc_fraction must be between 0 and 1, got %f", c.Assemble.DocFraction)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot walks up from startDir looking for a project marker
// (.askfs directory, .askfs.yaml, or .git). Returns startDir's absolute
// path if no marker is found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory: %w", err)
	}

	cur := dir
	for {
		for _, marker := range []string{".askfs", ".askfs.yaml", ".askfs.yml", ".git"} {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur, nil
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir, nil
		}
		cur = parent
	}
}

// fileExists returns true if path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
