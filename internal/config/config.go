package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the organizer configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Planner    PlannerConfig    `yaml:"planner"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Lists      ListsConfig      `yaml:"lists"`
	Auth       AuthConfig       `yaml:"auth"`
	Index      IndexConfig      `yaml:"index"`
	Storage    StorageConfig    `yaml:"storage"`
	Budget     BudgetConfig     `yaml:"budget"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File  string `yaml:"file"`  // chat mode writes logs here instead of stderr
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix     string `yaml:"key_prefix"`
	EmbeddingTTLH int    `yaml:"embedding_cache_ttl_hours"` // 0 disables the cache
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// GenerationConfig holds chat completion settings.
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`        // default model
	StrongModel string  `yaml:"strong_model"` // used when the text mentions dates
	Temperature float32 `yaml:"temperature"`
}

// PlannerConfig holds retrieval planner settings.
type PlannerConfig struct {
	MaxDistance float64 `yaml:"max_distance"` // cosine distance above which semantic hits are dropped
	TopK        int     `yaml:"top_k"`
	MaxRecords  int     `yaml:"max_records"` // records listed in the synthesis prompt
	PageSize    int     `yaml:"page_size"`   // FT.SEARCH page size for structured retrieval
	Timezone    string  `yaml:"timezone"`
	DefaultList string  `yaml:"default_list"`
}

// BudgetConfig caps embedding tokens per day and month. Zero limits are unlimited.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // warn or reject
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// SchedulerConfig holds reminder scheduler settings.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ListsConfig holds the user/list store settings.
type ListsConfig struct {
	Path string `yaml:"path"`
}

// Location resolves the planner timezone. Unknown zones fall back to UTC.
func (p PlannerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config, expanding ${VAR} references, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60 // synthesis answers take a while
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "organizer:"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4.1-mini"
	}
	if c.Generation.StrongModel == "" {
		c.Generation.StrongModel = c.Generation.Model
	}
	if c.Planner.MaxDistance <= 0 {
		c.Planner.MaxDistance = 0.5
	}
	if c.Planner.TopK <= 0 {
		c.Planner.TopK = 10
	}
	if c.Planner.MaxRecords <= 0 {
		c.Planner.MaxRecords = 200
	}
	if c.Planner.PageSize <= 0 {
		c.Planner.PageSize = 200
	}
	if c.Planner.Timezone == "" {
		c.Planner.Timezone = "UTC"
	}
	if c.Planner.DefaultList == "" {
		c.Planner.DefaultList = "notes"
	}
	if c.Lists.Path == "" {
		c.Lists.Path = "organizer.sqlite"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Planner.MaxDistance > 2 {
		return fmt.Errorf("planner.max_distance must be a cosine distance in (0, 2], got %g", c.Planner.MaxDistance)
	}
	if c.Budget.Action != "" && c.Budget.Action != "warn" && c.Budget.Action != "reject" {
		return fmt.Errorf("budget.action must be warn or reject, got %q", c.Budget.Action)
	}
	if _, err := time.LoadLocation(c.Planner.Timezone); err != nil {
		return fmt.Errorf("planner.timezone: %w", err)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
