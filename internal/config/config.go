package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	defaultExtractionBaseURL = "https://api.usetrellis.co/v1"
	defaultAPIKeyEnv         = "TRELLIS_API_KEY"
	defaultHeaderMarker      = "X-FileName:"
)

type Config struct {
	Port             int              `json:"port"`
	JWTSecret        string           `json:"jwt_secret"`
	CORSAllowlist    []string         `json:"cors_allowlist"`
	RateLimitSeconds int              `json:"rate_limit_seconds"`
	MaxUploadBytes   int64            `json:"max_upload_bytes"`
	LogConfig        logger.LogConfig `json:"log_config"`
	Database         DatabaseConfig   `json:"database"`
	Source           SourceConfig     `json:"source"`
	Extraction       ExtractionConfig `json:"extraction"`
	Embedding        EmbeddingConfig  `json:"embedding"`
	Search           SearchConfig     `json:"search"`
	Schedule         ScheduleConfig   `json:"schedule"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// SourceConfig selects where email documents are read from. Data is handed
// to the source factory untouched.
type SourceConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ExtractionConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	APIKeyEnv         string `json:"api_key_env"`
	ProjectName       string `json:"project_name"`
	BatchSize         int    `json:"batch_size"`
	FileType          string `json:"file_type"`
	PollIntervalMs    int    `json:"poll_interval_ms"`
	RetryIntervalMs   int    `json:"retry_interval_ms"`
	MaxRetries        int    `json:"max_retries"`
	PollTimeoutSec    int    `json:"poll_timeout_sec"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	PendingTTLSec     int    `json:"pending_ttl_sec"`
	PendingSize       int    `json:"pending_size"`
}

func (c ExtractionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c ExtractionConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

func (c ExtractionConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

func (c ExtractionConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c ExtractionConfig) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLSec) * time.Second
}

type EmbedProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type EmbeddingConfig struct {
	Providers    []EmbedProviderConfig `json:"providers"`
	Dimension    int                   `json:"dimension"`
	TrimHeader   bool                  `json:"trim_header"`
	HeaderMarker string                `json:"header_marker"`
	TimeoutSec   int                   `json:"timeout_sec"`
	CacheSize    int                   `json:"cache_size"`
	CacheTTLSec  int                   `json:"cache_ttl_sec"`
	DBCache      bool                  `json:"db_cache"`
}

type SearchConfig struct {
	Metric       string `json:"metric"`
	DefaultLimit int    `json:"default_limit"`
	MaxLimit     int    `json:"max_limit"`
}

type ScheduleConfig struct {
	EmbeddingSyncSpec  string `json:"embedding_sync_spec"`
	EmbeddingSyncBatch int    `json:"embedding_sync_batch"`
	CacheCleanupSpec   string `json:"cache_cleanup_spec"`
	CacheMaxAgeDays    int    `json:"cache_max_age_days"`
}

// Load reads a JSON or YAML config file. A .env file in the working
// directory (or next to the config) is loaded first so that *_env keys can
// resolve secrets.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	data, err := normalize(path, raw)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env", filepath.Join(filepath.Dir(configPath), ".env")}
	seen := make(map[string]struct{}, len(candidates))
	for _, file := range candidates {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if err := godotenv.Load(abs); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

// normalize converts YAML input to JSON so a single set of json tags drives
// decoding.
func normalize(path string, raw []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return raw, nil
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert yaml config: %w", err)
	}
	return data, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = "local"
	}

	ex := &cfg.Extraction
	if ex.BaseURL == "" {
		ex.BaseURL = defaultExtractionBaseURL
	}
	if ex.APIKeyEnv == "" {
		ex.APIKeyEnv = defaultAPIKeyEnv
	}
	if ex.APIKey == "" {
		ex.APIKey = strings.TrimSpace(os.Getenv(ex.APIKeyEnv))
	}
	if ex.ProjectName == "" {
		return fmt.Errorf("extraction.project_name is required")
	}
	if ex.BatchSize <= 0 {
		ex.BatchSize = 2
	}
	if ex.FileType == "" {
		ex.FileType = "txt"
	}
	if ex.PollIntervalMs <= 0 {
		ex.PollIntervalMs = 1000
	}
	if ex.RetryIntervalMs <= 0 {
		ex.RetryIntervalMs = 2000
	}
	if ex.MaxRetries <= 0 {
		ex.MaxRetries = 3
	}
	if ex.PollTimeoutSec < 0 {
		ex.PollTimeoutSec = 0
	} else if ex.PollTimeoutSec == 0 {
		ex.PollTimeoutSec = 600
	}
	if ex.RequestTimeoutSec <= 0 {
		ex.RequestTimeoutSec = 120
	}
	if ex.PendingTTLSec <= 0 {
		ex.PendingTTLSec = 24 * 3600
	}
	if ex.PendingSize <= 0 {
		ex.PendingSize = 1024
	}

	em := &cfg.Embedding
	if em.Dimension <= 0 {
		em.Dimension = 256
	}
	if em.HeaderMarker == "" {
		em.HeaderMarker = defaultHeaderMarker
	}
	if em.TimeoutSec <= 0 {
		em.TimeoutSec = 30
	}
	for i, p := range em.Providers {
		if strings.TrimSpace(p.Provider) == "" {
			return fmt.Errorf("embedding.providers[%d].provider is required", i)
		}
		if p.Name == "" {
			em.Providers[i].Name = p.Provider
		}
	}

	switch cfg.Search.Metric {
	case "":
		cfg.Search.Metric = "cosine"
	case "cosine", "l2", "inner_product":
	default:
		return fmt.Errorf("search.metric must be cosine, l2 or inner_product")
	}
	if cfg.Search.DefaultLimit <= 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit <= 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Schedule.EmbeddingSyncBatch <= 0 {
		cfg.Schedule.EmbeddingSyncBatch = 50
	}
	if cfg.Schedule.CacheMaxAgeDays <= 0 {
		cfg.Schedule.CacheMaxAgeDays = 30
	}
	return nil
}
