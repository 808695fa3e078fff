package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	AdminPort int    `yaml:"admin_port"` // metrics + health
	UploadDir string `yaml:"upload_dir"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"` // per-job processing fence
}

type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	VectorSize uint64 `yaml:"vector_size"`
}

type LLMConfig struct {
	Provider          string  `yaml:"provider"` // gemini | openai
	GeminiKey         string  `yaml:"gemini_key"`
	OpenAIKey         string  `yaml:"openai_key"`
	OpenAIBaseURL     string  `yaml:"openai_base_url"`
	Model             string  `yaml:"model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	ScoringTemp       float32 `yaml:"scoring_temperature"`
	SummaryTemp       float32 `yaml:"summary_temperature"`
	MaxOutputTokens   int     `yaml:"max_output_tokens"`
	PromptTokenBudget int     `yaml:"prompt_token_budget"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type SecurityConfig struct {
	// EncryptionKey enables at-rest encryption of extracted document text
	// when set. Must be 16, 24 or 32 bytes.
	EncryptionKey string `yaml:"encryption_key"`
}

type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	// StaleAfter is how long a job may sit in processing without progress
	// before the requeue worker hands it back to the queue.
	StaleAfter   time.Duration `yaml:"stale_after"`
	TopK         int           `yaml:"top_k"`
	MaxReprompts int           `yaml:"max_reprompts"` // schema-violation re-prompts per stage
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	LLM      LLMConfig      `yaml:"llm"`
	Retry    RetryConfig    `yaml:"retry"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Qdrant.URL == "" {
		return nil, errors.New("qdrant.url is required")
	}
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.GeminiKey == "" {
			return nil, errors.New("llm.gemini_key is required for provider gemini")
		}
	case "openai":
		if cfg.LLM.OpenAIKey == "" {
			return nil, errors.New("llm.openai_key is required for provider openai")
		}
	default:
		return nil, fmt.Errorf("unsupported llm.provider %q", cfg.LLM.Provider)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AdminPort <= 0 {
		cfg.Server.AdminPort = 9090
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "uploads"
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 10 * time.Minute
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "reference_documents"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 768
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-004"
	}
	if cfg.LLM.ScoringTemp <= 0 {
		cfg.LLM.ScoringTemp = 0.2
	}
	if cfg.LLM.SummaryTemp <= 0 {
		cfg.LLM.SummaryTemp = 0.4
	}
	if cfg.LLM.MaxOutputTokens <= 0 {
		cfg.LLM.MaxOutputTokens = 2048
	}
	if cfg.LLM.PromptTokenBudget <= 0 {
		cfg.LLM.PromptTokenBudget = 12000
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = time.Second
	}
	if cfg.Pipeline.JobTimeout <= 0 {
		cfg.Pipeline.JobTimeout = 5 * time.Minute
	}
	if cfg.Pipeline.StaleAfter <= 0 {
		cfg.Pipeline.StaleAfter = 3 * cfg.Pipeline.JobTimeout
	}
	if cfg.Pipeline.TopK <= 0 {
		cfg.Pipeline.TopK = 3
	}
	if cfg.Pipeline.MaxReprompts <= 0 {
		cfg.Pipeline.MaxReprompts = 2
	}
	if cfg.Pipeline.ChunkSize <= 0 {
		cfg.Pipeline.ChunkSize = 1000
	}
	if cfg.Pipeline.ChunkOverlap <= 0 {
		cfg.Pipeline.ChunkOverlap = 200
	}
}
