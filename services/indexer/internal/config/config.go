package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"docvault/internal/util"
	"docvault/pkg/store"
)

const ConfigPath = "config.yaml"

var ErrConfiguration = util.ErrConfiguration

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogsDir  string `yaml:"logsDir"`

	StoreURL         string `yaml:"storeURL"`
	StorePrivateKey  string `yaml:"storePrivateKey"`
	EmbeddingDim     int    `yaml:"embeddingDim"`
	SimilarityMetric string `yaml:"similarityMetric"`

	RedisAddr              string `yaml:"redisAddr"`
	RedisPassword          string `yaml:"redisPassword"`
	QueueStream            string `yaml:"queueStream"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`
	JobTTLSeconds          int    `yaml:"jobTTLSeconds"`

	ChunkSize            int `yaml:"chunkSize"`
	ChunkOverlap         int `yaml:"chunkOverlap"`
	EmbeddingBatchSize   int `yaml:"embeddingBatchSize"`
	EmbeddingConcurrency int `yaml:"embeddingConcurrency"`

	EmbeddingProvider      string `yaml:"embeddingProvider"`
	EmbeddingBaseURL       string `yaml:"embeddingBaseURL"`
	EmbeddingAPIKey        string `yaml:"embeddingAPIKey"`
	EmbeddingModel         string `yaml:"embeddingModel"`
	UpstreamTimeoutSeconds int    `yaml:"upstreamTimeoutSeconds"`
	RetryMaxAttempts       int    `yaml:"retryMaxAttempts"`
}

// Load reads config from path (defaults to config.yaml). The file is optional.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := util.LoadDotEnv(); err != nil {
		return cfg, err
	}
	if path == "" {
		path = ConfigPath
	}
	if err := util.ReadYAML(path, &cfg, true); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	util.EnvString(&cfg.Port, "INDEXER_PORT", "PORT")
	util.EnvString(&cfg.LogLevel, "LOG_LEVEL")
	util.EnvString(&cfg.LogsDir, "LOGS_DIR")
	util.EnvString(&cfg.StoreURL, "STORE_URL", "SUPABASE_URL")
	util.EnvString(&cfg.StorePrivateKey, "STORE_PRIVATE_KEY", "SUPABASE_PRIVATE_KEY")
	util.EnvString(&cfg.SimilarityMetric, "SIMILARITY_METRIC")
	util.EnvString(&cfg.RedisAddr, "REDIS_ADDR")
	util.EnvString(&cfg.RedisPassword, "REDIS_PASSWORD")
	util.EnvString(&cfg.QueueStream, "QUEUE_STREAM")
	util.EnvString(&cfg.EmbeddingProvider, "EMBEDDING_PROVIDER")
	util.EnvString(&cfg.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	util.EnvString(&cfg.EmbeddingAPIKey, "EMBEDDING_API_KEY", "OPENAI_API_KEY")
	util.EnvString(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	for key, dst := range map[string]*int{
		"EMBEDDING_DIM":         &cfg.EmbeddingDim,
		"QUEUE_CONCURRENCY":     &cfg.QueueConcurrency,
		"QUEUE_MAX_RETRIES":     &cfg.QueueMaxRetries,
		"CHUNK_SIZE":            &cfg.ChunkSize,
		"CHUNK_OVERLAP":         &cfg.ChunkOverlap,
		"EMBEDDING_CONCURRENCY": &cfg.EmbeddingConcurrency,
	} {
		if err := util.EnvInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8002"
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 1536
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.QueueConcurrency == 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.UpstreamTimeoutSeconds == 0 {
		cfg.UpstreamTimeoutSeconds = 30
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.JobTTLSeconds == 0 {
		cfg.JobTTLSeconds = 86400
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.StoreURL) == "" {
		return util.ConfigError("storeURL is required (set in config.yaml or STORE_URL)")
	}
	if strings.TrimSpace(cfg.StorePrivateKey) == "" {
		return util.ConfigError("storePrivateKey is required (set in config.yaml or STORE_PRIVATE_KEY)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return util.ConfigError("redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if _, err := store.ParseMetric(cfg.SimilarityMetric); err != nil {
		return util.ConfigError("%v", err)
	}
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 || cfg.QueueRetryDelaySeconds < 0 {
		return util.ConfigError("queue settings must not be negative")
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return util.ConfigError("chunkOverlap must be smaller than chunkSize")
	}
	return nil
}

// DatabaseDSN combines storeURL and storePrivateKey into a Postgres DSN.
func (c FileConfig) DatabaseDSN() (string, error) {
	dsn, err := store.DSNWithPassword(c.StoreURL, c.StorePrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return dsn, nil
}

func (c FileConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

func (c FileConfig) JobTTL() time.Duration {
	return time.Duration(c.JobTTLSeconds) * time.Second
}

func (c FileConfig) RetryDelay() time.Duration {
	return time.Duration(c.QueueRetryDelaySeconds) * time.Second
}

// PathFromEnv returns CONFIG_PATH or the default path.
func PathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}
