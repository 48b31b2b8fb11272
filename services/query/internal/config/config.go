package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"docvault/internal/util"
	"docvault/pkg/store"
)

// ConfigPath is read when Load gets an empty path.
const ConfigPath = "config.yaml"

// ErrConfiguration is returned for missing or invalid startup values.
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

	EmbeddingProvider string `yaml:"embeddingProvider"`
	EmbeddingBaseURL  string `yaml:"embeddingBaseURL"`
	EmbeddingAPIKey   string `yaml:"embeddingAPIKey"`
	EmbeddingModel    string `yaml:"embeddingModel"`

	GenerationProvider    string   `yaml:"generationProvider"`
	GenerationBaseURL     string   `yaml:"generationBaseURL"`
	GenerationAPIKey      string   `yaml:"generationAPIKey"`
	GenerationModel       string   `yaml:"generationModel"`
	GenerationTemperature *float64 `yaml:"generationTemperature"`

	SimilarityK            int  `yaml:"similarityK"`
	KeywordK               int  `yaml:"keywordK"`
	AllowPartialRetrieval  bool `yaml:"allowPartialRetrieval"`
	UpstreamTimeoutSeconds int  `yaml:"upstreamTimeoutSeconds"`
	RetryMaxAttempts       int  `yaml:"retryMaxAttempts"`

	RedisAddr          string   `yaml:"redisAddr"`
	RedisPassword      string   `yaml:"redisPassword"`
	HistoryTTLSeconds  int      `yaml:"historyTTLSeconds"`
	HistoryLimit       int      `yaml:"historyLimit"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	TrustedProxies     []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml). The file is optional
// so the service can run from environment variables alone.
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
	util.EnvString(&cfg.Port, "PORT")
	util.EnvString(&cfg.LogLevel, "LOG_LEVEL")
	util.EnvString(&cfg.LogsDir, "LOGS_DIR")
	util.EnvString(&cfg.StoreURL, "STORE_URL", "SUPABASE_URL")
	util.EnvString(&cfg.StorePrivateKey, "STORE_PRIVATE_KEY", "SUPABASE_PRIVATE_KEY")
	util.EnvString(&cfg.SimilarityMetric, "SIMILARITY_METRIC")
	util.EnvString(&cfg.EmbeddingProvider, "EMBEDDING_PROVIDER")
	util.EnvString(&cfg.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	util.EnvString(&cfg.EmbeddingAPIKey, "EMBEDDING_API_KEY", "OPENAI_API_KEY")
	util.EnvString(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	util.EnvString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	util.EnvString(&cfg.GenerationBaseURL, "GENERATION_BASE_URL")
	util.EnvString(&cfg.GenerationAPIKey, "GENERATION_API_KEY", "OPENAI_API_KEY")
	util.EnvString(&cfg.GenerationModel, "GENERATION_MODEL")
	util.EnvString(&cfg.RedisAddr, "REDIS_ADDR")
	util.EnvString(&cfg.RedisPassword, "REDIS_PASSWORD")
	util.EnvList(&cfg.TrustedProxies, "TRUSTED_PROXIES")
	for key, dst := range map[string]*int{
		"EMBEDDING_DIM":            &cfg.EmbeddingDim,
		"SIMILARITY_K":             &cfg.SimilarityK,
		"KEYWORD_K":                &cfg.KeywordK,
		"RATE_LIMIT_PER_MINUTE":    &cfg.RateLimitPerMinute,
		"UPSTREAM_TIMEOUT_SECONDS": &cfg.UpstreamTimeoutSeconds,
		"RETRY_MAX_ATTEMPTS":       &cfg.RetryMaxAttempts,
		"HISTORY_TTL_SECONDS":      &cfg.HistoryTTLSeconds,
		"HISTORY_LIMIT":            &cfg.HistoryLimit,
	} {
		if err := util.EnvInt(dst, key); err != nil {
			return err
		}
	}
	return util.EnvBool(&cfg.AllowPartialRetrieval, "ALLOW_PARTIAL_RETRIEVAL")
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 1536
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gpt-4o-mini"
	}
	if cfg.SimilarityK == 0 {
		cfg.SimilarityK = 2
	}
	if cfg.KeywordK == 0 {
		cfg.KeywordK = 2
	}
	if cfg.UpstreamTimeoutSeconds == 0 {
		cfg.UpstreamTimeoutSeconds = 30
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.HistoryTTLSeconds == 0 {
		cfg.HistoryTTLSeconds = 3600
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 10
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.StoreURL) == "" {
		return util.ConfigError("storeURL is required (set in config.yaml or STORE_URL)")
	}
	if strings.TrimSpace(cfg.StorePrivateKey) == "" {
		return util.ConfigError("storePrivateKey is required (set in config.yaml or STORE_PRIVATE_KEY)")
	}
	if _, err := store.ParseMetric(cfg.SimilarityMetric); err != nil {
		return util.ConfigError("%v", err)
	}
	if cfg.EmbeddingDim < 0 || cfg.SimilarityK < 0 || cfg.KeywordK < 0 {
		return util.ConfigError("embeddingDim, similarityK and keywordK must not be negative")
	}
	if cfg.UpstreamTimeoutSeconds < 0 || cfg.RetryMaxAttempts < 0 {
		return util.ConfigError("upstreamTimeoutSeconds and retryMaxAttempts must not be negative")
	}
	if cfg.RateLimitPerMinute < 0 {
		return util.ConfigError("rateLimitPerMinute must not be negative")
	}
	if cfg.RateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return util.ConfigError("rateLimitPerMinute requires redisAddr")
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

// UpstreamTimeout is the per-call deadline for backend requests.
func (c FileConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// HistoryTTL is how long idle sessions are kept.
func (c FileConfig) HistoryTTL() time.Duration {
	return time.Duration(c.HistoryTTLSeconds) * time.Second
}

// PathFromEnv returns CONFIG_PATH or the default path.
func PathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}
