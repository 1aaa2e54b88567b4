package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Store     StoreConfig
	Bulk      BulkConfig
	Approvals ApprovalsConfig
	History   HistoryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig describes how to reach the remote object store.
type StoreConfig struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	Timeout     time.Duration
	PageSize    int
}

// BulkConfig tunes the batch mutation executor.
type BulkConfig struct {
	MaxBatchSize int
	ErrorCap     int
}

// ApprovalsConfig governs when mutations are deferred for review.
type ApprovalsConfig struct {
	Enabled         bool
	RecordThreshold int
	SensitiveFields []string
}

// HistoryConfig bounds audit retention and summary caching.
type HistoryConfig struct {
	Retention       int
	GroupLimit      int
	SummaryCacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Store = StoreConfig{
		BaseURL:     v.GetString("STORE_BASE_URL"),
		APIVersion:  v.GetString("STORE_API_VERSION"),
		AccessToken: v.GetString("STORE_ACCESS_TOKEN"),
		Timeout:     parseDuration(v.GetString("STORE_TIMEOUT"), 30*time.Second),
		PageSize:    v.GetInt("STORE_PAGE_SIZE"),
	}

	maxBatch := v.GetInt("BULK_MAX_BATCH_SIZE")
	if maxBatch <= 0 || maxBatch > 200 {
		maxBatch = 200
	}
	cfg.Bulk = BulkConfig{
		MaxBatchSize: maxBatch,
		ErrorCap:     v.GetInt("BULK_ERROR_CAP"),
	}

	cfg.Approvals = ApprovalsConfig{
		Enabled:         v.GetBool("ENABLE_APPROVALS"),
		RecordThreshold: v.GetInt("APPROVAL_RECORD_THRESHOLD"),
		SensitiveFields: splitAndTrim(v.GetString("APPROVAL_SENSITIVE_FIELDS")),
	}

	cfg.History = HistoryConfig{
		Retention:       v.GetInt("HISTORY_RETENTION"),
		GroupLimit:      v.GetInt("HISTORY_GROUP_LIMIT"),
		SummaryCacheTTL: parseDuration(v.GetString("HISTORY_SUMMARY_CACHE_TTL"), 2*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bulkops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_BASE_URL", "http://localhost:9090")
	v.SetDefault("STORE_API_VERSION", "v58.0")
	v.SetDefault("STORE_ACCESS_TOKEN", "")
	v.SetDefault("STORE_TIMEOUT", "30s")
	v.SetDefault("STORE_PAGE_SIZE", 2000)

	v.SetDefault("BULK_MAX_BATCH_SIZE", 200)
	v.SetDefault("BULK_ERROR_CAP", 25)

	v.SetDefault("ENABLE_APPROVALS", true)
	v.SetDefault("APPROVAL_RECORD_THRESHOLD", 1000)
	v.SetDefault("APPROVAL_SENSITIVE_FIELDS", "OwnerId,Amount,StageName")

	v.SetDefault("HISTORY_RETENTION", 10000)
	v.SetDefault("HISTORY_GROUP_LIMIT", 50)
	v.SetDefault("HISTORY_SUMMARY_CACHE_TTL", "2m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
