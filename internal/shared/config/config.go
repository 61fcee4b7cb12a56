package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	IntakeInline   = "inline"
	IntakeQueue    = "queue"
	IntakeDeferred = "deferred"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	PanelAPIToken   string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucket     string
	MinIOUseSSL     bool

	DatabaseURL string

	ExtractionProvider string
	ExtractionModel    string
	OpenAIAPIKey       string
	VertexProjectID    string
	VertexRegion       string
	ExtractionTimeout  time.Duration

	NormalizerSchemaPath string

	MaxUploadBytes     int64
	IntakeMode         string
	SweeperEnabled     bool
	SweeperInterval    time.Duration
	SweeperConcurrency int
	SweeperBatch       int
	MaxAttempts        int
	StaleAfter         time.Duration

	QueueBackend  string
	SQSQueueURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TelegramBotToken      string
	TelegramWebhookSecret string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		PanelAPIToken:   strings.TrimSpace(os.Getenv("PANEL_API_TOKEN")),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:     getEnv("MINIO_BUCKET", "fleetdocs-raw"),
		MinIOUseSSL:     getEnvBool("MINIO_USE_SSL", false),

		DatabaseURL: dbURL,

		ExtractionProvider: normalizeProvider(getEnv("EXTRACTION_PROVIDER", "openai")),
		ExtractionModel:    getEnv("EXTRACTION_MODEL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		VertexProjectID:    getEnv("VERTEX_PROJECT_ID", ""),
		VertexRegion:       getEnv("VERTEX_REGION", "europe-west1"),
		ExtractionTimeout:  getEnvDuration("EXTRACTION_TIMEOUT", 60*time.Second),

		NormalizerSchemaPath: getEnv("NORMALIZER_SCHEMA_PATH", ""),

		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 10)) << 20,
		IntakeMode:         normalizeIntakeMode(getEnv("INTAKE_MODE", IntakeInline)),
		SweeperEnabled:     getEnvBool("SWEEPER_ENABLED", true),
		SweeperInterval:    getEnvDuration("SWEEPER_INTERVAL", 5*time.Minute),
		SweeperConcurrency: getEnvInt("SWEEPER_CONCURRENCY", 4),
		SweeperBatch:       getEnvInt("SWEEPER_BATCH", 10),
		MaxAttempts:        getEnvInt("MAX_ATTEMPTS", 5),
		StaleAfter:         getEnvDuration("STALE_AFTER", 15*time.Minute),

		QueueBackend:  normalizeQueueBackend(getEnv("QUEUE_BACKEND", "none")),
		SQSQueueURL:   getEnv("SQS_QUEUE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// WithDefaults fills zero-valued pipeline settings, for configs built by hand in tests and tools.
func WithDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if cfg.LocalStoreDir == "" {
		cfg.LocalStoreDir = "./data"
	}
	if cfg.ExtractionProvider == "" {
		cfg.ExtractionProvider = "stub"
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = 60 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.IntakeMode == "" {
		cfg.IntakeMode = IntakeInline
	}
	if cfg.SweeperInterval <= 0 {
		cfg.SweeperInterval = 5 * time.Minute
	}
	if cfg.SweeperConcurrency <= 0 {
		cfg.SweeperConcurrency = 4
	}
	if cfg.SweeperBatch <= 0 {
		cfg.SweeperBatch = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.QueueBackend == "" {
		cfg.QueueBackend = "none"
	}
	return cfg
}

// IsDevLike reports whether env allows in-memory fallbacks and an open panel.
func IsDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config %s invalid bool %q, using %t", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "vertex", "gemini":
		return "vertex"
	case "stub", "none":
		return "stub"
	default:
		return "openai"
	}
}

func normalizeIntakeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case IntakeQueue:
		return IntakeQueue
	case IntakeDeferred, "sweeper":
		return IntakeDeferred
	default:
		return IntakeInline
	}
}

func normalizeQueueBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "asynq", "redis":
		return "asynq"
	default:
		return "none"
	}
}
