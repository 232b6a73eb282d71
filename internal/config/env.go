package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// HTTPConfig defines the listener and request admission limits.
type HTTPConfig struct {
	Port            string
	MaxUploadBytes  int64
	MaxInflight     int
	ShutdownTimeout time.Duration
}

// OCRConfig defines the OCR service endpoint and poll behavior.
type OCRConfig struct {
	BaseURL        string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	MaxConcurrent  int
}

// LLMConfig defines the LLM endpoint and generation parameters.
type LLMConfig struct {
	BaseURL        string
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	MaxAttempts    int
}

// S3Config defines object-store connectivity.
type S3Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	TLSSkipVerify bool
}

// DBConfig defines the Postgres pool.
type DBConfig struct {
	URL            string
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
}

// PipelineConfig defines run limits and the working area.
type PipelineConfig struct {
	Deadline         time.Duration
	MaxPDFPages      int
	WorkDir          string
	PromptsDir       string
	ArtifactsEnabled bool
	StampDetection   bool
}

// BreakerConfig defines circuit-breaker thresholds shared by all services.
type BreakerConfig struct {
	Failures int
	Cooldown time.Duration
}

// RetentionConfig defines the persistence/artifact janitor.
type RetentionConfig struct {
	Days          int
	SweepInterval time.Duration
}

// ValidityConfig defines the default document validity window.
type ValidityConfig struct {
	DefaultDays int
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	HTTP      HTTPConfig
	OCR       OCRConfig
	LLM       LLMConfig
	S3        S3Config
	DB        DBConfig
	Pipeline  PipelineConfig
	Breaker   BreakerConfig
	Retention RetentionConfig
	Validity  ValidityConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/docverify.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_docverify",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.HTTP = HTTPConfig{
		Port:            getEnv("HTTP_PORT", getEnv("PORT", "8080")),
		MaxUploadBytes:  parseInt64(getEnv("MAX_UPLOAD_BYTES", "52428800"), 50<<20),
		MaxInflight:     parseInt(getEnv("MAX_INFLIGHT_RUNS", "200"), 200),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
	}

	cfg.OCR = OCRConfig{
		BaseURL:        strings.TrimRight(getEnv("OCR_BASE_URL", "http://localhost:8400"), "/"),
		PollInterval:   parseDuration(getEnv("OCR_POLL_INTERVAL", "2s"), 2*time.Second),
		PollTimeout:    parseDuration(getEnv("OCR_POLL_TIMEOUT", "300s"), 300*time.Second),
		RequestTimeout: parseDuration(getEnv("OCR_REQUEST_TIMEOUT", "60s"), 60*time.Second),
		MaxConcurrent:  parseInt(getEnv("OCR_MAX_CONCURRENT", "5"), 5),
	}

	cfg.LLM = LLMConfig{
		BaseURL:        strings.TrimRight(getEnv("LLM_BASE_URL", "http://localhost:8500"), "/"),
		Model:          getEnv("LLM_MODEL", "gpt-4o"),
		Temperature:    parseFloat(getEnv("LLM_TEMPERATURE", "0.1"), 0.1),
		MaxTokens:      parseInt(getEnv("LLM_MAX_TOKENS", "2000"), 2000),
		RequestTimeout: parseDuration(getEnv("LLM_REQUEST_TIMEOUT", "30s"), 30*time.Second),
		MaxAttempts:    parseInt(getEnv("LLM_MAX_ATTEMPTS", "3"), 3),
	}

	cfg.S3 = S3Config{
		Endpoint:      getEnv("S3_ENDPOINT", ""),
		Region:        getEnv("S3_REGION", "us-east-1"),
		AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		SecretKey:     getEnv("S3_SECRET_KEY", ""),
		Bucket:        getEnv("S3_BUCKET", "documents"),
		TLSSkipVerify: parseBool(getEnv("S3_TLS_SKIP_VERIFY", "0")),
	}

	cfg.DB = DBConfig{
		URL:            getEnv("DATABASE_URL", "postgres://localhost:5432/docverify?sslmode=disable"),
		MinConns:       parseInt(getEnv("DB_MIN_CONNS", "2"), 2),
		MaxConns:       parseInt(getEnv("DB_MAX_CONNS", "10"), 10),
		AcquireTimeout: parseDuration(getEnv("DB_ACQUIRE_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Pipeline = PipelineConfig{
		Deadline:         parseDuration(getEnv("PIPELINE_DEADLINE", "120s"), 120*time.Second),
		MaxPDFPages:      parseInt(getEnv("MAX_PDF_PAGES", "3"), 3),
		WorkDir:          getEnv("WORK_DIR", filepath.Join(os.TempDir(), "docverify")),
		PromptsDir:       getEnv("PROMPTS_DIR", ""),
		ArtifactsEnabled: parseBool(getEnv("ARTIFACTS_ENABLED", "true")),
		StampDetection:   parseBool(getEnv("STAMP_DETECTION_ENABLED", "0")),
	}

	cfg.Breaker = BreakerConfig{
		Failures: parseInt(getEnv("BREAKER_FAILURES", "5"), 5),
		Cooldown: parseDuration(getEnv("BREAKER_COOLDOWN", "30s"), 30*time.Second),
	}

	cfg.Retention = RetentionConfig{
		Days:          parseInt(getEnv("RUNS_RETENTION_DAYS", "30"), 30),
		SweepInterval: parseDuration(getEnv("RETENTION_SWEEP_INTERVAL", "1h"), time.Hour),
	}

	cfg.Validity = ValidityConfig{
		DefaultDays: parseInt(getEnv("DOC_VALIDITY_DEFAULT_DAYS", "40"), 40),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
