// Package config loads gateway configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all runtime configuration for the gateway process.
type Config struct {
	HTTPPort string

	Auth    AuthConfig
	Upload  UploadConfig
	Events  EventsConfig
	LLM     LLMConfig
	Speech  SpeechConfig
	Redis   RedisConfig
	Workers WorkerConfig
}

// AuthConfig controls identity resolution for incoming requests.
type AuthConfig struct {
	// JWTSecret is the shared HMAC secret. Must be at least 32 bytes.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// AllowLegacyHeaders enables X-Tenant-Id/X-User-Id fallback when no
	// bearer token is presented. Development only.
	AllowLegacyHeaders bool
	MockTenantID       string
	MockUserID         string
}

// UploadConfig controls the S3 upload flow.
type UploadConfig struct {
	BucketName string
	Region     string
	URLTTL     time.Duration

	// MaxSyncUploadBytes caps multipart bodies on the synchronous batch
	// endpoint.
	MaxSyncUploadBytes int64
}

// EventsConfig controls the downstream fan-out destinations.
type EventsConfig struct {
	Region             string
	KinesisStream      string
	EventBusName       string
	EventSource        string
	KinesisEnabled     bool
	EventBridgeEnabled bool
}

// LLMConfig holds OpenAI credentials and model selection.
type LLMConfig struct {
	APIKey string
	Model  string
}

// SpeechConfig holds Deepgram credentials.
type SpeechConfig struct {
	DeepgramAPIKey string
}

// RedisConfig holds the session-buffer connection string.
type RedisConfig struct {
	URL string
}

// WorkerConfig tunes the upload-job worker pool.
type WorkerConfig struct {
	WorkerCount             int
	PollInterval            time.Duration
	PollIntervalJitter      time.Duration
	JobTimeout              time.Duration
	GracefulShutdownTimeout time.Duration

	// StuckJobThreshold is how long a job may sit in processing before the
	// reaper fails it with PROCESSING_TIMEOUT.
	StuckJobThreshold time.Duration
}

// Load reads configuration from the environment. It returns an error for
// malformed values but does not require credentials to be present; components
// that need a missing credential fail at construction instead.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("INTERNAL_JWT_SECRET"),
			JWTIssuer:          getEnvOrDefault("INTERNAL_JWT_ISSUER", "eq-frontend"),
			JWTAudience:        getEnvOrDefault("INTERNAL_JWT_AUDIENCE", "eq-backend"),
			AllowLegacyHeaders: boolEnv("ALLOW_LEGACY_HEADER_AUTH", false),
			MockTenantID:       os.Getenv("MOCK_TENANT_ID"),
			MockUserID:         getEnvOrDefault("MOCK_USER_ID", "dev-user"),
		},
		Upload: UploadConfig{
			BucketName:         getEnvOrDefault("UPLOAD_BUCKET_NAME", "eq-live-transcription-uploads-dev"),
			Region:             getEnvOrDefault("UPLOAD_REGION", getEnvOrDefault("AWS_REGION", "us-east-1")),
			MaxSyncUploadBytes: 100 << 20,
		},
		Events: EventsConfig{
			Region:             getEnvOrDefault("AWS_REGION", "us-east-1"),
			KinesisStream:      getEnvOrDefault("KINESIS_STREAM_NAME", "eq-interactions-stream-dev"),
			EventBusName:       getEnvOrDefault("EVENTBRIDGE_BUS_NAME", "default"),
			EventSource:        getEnvOrDefault("EVENT_SOURCE", "com.yourapp.transcription"),
			KinesisEnabled:     boolEnv("ENABLE_KINESIS_PUBLISHING", true),
			EventBridgeEnabled: boolEnv("ENABLE_EVENTBRIDGE_PUBLISHING", true),
		},
		LLM: LLMConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		},
		Speech: SpeechConfig{
			DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		},
		Redis: RedisConfig{
			URL: getEnvOrDefault("SESSION_BUFFER_URL", "redis://localhost:6379"),
		},
	}

	var err error
	if cfg.Upload.URLTTL, err = durationEnv("UPLOAD_URL_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Workers.WorkerCount, err = intEnv("WORKER_COUNT", 2); err != nil {
		return nil, err
	}
	if cfg.Workers.PollInterval, err = durationEnv("WORKER_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.Workers.PollIntervalJitter, err = durationEnv("WORKER_POLL_JITTER", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Workers.JobTimeout, err = durationEnv("WORKER_JOB_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Workers.GracefulShutdownTimeout, err = durationEnv("WORKER_SHUTDOWN_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Workers.StuckJobThreshold, err = durationEnv("WORKER_STUCK_THRESHOLD", 30*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func boolEnv(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func intEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
