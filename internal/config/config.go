package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Export     ExportConfig
	Transcoder TranscoderConfig
	Upload     UploadConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Database   DatabaseConfig
	Webhook    WebhookConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

// ServerConfig holds the local HTTP API configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AuthSecret signs API tokens. Empty disables authentication.
	AuthSecret string
	TokenTTL   time.Duration
	// EnqueueRate limits export requests per client, per second.
	EnqueueRate  float64
	EnqueueBurst int
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// ExportConfig holds the user's default export settings and pipeline limits
type ExportConfig struct {
	AppName                    string
	DefaultResolution          string
	DefaultFPS                 int
	DefaultFormat              string
	DefaultBitrate             string
	DefaultCRF                 int
	DefaultPreset              string
	DefaultCodec               string
	OutputDir                  string
	DiskSafetyMarginBytes      int64
	LogRingSize                int
	ValidationToleranceSeconds float64
}

// TranscoderConfig holds ffmpeg configuration
type TranscoderConfig struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
}

// UploadConfig holds chunked upload configuration
type UploadConfig struct {
	Enabled    bool
	Dir        string
	PartSize   int64
	Expiration time.Duration
}

// StorageConfig holds the optional object storage mirror configuration
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	Prefix          string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	JobTTL   time.Duration
}

// QueueConfig holds message broker configuration
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// WebhookConfig holds the job event webhook configuration
type WebhookConfig struct {
	Enabled bool
	URLs    []string
	// Secret signs payloads with HMAC-SHA256. Empty sends them unsigned.
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Load reads configuration from file and environment variables. An empty
// path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the export pipeline cannot run with
func (c *Config) Validate() error {
	if c.Export.LogRingSize <= 0 {
		return fmt.Errorf("export.logRingSize must be positive, got %d", c.Export.LogRingSize)
	}
	if c.Export.DiskSafetyMarginBytes < 0 {
		return fmt.Errorf("export.diskSafetyMarginBytes must not be negative")
	}
	if c.Export.ValidationToleranceSeconds < 0 {
		return fmt.Errorf("export.validationToleranceSeconds must not be negative")
	}
	if c.Webhook.Enabled && len(c.Webhook.URLs) == 0 {
		return fmt.Errorf("webhook.urls is required when webhooks are enabled")
	}
	if c.Transcoder.FFmpegPath == "" {
		return fmt.Errorf("transcoder.ffmpegPath is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 7420)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "0s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.authSecret", "")
	v.SetDefault("server.tokenTTL", "24h")
	v.SetDefault("server.enqueueRate", 1)
	v.SetDefault("server.enqueueBurst", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Export defaults
	v.SetDefault("export.appName", "Vedit")
	v.SetDefault("export.defaultResolution", "1920x1080")
	v.SetDefault("export.defaultFPS", 60)
	v.SetDefault("export.defaultFormat", "mp4")
	v.SetDefault("export.defaultBitrate", "8000k")
	v.SetDefault("export.defaultCRF", 23)
	v.SetDefault("export.defaultPreset", "veryfast")
	v.SetDefault("export.defaultCodec", "")
	v.SetDefault("export.outputDir", "exports")
	v.SetDefault("export.diskSafetyMarginBytes", 200*1024*1024) // 200MB
	v.SetDefault("export.logRingSize", 200)
	v.SetDefault("export.validationToleranceSeconds", 0.5)

	// Transcoder defaults
	v.SetDefault("transcoder.ffmpegPath", "ffmpeg")
	v.SetDefault("transcoder.ffprobePath", "ffprobe")
	v.SetDefault("transcoder.tempDir", "/tmp/vedit")

	// Upload defaults
	v.SetDefault("upload.enabled", true)
	v.SetDefault("upload.dir", "/tmp/vedit/uploads")
	v.SetDefault("upload.partSize", 5*1024*1024) // 5MB
	v.SetDefault("upload.expiration", "24h")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "exports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.prefix", "exports/")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.jobTTL", "24h")

	// Queue defaults
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "vedit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 4)
	v.SetDefault("database.minConns", 1)

	// Webhook defaults
	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.urls", []string{})
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.maxRetries", 3)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9420)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "vedit")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
}
