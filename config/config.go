package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EngineServer = "server"
	EngineCLI    = "cli"

	PolicyAll     = "all"
	PolicyLongest = "longest"
)

type Config struct {
	// Server settings
	ServerPort   string        `json:"server_port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Debug        bool          `json:"debug"`

	// Application paths
	LogDir    string `json:"log_dir"`
	UploadDir string `json:"upload_dir"`
	ClipsDir  string `json:"clips_dir"`

	Middleware MiddlewareConfig `json:"middleware"`
	CORS       CORSConfig       `json:"cors"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Database   DatabaseConfig   `json:"database"`

	Media         MediaConfig         `json:"media"`
	Transcription TranscriptionConfig `json:"transcription"`
	Pipeline      PipelineConfig      `json:"pipeline"`
	Janitor       JanitorConfig       `json:"janitor"`

	Redis  RedisConfig  `json:"redis"`
	Kafka  KafkaConfig  `json:"kafka"`
	Spaces SpacesConfig `json:"spaces"`

	Version string `json:"version"`

	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type MiddlewareConfig struct {
	EnableRecover   bool `json:"enable_recover"`
	EnableRequestID bool `json:"enable_request_id"`
	EnableLogger    bool `json:"enable_logger"`
	EnableTimeout   bool `json:"enable_timeout"`
	EnableCORS      bool `json:"enable_cors"`
	EnableRateLimit bool `json:"enable_rate_limit"`
}

type DatabaseConfig struct {
	Path               string        `json:"path"`
	MaxConnections     int           `json:"max_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
}

type MediaConfig struct {
	FFmpegPath        string        `json:"ffmpeg_path"`
	FFprobePath       string        `json:"ffprobe_path"`
	AllowedExtensions []string      `json:"allowed_extensions"`
	MaxUploadSize     int64         `json:"max_upload_size"`
	TranscodeRetries  int           `json:"transcode_retries"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
}

type TranscriptionConfig struct {
	// Engine selects the speech-to-text backend: "server" talks to a
	// long-running whisper server, "cli" runs the whisper.cpp binary.
	Engine    string        `json:"engine"`
	ServerURL string        `json:"server_url"`
	CLIPath   string        `json:"cli_path"`
	ModelPath string        `json:"model_path"`
	Language  string        `json:"language"`
	Timeout   time.Duration `json:"timeout"`

	// SegmentPolicy is "all" (keep every segment in order) or "longest"
	// (keep the SegmentLimit longest segments).
	SegmentPolicy string `json:"segment_policy"`
	SegmentLimit  int    `json:"segment_limit"`
}

type PipelineConfig struct {
	WorkerCount      int           `json:"worker_count"`
	QueueSize        int           `json:"queue_size"`
	ClipWorkers      int           `json:"clip_workers"`
	ProcessTimeout   time.Duration `json:"process_timeout"`
	HungJobTimeout   time.Duration `json:"hung_job_timeout"`
	SweepAfterJob    bool          `json:"sweep_after_job"`
	SubscriberBuffer int           `json:"subscriber_buffer"`
}

type JanitorConfig struct {
	Enabled         bool          `json:"enabled"`
	Schedule        string        `json:"schedule"`
	UploadRetention time.Duration `json:"upload_retention"`
	ClipRetention   time.Duration `json:"clip_retention"`
}

type RedisConfig struct {
	URL           string `json:"url"`
	ChannelPrefix string `json:"channel_prefix"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type SpacesConfig struct {
	Enabled   bool   `json:"enabled"`
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	PublicURL string `json:"public_url"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
	BurstSize         int  `json:"burst_size"`
}

var defaultExtensions = []string{
	".mp4", ".mov", ".mkv", ".avi", ".webm", ".m4v", ".mpeg", ".mpg", ".flv", ".wmv",
}

// Default configurations
func defaultDevConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   false, // Disabled for easier debugging
		EnableCORS:      true,
		EnableRateLimit: false,
	}
}

func defaultProdConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   true,
		EnableCORS:      true,
		EnableRateLimit: true,
	}
}

// Load reads configuration from an optional .env file and the environment,
// then validates it.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv builds a Config from the environment without validating it.
func FromEnv() (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 5*time.Minute),
		WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 30*time.Minute),
		IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:        getEnvAsBool("DEBUG", false),

		LogDir:    getEnv("LOG_DIR", "/var/log/autoclip"),
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
		ClipsDir:  getEnv("CLIPS_DIR", "clips"),

		Version: getEnv("VERSION", "1.0.0"),

		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Minute),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORS: CORSConfig{
			Enabled:        getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins: getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsStringSlice(
				"CORS_ALLOWED_METHODS",
				[]string{"GET", "POST", "OPTIONS"},
			),
			AllowedHeaders:   getEnvAsStringSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type"}),
			ExposedHeaders:   getEnvAsStringSlice("CORS_EXPOSED_HEADERS", []string{}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
		},

		Database: DatabaseConfig{
			Path:               getEnv("DB_PATH", "/var/lib/autoclip/data.db"),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		Media: MediaConfig{
			FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:       getEnv("FFPROBE_PATH", "ffprobe"),
			AllowedExtensions: getEnvAsStringSlice("ALLOWED_EXTENSIONS", defaultExtensions),
			MaxUploadSize:     getEnvAsInt64("MAX_UPLOAD_SIZE", 2<<30), // 2GB
			TranscodeRetries:  getEnvAsInt("TRANSCODE_RETRIES", 1),
			RetryBackoff:      getEnvAsDuration("TRANSCODE_RETRY_BACKOFF", 2*time.Second),
		},

		Transcription: TranscriptionConfig{
			Engine:        getEnv("TRANSCRIBE_ENGINE", EngineServer),
			ServerURL:     getEnv("WHISPER_SERVER_URL", "http://127.0.0.1:8178"),
			CLIPath:       getEnv("WHISPER_CLI_PATH", "whisper-cli"),
			ModelPath:     getEnv("WHISPER_MODEL", "models/ggml-base.bin"),
			Language:      getEnv("WHISPER_LANGUAGE", "auto"),
			Timeout:       getEnvAsDuration("TRANSCRIBE_TIMEOUT", 30*time.Minute),
			SegmentPolicy: getEnv("SEGMENT_POLICY", PolicyAll),
			SegmentLimit:  getEnvAsInt("SEGMENT_LIMIT", 5),
		},

		Pipeline: PipelineConfig{
			WorkerCount:      getEnvAsInt("WORKER_COUNT", 2),
			QueueSize:        getEnvAsInt("QUEUE_SIZE", 32),
			ClipWorkers:      getEnvAsInt("CLIP_WORKERS", 1),
			ProcessTimeout:   getEnvAsDuration("PROCESS_TIMEOUT", 2*time.Hour),
			HungJobTimeout:   getEnvAsDuration("HUNG_JOB_TIMEOUT", 30*time.Minute),
			SweepAfterJob:    getEnvAsBool("SWEEP_AFTER_JOB", false),
			SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 64),
		},

		Janitor: JanitorConfig{
			Enabled:         getEnvAsBool("JANITOR_ENABLED", true),
			Schedule:        getEnv("SWEEP_SCHEDULE", "@every 10m"),
			UploadRetention: getEnvAsDuration("UPLOAD_RETENTION", time.Hour),
			ClipRetention:   getEnvAsDuration("CLIP_RETENTION", 24*time.Hour),
		},

		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "autoclip:jobs"),
		},

		Kafka: KafkaConfig{
			Brokers: getEnvAsStringSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "autoclip-job-events"),
		},

		Spaces: SpacesConfig{
			Enabled:   getEnvAsBool("SPACES_ENABLED", false),
			AccessKey: getEnv("SPACES_ACCESS_KEY", ""),
			SecretKey: getEnv("SPACES_SECRET_KEY", ""),
			Region:    getEnv("SPACES_REGION", "us-east-1"),
			Endpoint:  getEnv("SPACES_ENDPOINT", ""),
			Bucket:    getEnv("SPACES_BUCKET", ""),
			Prefix:    getEnv("SPACES_PREFIX", "clips"),
			PublicURL: getEnv("SPACES_PUBLIC_URL", ""),
		},

		Middleware: defaultDevConfig(),
	}

	if os.Getenv("ENV") == "production" {
		cfg.Middleware = defaultProdConfig()
	}

	for i, ext := range cfg.Media.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Media.AllowedExtensions[i] = ext
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validatePaths(c); err != nil {
		return err
	}

	if err := validateTimeouts(c); err != nil {
		return err
	}

	if err := validatePipeline(c); err != nil {
		return err
	}

	if err := validateTools(c); err != nil {
		return err
	}

	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
		{c.UploadDir, "upload directory"},
		{c.ClipsDir, "clips directory"},
		{filepath.Dir(c.Database.Path), "database directory"},
	}

	for _, p := range paths {
		if p.path == "" {
			return fmt.Errorf("%s must be set", p.name)
		}
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

func validateTimeouts(c *Config) error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Pipeline.ProcessTimeout <= 0 {
		return fmt.Errorf("process timeout must be positive")
	}
	if c.Transcription.Timeout <= 0 {
		return fmt.Errorf("transcription timeout must be positive")
	}
	return nil
}

func validatePipeline(c *Config) error {
	if c.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if c.Pipeline.ClipWorkers <= 0 {
		return fmt.Errorf("clip workers must be positive")
	}
	if c.Media.TranscodeRetries <= 0 {
		return fmt.Errorf("transcode retries must be at least 1")
	}
	if len(c.Media.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}

	switch c.Transcription.SegmentPolicy {
	case PolicyAll:
	case PolicyLongest:
		if c.Transcription.SegmentLimit <= 0 {
			return fmt.Errorf("segment limit must be positive for policy %q", PolicyLongest)
		}
	default:
		return fmt.Errorf("unknown segment policy %q", c.Transcription.SegmentPolicy)
	}

	if c.Spaces.Enabled && (c.Spaces.Bucket == "" || c.Spaces.Endpoint == "") {
		return fmt.Errorf("spaces bucket and endpoint are required when spaces is enabled")
	}

	return nil
}

// validateTools resolves every external binary once at startup so a
// missing tool fails fast instead of on the first upload.
func validateTools(c *Config) error {
	ffmpeg, err := exec.LookPath(c.Media.FFmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", c.Media.FFmpegPath, err)
	}
	c.Media.FFmpegPath = ffmpeg

	ffprobe, err := exec.LookPath(c.Media.FFprobePath)
	if err != nil {
		return fmt.Errorf("ffprobe not found (%s): %w", c.Media.FFprobePath, err)
	}
	c.Media.FFprobePath = ffprobe

	switch c.Transcription.Engine {
	case EngineServer:
		if c.Transcription.ServerURL == "" {
			return fmt.Errorf("whisper server url is required for engine %q", EngineServer)
		}
	case EngineCLI:
		cli, err := exec.LookPath(c.Transcription.CLIPath)
		if err != nil {
			return fmt.Errorf("whisper cli not found (%s): %w", c.Transcription.CLIPath, err)
		}
		c.Transcription.CLIPath = cli
		if _, err := os.Stat(c.Transcription.ModelPath); err != nil {
			return fmt.Errorf("whisper model not found: %w", err)
		}
	default:
		return fmt.Errorf("unknown transcription engine %q", c.Transcription.Engine)
	}

	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts
		}
	}
	return append([]string(nil), defaultValue...)
}
