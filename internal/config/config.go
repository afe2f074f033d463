// Package config loads server configuration from a YAML file with
// environment variable overrides. Every streaming limit the batch loop
// enforces is enumerated here so deployments can tune them without a
// rebuild.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Streaming StreamingConfig `yaml:"streaming"`
	Auth      AuthConfig      `yaml:"auth"`
	Media     MediaConfig     `yaml:"media"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AIConfig addresses the five external model services. Each service has
// its own base URL; all share one timeout and one API key.
type AIConfig struct {
	VisionBaseURL      string `yaml:"vision_base_url"`
	TextToGlossBaseURL string `yaml:"text_to_gloss_base_url"`
	GlossToTextBaseURL string `yaml:"gloss_to_text_base_url"`
	STTBaseURL         string `yaml:"stt_base_url"`
	TTSBaseURL         string `yaml:"tts_base_url"`
	APIKey             string `yaml:"api_key"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"` // AI_TIMEOUT
}

// StreamingConfig holds the per-session limits enforced by the websocket
// transport and the batch loop.
type StreamingConfig struct {
	SendIntervalSeconds    int `yaml:"send_interval_seconds"`     // SEND_INTERVAL
	MaxBufferSize          int `yaml:"max_buffer_size"`           // MAX_BUFFER_SIZE
	MaxBatchFrames         int `yaml:"max_batch_frames"`          // MAX_BATCH_FRAMES
	MaxFramesPerRequest    int `yaml:"max_frames_per_request"`    // MAX_FRAMES_PER_REQUEST
	MaxRequestsPerSession  int `yaml:"max_requests_per_session"`  // MAX_REQUESTS_PER_SESSION
	PipelineTimeoutSeconds int `yaml:"pipeline_timeout_seconds"`  // PIPELINE_TIMEOUT_SECONDS
	HeartbeatTimeoutSecs   int `yaml:"heartbeat_timeout_seconds"` // HEARTBEAT_TIMEOUT
	MaxMessagesPerSecond   int `yaml:"max_messages_per_second"`   // WS_MAX_MESSAGES_PER_SECOND
	MaxConnectionSeconds   int `yaml:"max_connection_seconds"`    // WS_MAX_CONNECTION_TIME
}

type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
	Issuer     string `yaml:"issuer"`
}

type MediaConfig struct {
	Root          string `yaml:"root"`            // filesystem root for signs/ and generated/
	PublicBaseURL string `yaml:"public_base_url"` // URL prefix for generated media
	GlossaryPath  string `yaml:"glossary_path"`   // optional YAML overriding the built-in sign map
	FFmpegBin     string `yaml:"ffmpeg_bin"`
}

// Default returns a Config carrying the documented streaming defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		AI: AIConfig{
			TimeoutSeconds: 30,
		},
		Streaming: StreamingConfig{
			SendIntervalSeconds:    5,
			MaxBufferSize:          120,
			MaxBatchFrames:         30,
			MaxFramesPerRequest:    64,
			MaxRequestsPerSession:  5,
			PipelineTimeoutSeconds: 15,
			HeartbeatTimeoutSecs:   30,
			MaxMessagesPerSecond:   30,
			MaxConnectionSeconds:   900,
		},
		Auth: AuthConfig{Issuer: "tafahom-api"},
		Media: MediaConfig{
			Root:      "/app/media",
			FFmpegBin: "ffmpeg",
		},
	}
}

// Load reads the YAML file at path (if it exists) on top of the defaults,
// then applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.Server.Port, "PORT")
	envStr(&c.Server.Env, "APP_ENV")
	envStr(&c.Database.URL, "DATABASE_URL")
	envStr(&c.Redis.Addr, "REDIS_ADDR")
	envStr(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")

	envStr(&c.AI.VisionBaseURL, "AI_CV_BASE_URL")
	envStr(&c.AI.TextToGlossBaseURL, "AI_TEXT_TO_GLOSS_BASE_URL")
	envStr(&c.AI.GlossToTextBaseURL, "AI_GLOSS_TO_TEXT_BASE_URL")
	envStr(&c.AI.STTBaseURL, "AI_STT_BASE_URL")
	envStr(&c.AI.TTSBaseURL, "AI_TTS_BASE_URL")
	envStr(&c.AI.APIKey, "AI_API_KEY")
	envInt(&c.AI.TimeoutSeconds, "AI_TIMEOUT")

	envInt(&c.Streaming.SendIntervalSeconds, "SEND_INTERVAL")
	envInt(&c.Streaming.MaxBufferSize, "MAX_BUFFER_SIZE")
	envInt(&c.Streaming.MaxBatchFrames, "MAX_BATCH_FRAMES")
	envInt(&c.Streaming.MaxFramesPerRequest, "MAX_FRAMES_PER_REQUEST")
	envInt(&c.Streaming.MaxRequestsPerSession, "MAX_REQUESTS_PER_SESSION")
	envInt(&c.Streaming.PipelineTimeoutSeconds, "PIPELINE_TIMEOUT_SECONDS")
	envInt(&c.Streaming.HeartbeatTimeoutSecs, "HEARTBEAT_TIMEOUT")
	envInt(&c.Streaming.MaxMessagesPerSecond, "WS_MAX_MESSAGES_PER_SECOND")
	envInt(&c.Streaming.MaxConnectionSeconds, "WS_MAX_CONNECTION_TIME")

	envStr(&c.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	envStr(&c.Auth.Issuer, "AUTH_ISSUER")

	envStr(&c.Media.Root, "MEDIA_ROOT")
	envStr(&c.Media.PublicBaseURL, "MEDIA_PUBLIC_BASE_URL")
	envStr(&c.Media.GlossaryPath, "GLOSSARY_PATH")
	envStr(&c.Media.FFmpegBin, "FFMPEG_BIN")
}

func (c *Config) validate() error {
	s := c.Streaming
	if s.MaxBufferSize <= 0 {
		return fmt.Errorf("max_buffer_size must be positive, got %d", s.MaxBufferSize)
	}
	if s.MaxBatchFrames <= 0 || s.MaxBatchFrames > s.MaxBufferSize {
		return fmt.Errorf("max_batch_frames must be in (0, %d], got %d", s.MaxBufferSize, s.MaxBatchFrames)
	}
	if s.MaxRequestsPerSession <= 0 {
		return fmt.Errorf("max_requests_per_session must be positive, got %d", s.MaxRequestsPerSession)
	}
	return nil
}

// Duration accessors keep time math out of the hot loops.

func (s StreamingConfig) SendInterval() time.Duration {
	return time.Duration(s.SendIntervalSeconds) * time.Second
}

func (s StreamingConfig) PipelineTimeout() time.Duration {
	return time.Duration(s.PipelineTimeoutSeconds) * time.Second
}

func (s StreamingConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(s.HeartbeatTimeoutSecs) * time.Second
}

func (s StreamingConfig) MaxConnectionTime() time.Duration {
	return time.Duration(s.MaxConnectionSeconds) * time.Second
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
