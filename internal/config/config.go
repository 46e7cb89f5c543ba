package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// DATABASE_URL is optional: without it the engine runs with no durable
	// store — cache lookups always miss and store-requiring modules skip.
	DatabaseURL string `env:"DATABASE_URL"`

	OutputDir string `env:"OUTPUT_DIR" envDefault:"./runs"`
	InboxDir  string `env:"INBOX_DIR"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"ta-engine"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"ta-engine/runs"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	S3 S3Config

	// RunRetention prunes run directories older than this. Zero keeps
	// everything.
	RunRetention time.Duration `env:"RUN_RETENTION" envDefault:"0"`

	// RerunMode controls whether a pipeline start attaches to an existing
	// non-failed run for the same transcript ("reuse") or always allocates
	// a new one ("new").
	RerunMode string `env:"RERUN_MODE" envDefault:"reuse"`

	// Per-category module timeouts. Zero disables the bound.
	LightTimeout  time.Duration `env:"LIGHT_MODULE_TIMEOUT" envDefault:"30s"`
	MediumTimeout time.Duration `env:"MEDIUM_MODULE_TIMEOUT" envDefault:"2m"`
	HeavyTimeout  time.Duration `env:"HEAVY_MODULE_TIMEOUT" envDefault:"10m"`

	// Module settings. Each module declares via its descriptor which of
	// these feed its config hash.
	Language            string  `env:"LANGUAGE" envDefault:"en"`
	SentimentLexicon    string  `env:"SENTIMENT_LEXICON" envDefault:"default"`
	EmotionModelVersion string  `env:"EMOTION_MODEL_VERSION" envDefault:"v1"`
	NERMinTokenLen      int     `env:"NER_MIN_TOKEN_LEN" envDefault:"2"`
	TopicCount          int     `env:"TOPIC_COUNT" envDefault:"5"`
	TopicSeed           int64   `env:"TOPIC_SEED" envDefault:"1"`
	InteractionGap      float64 `env:"INTERACTION_GAP_SECONDS" envDefault:"1.5"`
}

// S3Config configures the optional S3 artifact mirror.
type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"S3_BUCKET"`
	Prefix    string `env:"S3_PREFIX"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
}

func (s S3Config) Enabled() bool { return s.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	OutputDir   string
	InboxDir    string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	RerunMode   string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.InboxDir != "" {
		cfg.InboxDir = overrides.InboxDir
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.RerunMode != "" {
		cfg.RerunMode = overrides.RerunMode
	}

	if cfg.RerunMode != "reuse" && cfg.RerunMode != "new" {
		return nil, fmt.Errorf("invalid RERUN_MODE %q (want reuse or new)", cfg.RerunMode)
	}

	return cfg, nil
}

// CacheField resolves one declared cache-affecting config field path. The
// paths are data (declared per module in its descriptor), but resolution is
// this explicit switch — no reflection walking of the config struct.
func (c *Config) CacheField(path string) (string, bool) {
	switch path {
	case "language":
		return c.Language, true
	case "sentiment.lexicon":
		return c.SentimentLexicon, true
	case "emotion.model_version":
		return c.EmotionModelVersion, true
	case "ner.min_token_len":
		return strconv.Itoa(c.NERMinTokenLen), true
	case "topics.count":
		return strconv.Itoa(c.TopicCount), true
	case "topics.seed":
		return strconv.FormatInt(c.TopicSeed, 10), true
	case "interaction.gap_seconds":
		return strconv.FormatFloat(c.InteractionGap, 'f', -1, 64), true
	}
	return "", false
}

// PipelinePairs returns the pipeline-level settings that feed the
// pipeline-config hash, as "key=value" pairs.
func (c *Config) PipelinePairs() []string {
	return []string{
		"language=" + c.Language,
	}
}

// Timeout returns the execution bound for a module of the given cost tier.
func (c *Config) Timeout(category string) time.Duration {
	switch category {
	case "light":
		return c.LightTimeout
	case "medium":
		return c.MediumTimeout
	case "heavy":
		return c.HeavyTimeout
	}
	return c.MediumTimeout
}
