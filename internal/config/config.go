package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from an optional
// YAML file, with environment variables taking precedence for secrets and
// deployment-specific settings.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Slack      SlackConfig      `yaml:"slack"`
	Feeds      []FeedConfig     `yaml:"feeds"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// StoreConfig selects the persistence backend. Backend is one of
// memory, bolt, redis, postgres.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	BoltPath    string `yaml:"bolt_path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	PostgresURL string `yaml:"postgres_url"`
}

type PipelineConfig struct {
	Workers           int    `yaml:"workers"`
	MaxReports        int    `yaml:"max_reports"`
	MaxIndicators     int    `yaml:"max_indicators"`
	SummarizeReports  bool   `yaml:"summarize_reports"`
	Schedule          string `yaml:"schedule"` // cron expression, empty disables
	EnrichTimeoutSecs int    `yaml:"enrich_timeout_seconds"`
}

type EnrichmentConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type SlackConfig struct {
	BotToken    string `yaml:"bot_token"`
	Channel     string `yaml:"channel"`
	MentionTeam string `yaml:"mention_team"`
}

type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	GroupID  string   `yaml:"group_id"`
	MaxBatch int      `yaml:"max_batch"`
	PollSecs int      `yaml:"poll_seconds"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Store: StoreConfig{
			Backend:   "memory",
			BoltPath:  "threatlens.db",
			RedisAddr: "localhost:6379",
		},
		Pipeline: PipelineConfig{
			Workers:           4,
			MaxReports:        1000,
			MaxIndicators:     10000,
			SummarizeReports:  true,
			EnrichTimeoutSecs: 30,
		},
		Enrichment: EnrichmentConfig{
			Model: "gpt-4o-mini",
		},
		Slack: SlackConfig{
			Channel:     "#security-alerts",
			MentionTeam: "@security-team",
		},
		Kafka: KafkaConfig{
			Topic:    "threat-reports",
			GroupID:  "threatlens",
			MaxBatch: 500,
			PollSecs: 5,
		},
	}
}

// Load reads the YAML file at path (if it exists) on top of the defaults,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.AuthToken = getEnv("API_AUTH_TOKEN", c.Server.AuthToken)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.BoltPath = getEnv("BOLT_PATH", c.Store.BoltPath)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisDB = getEnvInt("REDIS_DB", c.Store.RedisDB)
	c.Store.PostgresURL = getEnv("DATABASE_URL", c.Store.PostgresURL)

	c.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.Schedule = getEnv("PIPELINE_SCHEDULE", c.Pipeline.Schedule)

	c.Enrichment.APIURL = getEnv("LLM_API_URL", c.Enrichment.APIURL)
	c.Enrichment.APIKey = getEnv("LLM_API_KEY", c.Enrichment.APIKey)
	c.Enrichment.Model = getEnv("LLM_MODEL", c.Enrichment.Model)

	c.Slack.BotToken = getEnv("SLACK_BOT_TOKEN", c.Slack.BotToken)
	c.Slack.Channel = getEnv("SLACK_CHANNEL_SECURITY", c.Slack.Channel)
	c.Slack.MentionTeam = getEnv("SLACK_MENTION_TEAM", c.Slack.MentionTeam)
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "bolt", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q (use memory, bolt, redis or postgres)", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresURL == "" {
		return fmt.Errorf("postgres backend selected but no DATABASE_URL configured")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive, got %d", c.Pipeline.Workers)
	}
	return nil
}

// EnrichTimeout returns the per-call enrichment timeout as a duration.
func (c *Config) EnrichTimeout() time.Duration {
	if c.Pipeline.EnrichTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Pipeline.EnrichTimeoutSecs) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
