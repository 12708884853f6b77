package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// Config captures the settings required to boot the insights engine. It is
// read once at startup.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Limits    models.Limits   `yaml:"limits"`
	Stream    StreamConfig    `yaml:"stream"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sentry    SentryConfig    `yaml:"sentry"`
}

// ServerConfig controls the gRPC and HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// AssistantConfig configures the text-generation collaborator and the
// process-wide model parameters.
type AssistantConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	ExecutePath string        `yaml:"executePath"`
	StatusPath  string        `yaml:"statusPath"`
	Timeout     time.Duration `yaml:"timeout"`
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Verbose     bool          `yaml:"verbose"`
	RulesPath   string        `yaml:"rulesPath"`
}

// StreamConfig controls live-tail delivery.
type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	SubscriberBuffer  int           `yaml:"subscriberBuffer"`
}

// StorageConfig configures the OpenSearch-backed log store.
type StorageConfig struct {
	Addresses          []string      `yaml:"addresses"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	IndexPattern       string        `yaml:"indexPattern"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	QueryLimit         int           `yaml:"queryLimit"`
	BroaderLimit       int           `yaml:"broaderLimit"`
	QueryTTL           time.Duration `yaml:"queryTTL"`
}

// CacheConfig controls Valkey-backed caching of storage queries. When
// disabled an in-process cache is used.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PoolSize     int           `yaml:"poolSize"`
	TLS          bool          `yaml:"tls"`
}

// IngestConfig configures the Kafka feed. An empty broker list disables it.
type IngestConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"groupID"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SentryConfig enables panic reporting when DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_INSIGHTS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Limits = cfg.Limits.WithDefaults()
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			GracefulTimeout: 10 * time.Second,
		},
		Assistant: AssistantConfig{
			ExecutePath: "/api/v1/ai/execute",
			StatusPath:  "/api/v1/ai/status",
			Timeout:     30 * time.Second,
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   1500,
			RulesPath:   "configs/rules/actions.yaml",
		},
		Limits: models.DefaultLimits(),
		Stream: StreamConfig{
			HeartbeatInterval: 30 * time.Second,
			SubscriberBuffer:  64,
		},
		Storage: StorageConfig{
			IndexPattern: "app-logs-*",
			QueryLimit:   1000,
			BroaderLimit: 500,
			QueryTTL:     30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			PoolSize:     4,
		},
		Ingest: IngestConfig{
			Topic:         "logs",
			GroupID:       "mirador-insights",
			BatchSize:     500,
			FlushInterval: time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_INSIGHTS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TEXTGEN_BASE_URL"); v != "" {
		cfg.Assistant.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TEXTGEN_PROVIDER"); v != "" {
		cfg.Assistant.Provider = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TEXTGEN_MODEL"); v != "" {
		cfg.Assistant.Model = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TEXTGEN_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Assistant.Temperature = f
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_TEXTGEN_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assistant.MaxTokens = n
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_ASSISTANT_VERBOSE"); v != "" {
		cfg.Assistant.Verbose = isTrue(v)
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_RULES_PATH"); v != "" {
		cfg.Assistant.RulesPath = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stream.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_OPENSEARCH_ADDRESSES"); v != "" {
		cfg.Storage.Addresses = splitList(v)
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_OPENSEARCH_USERNAME"); v != "" {
		cfg.Storage.Username = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_OPENSEARCH_PASSWORD"); v != "" {
		cfg.Storage.Password = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_OPENSEARCH_INDEX"); v != "" {
		cfg.Storage.IndexPattern = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_KAFKA_BROKERS"); v != "" {
		cfg.Ingest.Brokers = splitList(v)
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_KAFKA_TOPIC"); v != "" {
		cfg.Ingest.Topic = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_KAFKA_GROUP_ID"); v != "" {
		cfg.Ingest.GroupID = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_SENTRY_DSN"); v != "" {
		cfg.Sentry.DSN = v
	}
	if v := os.Getenv("MIRADOR_INSIGHTS_SENTRY_ENVIRONMENT"); v != "" {
		cfg.Sentry.Environment = v
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
