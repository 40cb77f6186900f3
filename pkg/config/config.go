// Package config loads docsearch configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Redis, Kafka, Postgres, Builder, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Builder  BuilderConfig  `yaml:"builder"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for searchd.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds Redis connection parameters and the key prefix artifacts
// are published under.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	Prefix   string `yaml:"prefix"`
}

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topics        KafkaTopics   `yaml:"topics"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SymbolRecords string `yaml:"symbolRecords"`
	IndexComplete string `yaml:"indexComplete"`
}

// PostgresConfig holds PostgreSQL connection parameters for build history.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// BuilderConfig controls docindex builds.
type BuilderConfig struct {
	OutputDir              string `yaml:"outputDir"`
	Shards                 int    `yaml:"shards"`
	PreserveDiscoveryOrder bool   `yaml:"preserveDiscoveryOrder"`
	JSExport               bool   `yaml:"jsExport"`
	JSRelPrefix            string `yaml:"jsRelPrefix"`
}

// SearchConfig controls where searchd reads the artifact from and how lookups
// are served. Source is one of "dir", "http" or "redis".
type SearchConfig struct {
	Source          string        `yaml:"source"`
	ArtifactDir     string        `yaml:"artifactDir"`
	BaseURL         string        `yaml:"baseUrl"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
	SubstringScope  string        `yaml:"substringScope"`
	LoadConcurrency int           `yaml:"loadConcurrency"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	FetchRetries    int           `yaml:"fetchRetries"`
	MaxFetchBytes   int64         `yaml:"maxFetchBytes"`
	Watch           bool          `yaml:"watch"`
	ServeArtifact   bool          `yaml:"serveArtifact"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Prefix:   "docsearch",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch",
			Topics: KafkaTopics{
				SymbolRecords: "doc.symbols",
				IndexComplete: "index.complete",
			},
			IdleTimeout: 5 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Builder: BuilderConfig{
			OutputDir:   "html/search",
			Shards:      1,
			JSRelPrefix: "../",
		},
		Search: SearchConfig{
			Source:          "dir",
			ArtifactDir:     "html/search",
			DefaultLimit:    20,
			MaxResults:      200,
			SubstringScope:  "all",
			LoadConcurrency: 4,
			FetchTimeout:    5 * time.Second,
			FetchRetries:    3,
			MaxFetchBytes:   64 << 20,
			Watch:           true,
			ServeArtifact:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func (c *Config) validate() error {
	switch c.Search.Source {
	case "dir", "http", "redis":
	default:
		return fmt.Errorf("search.source must be dir, http or redis, got %q", c.Search.Source)
	}
	if c.Search.Source == "http" && c.Search.BaseURL == "" {
		return fmt.Errorf("search.baseUrl is required when search.source is http")
	}
	if c.Search.MaxFetchBytes < 0 {
		return fmt.Errorf("search.maxFetchBytes must not be negative, got %d", c.Search.MaxFetchBytes)
	}
	if c.Builder.Shards < 1 {
		return fmt.Errorf("builder.shards must be at least 1, got %d", c.Builder.Shards)
	}
	if c.Search.MaxResults > 0 && c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit %d exceeds search.maxResults %d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

// applyEnvOverrides reads DOCSEARCH_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCSEARCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCSEARCH_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("DOCSEARCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DOCSEARCH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DOCSEARCH_REDIS_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}
	if v := os.Getenv("DOCSEARCH_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("DOCSEARCH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DOCSEARCH_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("DOCSEARCH_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DOCSEARCH_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DOCSEARCH_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DOCSEARCH_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DOCSEARCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DOCSEARCH_SEARCH_SOURCE"); v != "" {
		cfg.Search.Source = v
	}
	if v := os.Getenv("DOCSEARCH_SEARCH_ARTIFACT_DIR"); v != "" {
		cfg.Search.ArtifactDir = v
	}
	if v := os.Getenv("DOCSEARCH_SEARCH_BASE_URL"); v != "" {
		cfg.Search.BaseURL = v
	}
	if v := os.Getenv("DOCSEARCH_SEARCH_SUBSTRING_SCOPE"); v != "" {
		cfg.Search.SubstringScope = v
	}
	if v := os.Getenv("DOCSEARCH_BUILDER_OUTPUT_DIR"); v != "" {
		cfg.Builder.OutputDir = v
	}
	if v := os.Getenv("DOCSEARCH_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCSEARCH_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
