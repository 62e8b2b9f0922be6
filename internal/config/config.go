package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	ML        MLConfig        `mapstructure:"ml"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Slack     SlackConfig     `mapstructure:"slack"`
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c ServerConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

func (c ServerConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// StorageConfig selects the message store backend: "postgres" or "sqlite".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	SeenTTL   time.Duration `mapstructure:"seen_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Neo4jConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	URI                string `mapstructure:"uri"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	Database           string `mapstructure:"database"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxLifetimeMinutes int    `mapstructure:"max_lifetime_minutes"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	StreamName    string `mapstructure:"stream_name"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type AuthConfig struct {
	APIKey     string `mapstructure:"api_key"`
	AdminToken string `mapstructure:"admin_token"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// MonitorConfig controls the polling loop over decoy profiles.
type MonitorConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	InitialDelay     time.Duration `mapstructure:"initial_delay"`
	ActivityInterval time.Duration `mapstructure:"activity_interval"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

// AnalysisConfig points at the keyword lexicon. Inline lists extend the file.
type AnalysisConfig struct {
	LexiconFile        string   `mapstructure:"lexicon_file"`
	WatchLexicon       bool     `mapstructure:"watch_lexicon"`
	SuspiciousKeywords []string `mapstructure:"suspicious_keywords"`
	HighRiskPhrases    []string `mapstructure:"high_risk_phrases"`
}

type ScoringConfig struct {
	KeywordWeight                int `mapstructure:"keyword_weight"`
	SentimentWeight              int `mapstructure:"sentiment_weight"`
	RelationshipEscalationWeight int `mapstructure:"relationship_escalation_weight"`
	RequestPrivateInfoWeight     int `mapstructure:"request_private_info_weight"`
	MediumThreshold              int `mapstructure:"medium_threshold"`
	HighThreshold                int `mapstructure:"high_threshold"`
}

type MLConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ModelPath      string `mapstructure:"model_path"`
	TrainingSize   int    `mapstructure:"training_size"`
	NumTrees       int    `mapstructure:"num_trees"`
	MaxDepth       int    `mapstructure:"max_depth"`
	MinSamplesLeaf int    `mapstructure:"min_samples_leaf"`
	Seed           int64  `mapstructure:"seed"`
}

type RulesConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Watch   bool   `mapstructure:"watch"`
}

type AlertsConfig struct {
	Threshold int `mapstructure:"threshold"`
}

type SlackConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryMax   int           `mapstructure:"retry_max"`
}

type LinkedInConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Email            string        `mapstructure:"email"`
	Password         string        `mapstructure:"password"`
	Headless         bool          `mapstructure:"headless"`
	ChromePath       string        `mapstructure:"chrome_path"`
	UserDataDir      string        `mapstructure:"user_data_dir"`
	MaxConversations int           `mapstructure:"max_conversations"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
}

type TwitterConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ConsumerKey    string        `mapstructure:"consumer_key"`
	ConsumerSecret string        `mapstructure:"consumer_secret"`
	AccessToken    string        `mapstructure:"access_token"`
	AccessSecret   string        `mapstructure:"access_secret"`
	AccountID      string        `mapstructure:"account_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type QueueConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Key          string        `mapstructure:"key"`
	BatchSize    int           `mapstructure:"batch_size"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "honeyshield")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "honeyshield")
	v.SetDefault("database.dbname", "honeyshield")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("sqlite.path", "data/honeyshield.db")
	v.SetDefault("sqlite.busy_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "honeyshield:")
	v.SetDefault("redis.seen_ttl", 30*24*time.Hour)

	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.max_connections", 20)
	v.SetDefault("neo4j.max_lifetime_minutes", 60)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "HONEYSHIELD")
	v.SetDefault("nats.subject_prefix", "honeyshield")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Admin-Token"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_minute", 120)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("monitor.initial_delay", 10*time.Second)
	v.SetDefault("monitor.activity_interval", 3*time.Hour)
	v.SetDefault("monitor.lock_ttl", 4*time.Minute)

	v.SetDefault("analysis.lexicon_file", "config/lexicon.yaml")
	v.SetDefault("analysis.watch_lexicon", true)

	v.SetDefault("scoring.keyword_weight", 10)
	v.SetDefault("scoring.sentiment_weight", 15)
	v.SetDefault("scoring.relationship_escalation_weight", 20)
	v.SetDefault("scoring.request_private_info_weight", 25)
	v.SetDefault("scoring.medium_threshold", 40)
	v.SetDefault("scoring.high_threshold", 70)

	v.SetDefault("ml.enabled", true)
	v.SetDefault("ml.model_path", "models/phishing_forest.json")
	v.SetDefault("ml.training_size", 2000)
	v.SetDefault("ml.num_trees", 50)
	v.SetDefault("ml.max_depth", 12)
	v.SetDefault("ml.min_samples_leaf", 2)
	v.SetDefault("ml.seed", 42)

	v.SetDefault("rules.enabled", true)
	v.SetDefault("rules.dir", "rules")
	v.SetDefault("rules.watch", true)

	v.SetDefault("alerts.threshold", 40)

	v.SetDefault("slack.workers", 2)
	v.SetDefault("slack.queue_size", 100)
	v.SetDefault("slack.timeout", 10*time.Second)
	v.SetDefault("slack.retry_max", 3)

	v.SetDefault("linkedin.headless", true)
	v.SetDefault("linkedin.max_conversations", 10)
	v.SetDefault("linkedin.poll_interval", 5*time.Minute)
	v.SetDefault("linkedin.page_timeout", 30*time.Second)

	v.SetDefault("twitter.poll_interval", 5*time.Minute)

	v.SetDefault("queue.key", "inbox")
	v.SetDefault("queue.batch_size", 50)
	v.SetDefault("queue.block_timeout", 2*time.Second)
	v.SetDefault("queue.poll_interval", time.Minute)
	v.SetDefault("queue.max_attempts", 5)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from file and environment variables. Without an
// explicit path a missing config file is not an error; defaults and
// environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/honeyshield")
	}

	v.SetEnvPrefix("HONEYSHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets usually come from the environment only.
	v.BindEnv("database.password", "HONEYSHIELD_DATABASE_PASSWORD")
	v.BindEnv("redis.password", "HONEYSHIELD_REDIS_PASSWORD")
	v.BindEnv("neo4j.password", "HONEYSHIELD_NEO4J_PASSWORD")
	v.BindEnv("auth.api_key", "HONEYSHIELD_API_KEY")
	v.BindEnv("auth.admin_token", "HONEYSHIELD_ADMIN_TOKEN")
	v.BindEnv("linkedin.email", "HONEYSHIELD_LINKEDIN_EMAIL", "LINKEDIN_EMAIL")
	v.BindEnv("linkedin.password", "HONEYSHIELD_LINKEDIN_PASSWORD", "LINKEDIN_PASSWORD")
	v.BindEnv("twitter.consumer_key", "HONEYSHIELD_TWITTER_CONSUMER_KEY")
	v.BindEnv("twitter.consumer_secret", "HONEYSHIELD_TWITTER_CONSUMER_SECRET")
	v.BindEnv("twitter.access_token", "HONEYSHIELD_TWITTER_ACCESS_TOKEN")
	v.BindEnv("twitter.access_secret", "HONEYSHIELD_TWITTER_ACCESS_SECRET")
	v.BindEnv("slack.webhook_url", "HONEYSHIELD_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver)
	}
	if c.Scoring.MediumThreshold <= 0 || c.Scoring.HighThreshold <= c.Scoring.MediumThreshold {
		return fmt.Errorf("scoring thresholds must satisfy 0 < medium (%d) < high (%d)",
			c.Scoring.MediumThreshold, c.Scoring.HighThreshold)
	}
	if c.Monitor.Enabled && c.Monitor.Interval < time.Second {
		return fmt.Errorf("monitor.interval too small: %s", c.Monitor.Interval)
	}
	if c.LinkedIn.Enabled && (c.LinkedIn.Email == "" || c.LinkedIn.Password == "") {
		return errors.New("linkedin source enabled without email/password")
	}
	return nil
}
