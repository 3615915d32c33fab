package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	// Scoring configures the optional external compatibility delegate.
	// An empty URL means local scoring only.
	Scoring struct {
		URL     string
		Timeout time.Duration
	}

	Daily struct {
		SelectionSize     int
		CandidatePoolSize int
		FreeChoices       int
		PremiumChoices    int
		RetentionDays     int
	}

	Conversation struct {
		TTL            time.Duration
		WarnFrom       time.Duration
		WarnTo         time.Duration
		MaxExtendHours int
		RetentionDays  int
	}

	Presence struct {
		OnlineWindow  time.Duration
		TypingTimeout time.Duration
	}

	Scheduler struct {
		ExpiryInterval    time.Duration
		WarningInterval   time.Duration
		CleanupInterval   time.Duration
		SelectionInterval time.Duration
		PresenceInterval  time.Duration
		OutboxInterval    time.Duration
	}
}

// New builds the config from the environment. A .env file in the working
// directory is loaded first when present; real env vars win over it.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = strings.ToLower(getEnvDefault("APP_ENV", EnvDevelopment))

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "grpc_server")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "muzz")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Compatibility delegate
	cfg.Scoring.URL = strings.TrimRight(getEnvDefault("SCORING_URL", ""), "/")
	cfg.Scoring.Timeout = getEnvDuration("SCORING_TIMEOUT", 3*time.Second)

	// Daily selection + quota
	cfg.Daily.SelectionSize = getEnvInt("SELECTION_SIZE", 5)
	cfg.Daily.CandidatePoolSize = getEnvInt("CANDIDATE_POOL_SIZE", 50)
	cfg.Daily.FreeChoices = getEnvInt("FREE_DAILY_CHOICES", 1)
	cfg.Daily.PremiumChoices = getEnvInt("PREMIUM_DAILY_CHOICES", 3)
	cfg.Daily.RetentionDays = getEnvInt("SELECTION_RETENTION_DAYS", 30)

	// Conversations
	cfg.Conversation.TTL = getEnvDuration("CONVERSATION_TTL", 24*time.Hour)
	cfg.Conversation.WarnFrom = getEnvDuration("CONVERSATION_WARN_FROM", 2*time.Hour)
	cfg.Conversation.WarnTo = getEnvDuration("CONVERSATION_WARN_TO", 3*time.Hour)
	cfg.Conversation.MaxExtendHours = getEnvInt("CONVERSATION_MAX_EXTEND_HOURS", 168)
	cfg.Conversation.RetentionDays = getEnvInt("CONVERSATION_RETENTION_DAYS", 90)

	// Presence + typing
	cfg.Presence.OnlineWindow = getEnvDuration("PRESENCE_ONLINE_WINDOW", 30*time.Second)
	cfg.Presence.TypingTimeout = getEnvDuration("TYPING_TIMEOUT", 5*time.Second)

	// Scheduled jobs
	cfg.Scheduler.ExpiryInterval = getEnvDuration("JOB_EXPIRY_INTERVAL", time.Hour)
	cfg.Scheduler.WarningInterval = getEnvDuration("JOB_WARNING_INTERVAL", time.Hour)
	cfg.Scheduler.CleanupInterval = getEnvDuration("JOB_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.Scheduler.SelectionInterval = getEnvDuration("JOB_SELECTION_INTERVAL", 24*time.Hour)
	cfg.Scheduler.PresenceInterval = getEnvDuration("JOB_PRESENCE_INTERVAL", time.Minute)
	cfg.Scheduler.OutboxInterval = getEnvDuration("JOB_OUTBOX_INTERVAL", 10*time.Second)

	return cfg
}

// IsProduction reports whether APP_ENV names the production environment.
func (c *Config) IsProduction() bool {
	return c.App.ENV == EnvProduction
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if n, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return n
	}
	return def
}

// getEnvDuration accepts Go duration strings ("90s", "2h").
func getEnvDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnvDefault(k, "")); err == nil && d > 0 {
		return d
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
