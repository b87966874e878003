package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventgate/pkg/secrets"
)

// Store backends for token records.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Notification channels for account registration.
const (
	NotifyLog   = "log"
	NotifySMTP  = "smtp"
	NotifyKafka = "kafka"
)

var DefaultCheckpoints = []string{"prasad1", "prasad2", "prasad3"}

// Server captures process level configuration.
type Server struct {
	Addr          string
	Environment   string
	LogLevel      string
	Store         string
	JWTSigningKey string
	TokenTTL      time.Duration
	GuestsFile    string
	AuditBuffer   int

	Event    Event
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	SMTP     SMTPConfig
	Notify   NotifyConfig
}

// Event describes the checkpoints staffed at an event. Loaded from EVENT_CONFIG
// when set, otherwise from CHECKPOINTS.
type Event struct {
	Name        string   `yaml:"name"`
	Checkpoints []string `yaml:"checkpoints"`
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers     string
	AuditTopic  string
	NotifyTopic string
	LedgerTopic string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type NotifyConfig struct {
	Channel    string
	AdminEmail string
	DevEmails  []string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getenv("EVENTGATE_ADDR", ":8080"),
		Environment:   getenv("ENVIRONMENT", "development"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		Store:         getenv("STORE", StoreMemory),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		TokenTTL:      getenvDuration("TOKEN_TTL", 12*time.Hour),
		GuestsFile:    os.Getenv("GUESTS_FILE"),
		AuditBuffer:   getenvInt("AUDIT_BUFFER", 1024),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getenvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     os.Getenv("KAFKA_BROKERS"),
			AuditTopic:  getenv("KAFKA_AUDIT_TOPIC", "eventgate.checkpoint-audit"),
			NotifyTopic: getenv("KAFKA_NOTIFY_TOPIC", "eventgate.account-notifications"),
			LedgerTopic: getenv("KAFKA_LEDGER_TOPIC", "eventgate.checkpoint-ledger"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Notify: NotifyConfig{
			Channel:    getenv("NOTIFY_CHANNEL", NotifyLog),
			AdminEmail: os.Getenv("ADMIN_EMAIL"),
			DevEmails:  splitList(os.Getenv("DEV_EMAILS")),
		},
	}

	if cfg.JWTSigningKey == "" {
		if cfg.Environment == "production" {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
		// a fresh key per process; staff tokens do not survive a restart
		key, err := secrets.Generate()
		if err != nil {
			return Server{}, err
		}
		cfg.JWTSigningKey = key
	}

	event := Event{Checkpoints: splitList(os.Getenv("CHECKPOINTS"))}
	if path := os.Getenv("EVENT_CONFIG"); path != "" {
		loaded, err := LoadEvent(path)
		if err != nil {
			return Server{}, err
		}
		event = loaded
	}
	if len(event.Checkpoints) == 0 {
		event.Checkpoints = slices.Clone(DefaultCheckpoints)
	}
	cfg.Event = event

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// LoadEvent reads an event definition from a YAML file.
func LoadEvent(path string) (Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Event{}, fmt.Errorf("read event config: %w", err)
	}
	var event Event
	if err := yaml.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("parse event config %s: %w", path, err)
	}
	return event, nil
}

// Validate rejects combinations main cannot wire.
func (c Server) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("STORE=postgres requires DATABASE_URL")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}

	seen := make(map[string]struct{}, len(c.Event.Checkpoints))
	for _, cp := range c.Event.Checkpoints {
		// leading underscores are reserved for record metadata in the Redis hash
		if cp == "" || cp == "entryGate" || strings.HasPrefix(cp, "_") {
			return fmt.Errorf("invalid checkpoint id %q", cp)
		}
		if _, dup := seen[cp]; dup {
			return fmt.Errorf("duplicate checkpoint id %q", cp)
		}
		seen[cp] = struct{}{}
	}

	switch c.Notify.Channel {
	case NotifyLog:
	case NotifySMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			return fmt.Errorf("NOTIFY_CHANNEL=smtp requires SMTP_HOST and SMTP_FROM")
		}
	case NotifyKafka:
		if c.Kafka.Brokers == "" {
			return fmt.Errorf("NOTIFY_CHANNEL=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_CHANNEL %q", c.Notify.Channel)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
