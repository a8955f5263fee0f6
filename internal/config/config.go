package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Stripe       StripeConfig
	Competitions CompetitionConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr string
	// LockTTL bounds how long a purchase may hold a competition lock. It
	// must exceed the gateway charge timeout or a charge in flight could
	// outlive its critical section.
	LockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	EntryCreated       string
	PaymentSucceeded   string
	PaymentFailed      string
	CompetitionUpdated string
	DrawWins           string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	ChargeTimeout time.Duration
}

type CompetitionConfig struct {
	// HighValueThreshold is the minor-unit prize value above which a
	// competition shows up under the high-value tab.
	HighValueThreshold int64
	// EndingSoonWindow selects competitions for the ending-soon tab.
	EndingSoonWindow time.Duration
	// ClaimWindow is added to a win date to compute the claim deadline.
	ClaimWindow time.Duration
	// QRSecret is the AES key for entry pass payloads.
	QRSecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "competition_user"),
			Password:     getEnv("DB_PASSWORD", "competition_pass"),
			Database:     getEnv("DB_NAME", "competitions"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			LockTTL: time.Duration(getEnvInt("COMPETITION_LOCK_TTL_SECONDS", 120)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "competition-service-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				EntryCreated:       getEnv("KAFKA_TOPIC_ENTRY_CREATED", "prizedraw.entry.created"),
				PaymentSucceeded:   getEnv("KAFKA_TOPIC_PAYMENT_SUCCEEDED", "prizedraw.payment.succeeded"),
				PaymentFailed:      getEnv("KAFKA_TOPIC_PAYMENT_FAILED", "prizedraw.payment.failed"),
				CompetitionUpdated: getEnv("KAFKA_TOPIC_COMPETITION_UPDATED", "prizedraw.competition.updated"),
				DrawWins:           getEnv("KAFKA_TOPIC_DRAW_WINS", "prizedraw.draw.wins"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "gbp"),
			ChargeTimeout: time.Duration(getEnvInt("STRIPE_CHARGE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Competitions: CompetitionConfig{
			HighValueThreshold: int64(getEnvInt("HIGH_VALUE_THRESHOLD", 50000)),
			EndingSoonWindow:   time.Duration(getEnvInt("ENDING_SOON_DAYS", 3)) * 24 * time.Hour,
			ClaimWindow:        time.Duration(getEnvInt("WIN_CLAIM_WINDOW_DAYS", 14)) * 24 * time.Hour,
			QRSecret:           getEnv("QR_SECRET_KEY", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
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
