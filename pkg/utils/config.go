package utils

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Gateway   GatewayConfig
	SMS       SMSConfig
	Voucher   VoucherConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	WebhookURL string
	// WebhookSecret enables HMAC verification of callbacks when set.
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

type SMSConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
	Timeout  time.Duration
}

type VoucherConfig struct {
	CodeLength          int
	DefaultDurationDays int
	DefaultPackageID    int64
	ActivationLockTTL   time.Duration
}

type WorkerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxAttempts     int
	Lease           time.Duration
	MonitorInterval time.Duration
}

type RateLimitConfig struct {
	WebhookRPS   float64
	WebhookBurst int
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// Set defaults
	v.SetDefault("APP_NAME", "isp-portal")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_TOPIC_PREFIX", "isp")
	v.SetDefault("GATEWAY_CURRENCY", "TZS")
	v.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	v.SetDefault("SMS_SENDER_ID", "GGWIFI")
	v.SetDefault("SMS_TIMEOUT_SECONDS", 10)
	v.SetDefault("VOUCHER_CODE_LENGTH", 8)
	v.SetDefault("VOUCHER_DEFAULT_DURATION_DAYS", 30)
	v.SetDefault("VOUCHER_DEFAULT_PACKAGE_ID", 0)
	v.SetDefault("ACTIVATION_LOCK_SECONDS", 30)
	v.SetDefault("WORKER_POLL_SECONDS", 5)
	v.SetDefault("WORKER_BATCH_SIZE", 20)
	v.SetDefault("TASK_MAX_ATTEMPTS", 8)
	v.SetDefault("TASK_LEASE_SECONDS", 60)
	v.SetDefault("MONITOR_INTERVAL_SECONDS", 60)
	v.SetDefault("WEBHOOK_RATE_RPS", 10)
	v.SetDefault("WEBHOOK_RATE_BURST", 20)

	// .env is optional, the environment alone is enough in containers
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    v.GetString("APP_NAME"),
			Port:    v.GetString("PORT"),
			Debug:   v.GetBool("DEBUG"),
			LogPath: v.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASS"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			TopicPrefix: v.GetString("KAFKA_TOPIC_PREFIX"),
		},
		Gateway: GatewayConfig{
			BaseURL:       v.GetString("GATEWAY_BASE_URL"),
			APIKey:        v.GetString("GATEWAY_API_KEY"),
			WebhookURL:    v.GetString("GATEWAY_WEBHOOK_URL"),
			WebhookSecret: v.GetString("GATEWAY_WEBHOOK_SECRET"),
			Currency:      v.GetString("GATEWAY_CURRENCY"),
			Timeout:       time.Duration(v.GetInt("GATEWAY_TIMEOUT_SECONDS")) * time.Second,
		},
		SMS: SMSConfig{
			BaseURL:  v.GetString("SMS_BASE_URL"),
			APIKey:   v.GetString("SMS_API_KEY"),
			SenderID: v.GetString("SMS_SENDER_ID"),
			Timeout:  time.Duration(v.GetInt("SMS_TIMEOUT_SECONDS")) * time.Second,
		},
		Voucher: VoucherConfig{
			CodeLength:          v.GetInt("VOUCHER_CODE_LENGTH"),
			DefaultDurationDays: v.GetInt("VOUCHER_DEFAULT_DURATION_DAYS"),
			DefaultPackageID:    v.GetInt64("VOUCHER_DEFAULT_PACKAGE_ID"),
			ActivationLockTTL:   time.Duration(v.GetInt("ACTIVATION_LOCK_SECONDS")) * time.Second,
		},
		Worker: WorkerConfig{
			PollInterval:    time.Duration(v.GetInt("WORKER_POLL_SECONDS")) * time.Second,
			BatchSize:       v.GetInt("WORKER_BATCH_SIZE"),
			MaxAttempts:     v.GetInt("TASK_MAX_ATTEMPTS"),
			Lease:           time.Duration(v.GetInt("TASK_LEASE_SECONDS")) * time.Second,
			MonitorInterval: time.Duration(v.GetInt("MONITOR_INTERVAL_SECONDS")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			WebhookRPS:   v.GetFloat64("WEBHOOK_RATE_RPS"),
			WebhookBurst: v.GetInt("WEBHOOK_RATE_BURST"),
		},
	}

	return config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
