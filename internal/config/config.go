package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Reservation ReservationConfig
	Gateway     GatewayConfig
	Promo       PromoConfig
	QRSecret    string
	JWTSecret   string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderCreated    string
	TicketExpired   string
	TicketCheckedIn string
	PaymentSettled  string
}

type ReservationConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type GatewayConfig struct {
	BaseURL string
}

type PromoConfig struct {
	ServiceURL string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCreated:    getEnv("KAFKA_TOPIC_ORDER_CREATED", "ticketly.order.created"),
				TicketExpired:   getEnv("KAFKA_TOPIC_TICKET_EXPIRED", "ticketly.ticket.expired"),
				TicketCheckedIn: getEnv("KAFKA_TOPIC_TICKET_CHECKEDIN", "ticketly.ticket.checkedin"),
				PaymentSettled:  getEnv("KAFKA_TOPIC_PAYMENT_SETTLED", "ticketly.payment.settled"),
			},
		},
		Reservation: ReservationConfig{
			TTL:           time.Duration(getEnvInt("RESERVATION_TTL_MINUTES", 15)) * time.Minute,
			SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Gateway: GatewayConfig{
			BaseURL: getEnv("PAYMENT_GATEWAY_URL", "http://localhost:9090"),
		},
		Promo: PromoConfig{
			ServiceURL: getEnv("PROMO_SERVICE_URL", ""),
		},
		QRSecret:  getEnv("QR_SECRET_KEY", "dev-qr-secret"),
		JWTSecret: getEnv("JWT_SECRET", "dev-jwt-secret"),
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
