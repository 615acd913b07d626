package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort    int
	MetricsPort int
	ServiceName string

	// device store
	StoreBackend        string
	DatabaseURL         string
	FirebaseDatabaseURL string
	FirebaseCredentials string
	FirebasePollEvery   time.Duration

	KafkaBrokers       []string
	NotificationEvents string
	OTLPEndpoint       string

	// mail transport
	MailProvider     string
	MailFrom         string
	SendGridEndpoint string
	SendGridAPIKey   string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string

	// message generation
	GenerationBackend string
	GeminiAPIKey      string
	GeminiModel       string
	CatalogPath       string
	StatementBaseURL  string
	GenerateRPS       float64
	GenerateBurst     int

	JWTSecret     string
	TokenTTL      time.Duration
	AdminPassword string
}

func LoadConfig(service string) (*Config, error) {
	cfg := &Config{ServiceName: service}

	httpPort, err := getEnvInt("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = httpPort

	metricsPort, err := getEnvInt("METRICS_PORT", httpPort+1000)
	if err != nil {
		return nil, err
	}
	cfg.MetricsPort = metricsPort

	cfg.StoreBackend = getEnv("STORE_BACKEND", "memory")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.FirebaseDatabaseURL = os.Getenv("FIREBASE_DATABASE_URL")
	cfg.FirebaseCredentials = os.Getenv("FIREBASE_CREDENTIALS_FILE")
	pollEvery, err := getEnvDuration("FIREBASE_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.FirebasePollEvery = pollEvery

	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.NotificationEvents = getEnv("NOTIFICATION_EVENTS_TOPIC", "notification.events")

	cfg.MailProvider = getEnv("MAIL_PROVIDER", "sendgrid")
	cfg.SendGridEndpoint = getEnv("SENDGRID_ENDPOINT", "https://api.sendgrid.com")
	cfg.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.MailFrom = getEnv("MAIL_FROM", os.Getenv("SENDGRID_FROM_EMAIL"))
	cfg.SMTPHost = getEnv("SMTP_HOST", "smtp.gmail.com")
	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	cfg.SMTPPort = smtpPort
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")

	cfg.GenerationBackend = getEnv("GENERATION_BACKEND", "template")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnv("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.CatalogPath = os.Getenv("MESSAGE_CATALOG")
	cfg.StatementBaseURL = getEnv("STATEMENT_BASE_URL", "https://example.com")

	rps, err := getEnvFloat("GENERATE_RPS", 2)
	if err != nil {
		return nil, err
	}
	cfg.GenerateRPS = rps
	burst, err := getEnvInt("GENERATE_BURST", 5)
	if err != nil {
		return nil, err
	}
	cfg.GenerateBurst = burst

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	ttl, err := getEnvDuration("TOKEN_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.TokenTTL = ttl
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}
