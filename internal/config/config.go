package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	AutoMigrate  bool
	LockTimeout  time.Duration
	TxTimeout    time.Duration
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string
	TraceRatio   float64
	LogLevel     string

	NotifyTimeout   time.Duration
	TicketTransport string
	SMTP            SMTPConfig

	CacheTTL           time.Duration
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	RedirectPath       string
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

const (
	TransportLog    = "log"
	TransportSMTP   = "smtp"
	TransportRabbit = "rabbit"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	smtpUser := os.Getenv("SMTP_USER")
	return &Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		AutoMigrate:  getenv("AUTO_MIGRATE", "false") == "true",
		LockTimeout:  parseDur(os.Getenv("LOCK_TIMEOUT"), 5*time.Second),
		TxTimeout:    parseDur(os.Getenv("TX_TIMEOUT"), 10*time.Second),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getenv("MONGO_DB", "music_space"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceRatio:   parseRatio(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 1),
		LogLevel:     getenv("LOG_LEVEL", "info"),

		NotifyTimeout:   parseDur(os.Getenv("NOTIFY_TIMEOUT"), 20*time.Second),
		TicketTransport: getenv("TICKET_TRANSPORT", TransportLog),
		SMTP: SMTPConfig{
			Host: getenv("SMTP_HOST", "smtp.gmail.com"),
			Port: atoi(os.Getenv("SMTP_PORT"), 587),
			User: smtpUser,
			Pass: os.Getenv("SMTP_PASS"),
			From: getenv("MAIL_FROM", smtpUser),
		},

		CacheTTL:           parseDur(os.Getenv("CACHE_TTL"), 30*time.Second),
		IdempotencyTTL:     parseDur(os.Getenv("IDEMPOTENCY_TTL"), time.Hour),
		RateLimitPerMinute: atoi(os.Getenv("RATE_LIMIT_PER_MINUTE"), 100),
		RedirectPath:       getenv("BOOKING_REDIRECT_PATH", "/pages/booking-success.html"),
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDur(s string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(s)
	if d <= 0 {
		return def
	}
	return d
}

func parseRatio(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}
