package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort           string
	ServiceApiPort    string
	CorsAllowedOrigin string

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS S3 (KYC documents)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// Lead pricing and acceptance windows
	LeadPricePaise       int
	LeadCurrency         string
	FreeWindow           time.Duration
	PaidWindow           time.Duration
	PaymentReminderAfter time.Duration

	// Razorpay
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string

	// Geo lookups
	IpapiURL       string
	NominatimURL   string
	GeoCacheTTL    time.Duration
	GeoHTTPTimeout time.Duration

	// Kafka
	KafkaBrokers      []string
	KafkaInquiryTopic string

	// IDs
	SnowflakeNode int64

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitRPS       int
	RateLimitBurst     int
	RateLimitSoftRPS   int
	RateLimitSoftBurst int

	// Captcha (Cloudflare Turnstile)
	TurnstileSecretKey string
	TurnstileVerifyURL string
	CaptchaTokenTTL    time.Duration
}

// MockPayments reports whether payment orders should be simulated.
func (c *Config) MockPayments() bool {
	return c.RazorpayKeyID == "" || c.RazorpayKeyID == "rzp_test_dummy_key" || c.RazorpayKeySecret == ""
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "leadhub")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CorsAllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", "*")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@leadhub.example.com")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "ap-south-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.LeadCurrency = getEnv("LEAD_CURRENCY", "INR")
	cfg.RazorpayKeyID = getEnv("RAZORPAY_KEY_ID", "")
	cfg.RazorpayKeySecret = getEnv("RAZORPAY_KEY_SECRET", "")
	cfg.RazorpayBaseURL = getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	cfg.IpapiURL = getEnv("IPAPI_URL", "https://ipapi.co")
	cfg.NominatimURL = getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	cfg.KafkaInquiryTopic = getEnv("KAFKA_INQUIRY_TOPIC", "inquiry-events")
	cfg.AppName = getEnv("APP_NAME", "LeadHub")
	cfg.TurnstileSecretKey = getEnv("TURNSTILE_SECRET_KEY", "")
	cfg.TurnstileVerifyURL = getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")

	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxDimension, err = getInt("IMAGE_MAX_DIMENSION", "2048"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxSizeMB, err = getInt("IMAGE_MAX_SIZE_MB", "10"); err != nil {
		return nil, err
	}
	if cfg.LeadPricePaise, err = getInt("LEAD_PRICE_PAISE", "900"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getInt("RATE_LIMIT_RPS", "10"); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", "20"); err != nil {
		return nil, err
	}
	if cfg.RateLimitSoftRPS, err = getInt("RATE_LIMIT_SOFT_RPS", "1"); err != nil {
		return nil, err
	}
	if cfg.RateLimitSoftBurst, err = getInt("RATE_LIMIT_SOFT_BURST", "5"); err != nil {
		return nil, err
	}

	jwtTTLSeconds, err := getInt("JWT_TTL_SECONDS", "3600")
	if err != nil {
		return nil, err
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	freeMinutes, err := getInt("FREE_WINDOW_MINUTES", "60")
	if err != nil {
		return nil, err
	}
	cfg.FreeWindow = time.Duration(freeMinutes) * time.Minute

	paidHours, err := getInt("PAID_WINDOW_HOURS", "12")
	if err != nil {
		return nil, err
	}
	cfg.PaidWindow = time.Duration(paidHours) * time.Hour
	if cfg.PaidWindow < cfg.FreeWindow {
		return nil, fmt.Errorf("PAID_WINDOW_HOURS must not be shorter than FREE_WINDOW_MINUTES")
	}

	reminderMinutes, err := getInt("PAYMENT_REMINDER_MINUTES", "30")
	if err != nil {
		return nil, err
	}
	cfg.PaymentReminderAfter = time.Duration(reminderMinutes) * time.Minute

	geoCacheSeconds, err := getInt("GEO_CACHE_TTL_SECONDS", "3600")
	if err != nil {
		return nil, err
	}
	cfg.GeoCacheTTL = time.Duration(geoCacheSeconds) * time.Second

	geoTimeoutSeconds, err := getInt("GEO_HTTP_TIMEOUT_SECONDS", "5")
	if err != nil {
		return nil, err
	}
	cfg.GeoHTTPTimeout = time.Duration(geoTimeoutSeconds) * time.Second

	captchaMinutes, err := getInt("CAPTCHA_TOKEN_TTL_MINUTES", "30")
	if err != nil {
		return nil, err
	}
	cfg.CaptchaTokenTTL = time.Duration(captchaMinutes) * time.Minute

	cfg.SnowflakeNode, err = strconv.ParseInt(getEnv("SNOWFLAKE_NODE", "1"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SNOWFLAKE_NODE: %w", err)
	}

	return cfg, nil
}
