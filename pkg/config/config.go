package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Payroll  PayrollConfig
	Payments PaymentsConfig
	Mail     MailConfig
	OTP      OTPConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PayrollConfig governs the monthly accrual scheduler and salary caching.
type PayrollConfig struct {
	SchedulerEnabled  bool
	AccrualHour       int
	WorkerConcurrency int
	WorkerRetries     int
	ReportCacheTTL    time.Duration
}

// PaymentsConfig controls the one-off payment intake form.
type PaymentsConfig struct {
	Enabled          bool
	StorageDir       string
	MaxFileSizeBytes int64
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// MailConfig configures outgoing email delivery.
type MailConfig struct {
	SendgridKey string
	FromName    string
	FromEmail   string
}

// OTPConfig controls the password-reset verification codes.
type OTPConfig struct {
	TTL    time.Duration
	Length int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Payroll = PayrollConfig{
		SchedulerEnabled:  v.GetBool("ENABLE_PAYROLL_SCHEDULER"),
		AccrualHour:       v.GetInt("PAYROLL_ACCRUAL_HOUR"),
		WorkerConcurrency: v.GetInt("PAYROLL_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("PAYROLL_WORKER_RETRIES"),
		ReportCacheTTL:    parseDuration(v.GetString("SALARY_REPORT_CACHE_TTL"), 5*time.Minute),
	}

	maxReceiptSize := v.GetInt64("PAYMENTS_MAX_FILE_SIZE")
	if maxReceiptSize <= 0 {
		maxReceiptSize = 5 * 1024 * 1024
	}
	cfg.Payments = PaymentsConfig{
		Enabled:          v.GetBool("ENABLE_PAYMENTS"),
		StorageDir:       v.GetString("PAYMENTS_STORAGE_DIR"),
		MaxFileSizeBytes: maxReceiptSize,
		SignedURLSecret:  v.GetString("PAYMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("PAYMENTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Mail = MailConfig{
		SendgridKey: v.GetString("SENDGRID_API_KEY"),
		FromName:    v.GetString("MAIL_FROM_NAME"),
		FromEmail:   v.GetString("MAIL_FROM_EMAIL"),
	}

	cfg.OTP = OTPConfig{
		TTL:    parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
		Length: v.GetInt("OTP_LENGTH"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "coachdesk_academy")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("JWT_ISSUER", "coachdesk-academy")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_PAYROLL_SCHEDULER", false)
	v.SetDefault("PAYROLL_ACCRUAL_HOUR", 0)
	v.SetDefault("PAYROLL_WORKER_CONCURRENCY", 2)
	v.SetDefault("PAYROLL_WORKER_RETRIES", 3)
	v.SetDefault("SALARY_REPORT_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_PAYMENTS", true)
	v.SetDefault("PAYMENTS_STORAGE_DIR", "./uploads/pgn")
	v.SetDefault("PAYMENTS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("PAYMENTS_SIGNED_URL_SECRET", "dev_payments_secret")
	v.SetDefault("PAYMENTS_SIGNED_URL_TTL", "30m")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "CoachDesk Academy")
	v.SetDefault("MAIL_FROM_EMAIL", "no-reply@coachdesk.local")

	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_LENGTH", 6)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
