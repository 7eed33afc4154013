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
	PendingStoreRedis    = "redis"
	PendingStoreDynamoDB = "dynamodb"

	AccountStoreMongo    = "mongo"
	AccountStoreDynamoDB = "dynamodb"
	AccountStoreSQLite   = "sqlite"

	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	DynamoDB DynamoDBConfig
	SQLite   SQLiteConfig
	SMTP     SMTPConfig
	JWT      JWTConfig
	OTP      OTPConfig

	PendingStore string
	AccountStore string
	MailDriver   string
	StoreTimeout time.Duration
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
}

type RedisConfig struct {
	URL      string
	Endpoint string
	Password string
	DB       int
}

type MongoConfig struct {
	URL      string
	Database string
}

type DynamoDBConfig struct {
	Endpoint        string
	Region          string
	TableName       string
	AccessKeyID     string
	SecretAccessKey string
}

type SQLiteConfig struct {
	Path string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
}

type JWTConfig struct {
	SecretKey string
	Expiry    time.Duration
	Issuer    string
}

type OTPConfig struct {
	Expiry time.Duration
}

// LoadDotEnv reads a .env file into the process environment if one exists.
// It reports whether a file was loaded.
func LoadDotEnv(paths ...string) bool {
	return godotenv.Load(paths...) == nil
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Mongo: MongoConfig{
			URL:      getEnv("MONGO_URL", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "ghclone"),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "GHCloneAuth"),

			AccessKeyID:     getEnv("DYNAMODB_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMODB_SECRET_ACCESS_KEY", ""),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "ghclone.db"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", os.Getenv("GMAIL_USER")),
			Password: getEnv("SMTP_PASS", os.Getenv("GMAIL_PASS")),
			FromName: getEnv("MAIL_FROM_NAME", "Github Clone"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
			Expiry:    getEnvAsDuration("JWT_EXPIRY", time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "ghclone-auth"),
		},
		OTP: OTPConfig{
			Expiry: getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
		},
		PendingStore: strings.ToLower(getEnv("PENDING_STORE", PendingStoreRedis)),
		AccountStore: strings.ToLower(getEnv("ACCOUNT_STORE", AccountStoreMongo)),
		MailDriver:   strings.ToLower(getEnv("MAIL_DRIVER", MailDriverSMTP)),
		StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with. Every check
// here happens once at startup so nothing is discovered per request.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes (256 bits)")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}
	if c.OTP.Expiry <= 0 {
		return fmt.Errorf("OTP_EXPIRY must be positive")
	}

	switch c.PendingStore {
	case PendingStoreRedis, PendingStoreDynamoDB:
	default:
		return fmt.Errorf("unknown PENDING_STORE %q", c.PendingStore)
	}

	switch c.AccountStore {
	case AccountStoreMongo, AccountStoreDynamoDB, AccountStoreSQLite:
	default:
		return fmt.Errorf("unknown ACCOUNT_STORE %q", c.AccountStore)
	}

	switch c.MailDriver {
	case MailDriverSMTP:
		if c.SMTP.User == "" || c.SMTP.Password == "" {
			return fmt.Errorf("SMTP_USER and SMTP_PASS are required when MAIL_DRIVER=smtp")
		}
	case MailDriverLog:
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
