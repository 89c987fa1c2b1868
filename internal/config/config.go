package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	Port    string
	GinMode string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	SessionSecret string

	JWTSecret string
	JWTTTL    time.Duration

	MongoURI      string
	MongoDatabase string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string
	UploadMaxBytes int64

	PushGatewayURL   string
	PushGatewayToken string
	SendgridAPIKey   string
	MailFrom         string
	DefaultLocale    string

	RollbarToken string
	OpenAIAPIKey string

	LoginRatePerMinute int
	OutboundTimeout    time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("config: failed to load .env: %v", err)
		}
	}

	return &Config{
		Env:     getEnv("ENV", "development"),
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "circuit"),
		DBPassword: getEnv("DB_PASSWORD", "circuitpassword"),
		DBName:     getEnv("DB_NAME", "circuit"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),

		JWTSecret: getEnv("JWT_SECRET", "default-jwt-secret-change-me"),
		JWTTTL:    getDuration("JWT_TTL", 7*24*time.Hour),

		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "circuit"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "circuit-uploads"),
		MinioUseSSL:    getBool("MINIO_USE_SSL", false),
		MinioPublicURL: strings.TrimRight(getEnv("MINIO_PUBLIC_URL", ""), "/"),
		UploadMaxBytes: int64(getInt("UPLOAD_MAX_BYTES", 10<<20)),

		PushGatewayURL:   getEnv("PUSH_GATEWAY_URL", ""),
		PushGatewayToken: getEnv("PUSH_GATEWAY_TOKEN", ""),
		SendgridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		MailFrom:         getEnv("MAIL_FROM", "noreply@circuit.local"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),

		RollbarToken: getEnv("ROLLBAR_TOKEN", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		LoginRatePerMinute: getInt("LOGIN_RATE_PER_MINUTE", 10),
		OutboundTimeout:    getDuration("OUTBOUND_TIMEOUT", 10*time.Second),
	}
}

// IsProduction reports whether the server runs in gin release mode.
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
