package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageMinIO = "minio"
)

type Config struct {
	DatabaseURL    string
	DatabaseDriver string
	RedisURL       string
	JWTSecret      string
	ServerPort     string
	Environment    string

	// JWTExpiry of zero issues tokens without an exp claim.
	JWTExpiry time.Duration

	// Upload storage
	StorageBackend    string
	UploadRoot        string
	PublicBaseURL     string
	MaxUploadBytes    int64
	UploadJournalPath string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIOPublicURL string

	// Access policy
	UploadRequiresAuth     bool
	PlaylistOwnershipCheck bool

	CORSAllowedOrigins []string

	// Rate limiting
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitBlockTime   time.Duration
}

func Load() *Config {
	// Try to load .env file, but don't fail if it doesn't exist
	// (Docker containers use environment variables directly)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	port := getEnv("SERVER_PORT", "")
	if port == "" {
		port = getEnv("PORT", "3000")
	}
	if !strings.Contains(port, ":") {
		port = ":" + port
	}

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", DriverPostgres),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ServerPort:     port,
		Environment:    getEnv("ENVIRONMENT", "development"),
		JWTExpiry:      getEnvAsDuration("JWT_EXPIRY", "168h"),

		StorageBackend:    getEnv("STORAGE_BACKEND", StorageLocal),
		UploadRoot:        getEnv("UPLOAD_ROOT", "."),
		PublicBaseURL:     strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		MaxUploadBytes:    int64(getEnvAsInt("MAX_UPLOAD_BYTES", 50<<20)),
		UploadJournalPath: getEnv("UPLOAD_JOURNAL_PATH", "data/uploads.journal"),

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "songshare"),
		MinIOUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		MinIOPublicURL: strings.TrimRight(os.Getenv("MINIO_PUBLIC_URL"), "/"),

		UploadRequiresAuth:     getEnvAsBool("UPLOAD_REQUIRES_AUTH", false),
		PlaylistOwnershipCheck: getEnvAsBool("PLAYLIST_OWNERSHIP_CHECK", true),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		RateLimitMaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		RateLimitBlockTime:   getEnvAsDuration("RATE_LIMIT_BLOCK_TIME", "5m"),
	}

	return cfg
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTExpiry < 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must not be negative"))
	}

	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	switch c.StorageBackend {
	case StorageLocal:
	case StorageMinIO:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DatabaseDSN returns the connection string, defaulting SQLite to a local file.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL == "" && c.DatabaseDriver == DriverSQLite {
		return "data/songshare.db"
	}
	return c.DatabaseURL
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAsInt retrieves environment variable as int with default value
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid %s value, using default: %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Invalid %s value, using default: %t", key, defaultVal)
		return defaultVal
	}
	return val
}

// getEnvAsDuration retrieves environment variable as duration with default value.
// A bare "0" is accepted and means zero.
func getEnvAsDuration(key string, defaultVal string) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		valStr = defaultVal
	}
	duration, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Invalid %s value, using default: %s", key, defaultVal)
		duration, _ = time.ParseDuration(defaultVal)
	}
	return duration
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
