// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Role cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	Database            DatabaseConfig
	Redis               RedisConfig
	Server              ServerConfig
	Logging             LoggingConfig
	CORS                CORSConfig
	JWT                 JWTConfig
	Password            PasswordConfig
	RoleCache           RoleCacheConfig
	APIKey              string
	AdminBootstrapEmail string
	RateLimitPerMinute  int
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
}

// PasswordConfig holds password hashing settings
type PasswordConfig struct {
	Iterations int
}

// RoleCacheConfig holds role directory cache settings
type RoleCacheConfig struct {
	Backend     string
	AbsoluteTTL time.Duration
	SlidingTTL  time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}
	var err error

	// Database configuration
	if cfg.Database, err = loadDatabase(""); err != nil {
		return nil, err
	}

	// Server configuration
	if cfg.Server.Port, err = intEnv("SERVER_PORT", 8080); err != nil {
		return nil, err
	}

	// Logging configuration
	cfg.Logging.Level = stringEnv("LOG_LEVEL", "info")

	// CORS configuration
	cfg.CORS.AllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	// JWT configuration
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	cfg.JWT.Issuer = stringEnv("JWT_ISSUER", "community-website")
	cfg.JWT.Audience = stringEnv("JWT_AUDIENCE", "community-website")
	if cfg.JWT.Expiry, err = durationEnv("JWT_EXPIRY", 60*time.Minute); err != nil {
		return nil, err
	}

	// Password hashing
	if cfg.Password.Iterations, err = intEnv("PASSWORD_ITERATIONS", 310000); err != nil {
		return nil, err
	}
	if cfg.Password.Iterations < 100000 {
		return nil, fmt.Errorf("PASSWORD_ITERATIONS must be at least 100000")
	}

	// Role cache configuration
	cfg.RoleCache.Backend = strings.ToLower(stringEnv("ROLE_CACHE_BACKEND", CacheBackendMemory))
	if cfg.RoleCache.Backend != CacheBackendMemory && cfg.RoleCache.Backend != CacheBackendRedis {
		return nil, fmt.Errorf("invalid ROLE_CACHE_BACKEND %q: expected %q or %q", cfg.RoleCache.Backend, CacheBackendMemory, CacheBackendRedis)
	}
	if cfg.RoleCache.AbsoluteTTL, err = durationEnv("ROLE_CACHE_ABSOLUTE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RoleCache.SlidingTTL, err = durationEnv("ROLE_CACHE_SLIDING_TTL", 30*time.Minute); err != nil {
		return nil, err
	}

	// Redis configuration (only used by the redis cache backend)
	cfg.Redis.Host = stringEnv("REDIS_HOST", "localhost")
	if cfg.Redis.Port, err = intEnv("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD") // optional
	if cfg.Redis.DB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// API Key configuration (optional, guards operational endpoints)
	cfg.APIKey = os.Getenv("API_KEY")

	// Administrator bootstrap (optional)
	cfg.AdminBootstrapEmail = strings.TrimSpace(os.Getenv("ADMIN_BOOTSTRAP_EMAIL"))

	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", 100); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	if c.Database.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// loadDatabase reads the required database settings, with every key prefixed by prefix
func loadDatabase(prefix string) (DatabaseConfig, error) {
	var db DatabaseConfig

	for _, field := range []struct {
		key  string
		dest *string
	}{
		{"DB_HOST", &db.Host},
		{"DB_USER", &db.User},
		{"DB_PASSWORD", &db.Password},
		{"DB_NAME", &db.DBName},
	} {
		value := os.Getenv(prefix + field.key)
		if value == "" {
			return db, fmt.Errorf("%s%s is required", prefix, field.key)
		}
		*field.dest = value
	}

	portStr := os.Getenv(prefix + "DB_PORT")
	if portStr == "" {
		return db, fmt.Errorf("%sDB_PORT is required", prefix)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return db, fmt.Errorf("invalid %sDB_PORT: %w", prefix, err)
	}
	db.Port = port

	return db, nil
}

// parseOrigins splits a comma-separated origin list, defaulting to all origins
func parseOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func stringEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
