package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadTestConfig loads the configuration for integration tests from TEST_-prefixed variables.
// When the test database is not configured it returns an empty Config, so DSN() is empty
// and callers can skip.
func LoadTestConfig() (*Config, error) {
	// Try loading .env from the project root and the working directory
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()

	cfg := &Config{}
	if os.Getenv("TEST_DB_HOST") == "" {
		return cfg, nil
	}

	db, err := loadDatabase("TEST_")
	if err != nil {
		return nil, err
	}
	cfg.Database = db

	cfg.JWT.Secret = stringEnv("TEST_JWT_SECRET", "integration-test-secret-0123456789abcdef")
	cfg.JWT.Issuer = "community-website"
	cfg.JWT.Audience = "community-website"
	if cfg.JWT.Expiry, err = durationEnv("TEST_JWT_EXPIRY", 0); err != nil {
		return nil, err
	}

	cfg.APIKey = os.Getenv("TEST_API_KEY")

	return cfg, nil
}
