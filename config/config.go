package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadENV loads environment variables from .env unless GO_ENV says otherwise
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(); err != nil {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV       string
	PORT         int
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration (rate-limit bookkeeping)
	REDIS_URL string
	// Usage event retention / archival
	USAGE_RETENTION_DAYS int
	SPACES_ACCESS_KEY    string
	SPACES_SECRET_KEY    string
	SPACES_BUCKET        string
	SPACES_REGION        string
	SPACES_ENDPOINT      string
}

func Get() (*EnvironmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	retentionDays, err := strconv.Atoi(os.Getenv("USAGE_RETENTION_DAYS"))
	if err != nil || retentionDays <= 0 {
		retentionDays = 90
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		PORT:         port,
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// Retention / archival
		USAGE_RETENTION_DAYS: retentionDays,
		SPACES_ACCESS_KEY:    os.Getenv("SPACES_ACCESS_KEY"),
		SPACES_SECRET_KEY:    os.Getenv("SPACES_SECRET_KEY"),
		SPACES_BUCKET:        os.Getenv("SPACES_BUCKET"),
		SPACES_REGION:        os.Getenv("SPACES_REGION"),
		SPACES_ENDPOINT:      os.Getenv("SPACES_ENDPOINT"),
	}

	return envVariables, nil
}
