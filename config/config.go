package config

import (
	"os"
)

// Config holds the process-level configuration. Per-job settings live
// in the migration spec file.
type Config struct {
	// Checkpoint state
	StateDir    string
	DatabaseURL string

	// Server
	ServerPort string

	// Source cloud
	AWSRegion string

	// Destination cloud
	GCPProject     string
	GCPCredentials string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		StateDir:       getEnv("MIGRATOR_STATE_DIR", defaultStateDir()),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		GCPProject:     getEnv("GCP_PROJECT", ""),
		GCPCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vm-migrator"
	}
	return home + "/.vm-migrator"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
