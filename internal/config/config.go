package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	Password      string // Empty disables the login page
	ModelPath     string
	StaticDir     string
	LogDirectory  string
	DatabasePath  string
	SnapshotDir   string
	SnapshotLimit int // Snapshots kept per flush
	FlushInterval int // Seconds between recorder flushes
	ShutdownGrace int // Seconds the server keeps serving the final widget state
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// A missing .env is fine; variables may come from the shell.
	_ = godotenv.Load()

	return &Config{
		Port:          getEnvAsInt("PORT", 8080),
		Password:      getEnv("PASSWORD", ""),
		ModelPath:     getEnv("MODEL_PATH", "yolov8n.onnx"),
		StaticDir:     getEnv("STATIC_DIR", "static"),
		LogDirectory:  getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:  getEnv("DB_PATH", filepath.Join(".", "data", "sessions.db")),
		SnapshotDir:   getEnv("SNAPSHOT_DIR", filepath.Join(".", "snapshots")),
		SnapshotLimit: getEnvAsInt("SNAPSHOT_LIMIT", 10),
		FlushInterval: getEnvAsInt("FLUSH_INTERVAL", 30),
		ShutdownGrace: getEnvAsInt("SHUTDOWN_GRACE", 2),
	}
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
