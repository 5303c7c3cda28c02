// Package config carries the two configuration layers: an immutable process
// environment snapshot loaded at startup, and the runtime-tunable
// system_config row read through a small TTL cache with explicit
// invalidation.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env is the process environment snapshot taken once at startup.
type Env struct {
	Port          string
	DBDriver      string
	MySQLDSN      string
	MySQLPoolSize int
	SQLitePath    string
	DataDir       string
	JWTSecret     string
	AdminEmail    string
	AdminPassword string
	TrustProxy    bool
}

// LoadEnv reads .env when present, then resolves every setting with a
// development-friendly default.
func LoadEnv() Env {
	_ = godotenv.Load()
	return Env{
		Port:          getenv("PORT", "8080"),
		DBDriver:      getenv("DB_TYPE", "sqlite"),
		MySQLDSN:      getenv("MYSQL_DSN", "root@tcp(localhost:3306)/sanhub"),
		MySQLPoolSize: getint("MYSQL_POOL_SIZE", 20),
		SQLitePath:    getenv("SQLITE_PATH", "./data/sanhub.db"),
		DataDir:       getenv("DATA_DIR", "./data"),
		JWTSecret:     getenv("JWT_SECRET", "supersecretdev"),
		AdminEmail:    getenv("ADMIN_EMAIL", "admin@sanhub.local"),
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		TrustProxy:    os.Getenv("TRUST_PROXY") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
