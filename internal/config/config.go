// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port string

	RedisAddr      string // empty disables the action historian
	RedisDB        int
	HistorianQueue string
	BatchSize      int
	FlushInterval  time.Duration
	Inactivity     time.Duration

	DatabaseURL string // empty disables result persistence

	TokenExpire      time.Duration
	JWTKeyPath       string // empty generates a key pair per process
	MinPlayers       int
	MinPlayersToStay int

	LogLevel  string
	LogFormat string
}

// Load reads every setting, falling back to defaults.
func Load() Config {
	return Config{
		Port:             getEnv("PORT", "8080"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		HistorianQueue:   getEnv("HISTORIAN_QUEUE_NAME", "uno_actions"),
		BatchSize:        getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		FlushInterval:    time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		Inactivity:       time.Duration(getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,
		DatabaseURL:      databaseURL(),
		TokenExpire:      time.Duration(getEnvInt("TOKEN_EXPIRE_TIME", 86400)) * time.Second,
		JWTKeyPath:       os.Getenv("JWT_PRIVATE_KEY_PATH"),
		MinPlayers:       getEnvInt("MIN_PLAYERS", 2),
		MinPlayersToStay: getEnvInt("MIN_PLAYERS_TO_STAY", 2),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the PG_* variables.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("PG_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		getEnv("PG_PORT", "5432"),
		getEnv("PG_DATABASE", "uno"),
	)
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown LOG_LEVEL %q, using info", c.LogLevel)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
