package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	OtelEnabled        bool
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "memory"
	Connection string
}

type AuthConfig struct {
	JwtSecret string
}

type RealtimeConfig struct {
	SendBufferSize   int
	MaxMessageSize   int64
	PongWait         time.Duration
	WriteWait        time.Duration
	MaxContentLength int
	ProfileCacheTTL  time.Duration
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "5000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/realtime.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			OtelEnabled:        getEnv("OTEL_ENABLED", "false") == "true",
		},
		Database: DatabaseConfig{
			Driver:     getEnv("STORE_DRIVER", StoreDriverPostgres),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Realtime: RealtimeConfig{
			SendBufferSize:   getEnvAsInt("WS_SEND_BUFFER", 256),
			MaxMessageSize:   int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 16*1024)),
			PongWait:         getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
			WriteWait:        getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second),
			MaxContentLength: getEnvAsInt("MAX_CONTENT_LENGTH", 4000),
			ProfileCacheTTL:  getEnvAsDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
