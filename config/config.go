package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Accounts backends.
const (
	AccountsNone     = "none"
	AccountsRedis    = "redis"
	AccountsPostgres = "postgres"
)

type Config struct {
	Server      ServerConfig
	App         AppConfig
	Workspace   WorkspaceConfig
	Accounts    AccountsConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Maintenance MaintenanceConfig
	Limits      LimitsConfig
}

type ServerConfig struct {
	Port               string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

type WorkspaceConfig struct {
	Dir            string
	ProjectVersion int
	AppsBaseURL    string
}

type AccountsConfig struct {
	Backend string
}

type DatabaseConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MaintenanceConfig struct {
	JanitorSchedule string
	JanitorMaxAge   time.Duration
}

type LimitsConfig struct {
	UploadRatePerSec float64
	UploadBurst      int
	MaxUploadBytes   int64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Workspace: WorkspaceConfig{
			Dir:            getEnv("RVD_WORKSPACE_DIR", "./workspace"),
			ProjectVersion: getEnvAsInt("RVD_PROJECT_VERSION", 3),
			AppsBaseURL:    strings.TrimRight(getEnv("RVD_APPS_BASE_URL", ""), "/"),
		},
		Accounts: AccountsConfig{
			Backend: strings.ToLower(getEnv("ACCOUNTS_BACKEND", AccountsNone)),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DB_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "restcomm"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Maintenance: MaintenanceConfig{
			JanitorSchedule: getEnv("JANITOR_SCHEDULE", "0 */15 * * * *"),
			JanitorMaxAge:   getEnvAsDuration("JANITOR_MAX_AGE", time.Hour),
		},
		Limits: LimitsConfig{
			UploadRatePerSec: getEnvAsFloat("UPLOAD_RATE_PER_SEC", 5),
			UploadBurst:      getEnvAsInt("UPLOAD_BURST", 10),
			MaxUploadBytes:   int64(getEnvAsInt("MAX_UPLOAD_BYTES", 64<<20)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if strings.TrimSpace(c.Workspace.Dir) == "" {
		return fmt.Errorf("RVD_WORKSPACE_DIR is required")
	}

	if c.Workspace.ProjectVersion < 1 {
		return fmt.Errorf("RVD_PROJECT_VERSION must be at least 1")
	}

	switch c.Accounts.Backend {
	case AccountsNone, AccountsRedis:
	case AccountsPostgres:
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("DB_DSN or DB_HOST is required for the postgres accounts backend")
		}
	default:
		return fmt.Errorf("ACCOUNTS_BACKEND must be one of none, redis, postgres; got %q", c.Accounts.Backend)
	}

	if c.Limits.UploadRatePerSec <= 0 || c.Limits.UploadBurst < 1 {
		return fmt.Errorf("UPLOAD_RATE_PER_SEC and UPLOAD_BURST must be positive")
	}

	return nil
}

// PostgresDSN returns DB_DSN, or a DSN built from the DB_* parts.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
