package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Vapi      VapiConfig
	HTTP      HTTPConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// URL is either a postgres:// connection string or a SQLite path
	// (optionally prefixed with sqlite://).
	URL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval           time.Duration
	MaxConcurrentCalls int
	CallTimeout        time.Duration
	ShutdownGrace      time.Duration
}

type VapiConfig struct {
	// APIKey and PhoneNumberID may be empty: the call client then fails each
	// call with a configuration reason instead of the process refusing to boot.
	APIKey        string
	PhoneNumberID string
	BaseURL       string
}

type HTTPConfig struct {
	CORSAllowedOrigins []string
}

type LogConfig struct {
	Level string
}

func LoadAll() (*Config, error) {
	dbURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	interval, err := getEnvInt("SCHED_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	maxCalls, err := getEnvInt("SCHED_MAX_CONCURRENT_CALLS", 4)
	if err != nil {
		return nil, err
	}
	callTimeout, err := getEnvInt("SCHED_CALL_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	grace, err := getEnvInt("SCHED_SHUTDOWN_GRACE_SECONDS", 10)
	if err != nil {
		return nil, err
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			URL: dbURL,
		},
		Vapi: VapiConfig{
			APIKey:        os.Getenv("VAPI_API_KEY"),
			PhoneNumberID: os.Getenv("VAPI_PHONE_NUMBER_ID"),
			BaseURL:       getEnv("VAPI_BASE_URL", "https://api.vapi.ai"),
		},
		Scheduler: SchedulerConfig{
			Interval:           time.Duration(interval) * time.Second,
			MaxConcurrentCalls: maxCalls,
			CallTimeout:        time.Duration(callTimeout) * time.Second,
			ShutdownGrace:      time.Duration(grace) * time.Second,
		},
		Redis: redisCfg,
		HTTP: HTTPConfig{
			CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	if cfg.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHED_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Scheduler.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("SCHED_MAX_CONCURRENT_CALLS must be > 0")
	}
	if cfg.Scheduler.CallTimeout <= 0 {
		return fmt.Errorf("SCHED_CALL_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Scheduler.ShutdownGrace <= 0 {
		return fmt.Errorf("SCHED_SHUTDOWN_GRACE_SECONDS must be > 0")
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		return fmt.Errorf("REDIS_TTL_SECONDS must be > 0")
	}
	return nil
}

func mustEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
