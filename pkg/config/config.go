package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Solver    SolverConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig bounds each constraint-solver invocation.
type SolverConfig struct {
	TimeBudget time.Duration
	Workers    int
}

// SchedulerConfig governs timetable generation defaults.
type SchedulerConfig struct {
	DefaultStrategy string
	DefaultDays     []int
	DefaultActor    string
	ScheduleCache   time.Duration
	RepairQueueSize int
}

// Load reads configuration from .env and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		TimeBudget: parseDuration(v.GetString("SOLVER_TIME_BUDGET"), 30*time.Second),
		Workers:    v.GetInt("SOLVER_WORKERS"),
	}

	cfg.Scheduler = SchedulerConfig{
		DefaultStrategy: v.GetString("SCHEDULER_DEFAULT_STRATEGY"),
		DefaultDays:     parseDays(v.GetString("SCHEDULER_DEFAULT_DAYS")),
		DefaultActor:    v.GetString("SCHEDULER_DEFAULT_ACTOR"),
		ScheduleCache:   parseDuration(v.GetString("SCHEDULER_CACHE_TTL"), 5*time.Minute),
		RepairQueueSize: v.GetInt("SCHEDULER_REPAIR_QUEUE_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "uni_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SOLVER_TIME_BUDGET", "30s")
	v.SetDefault("SOLVER_WORKERS", 4)

	v.SetDefault("SCHEDULER_DEFAULT_STRATEGY", "sequential")
	v.SetDefault("SCHEDULER_DEFAULT_DAYS", "1,2,3,4,5")
	v.SetDefault("SCHEDULER_DEFAULT_ACTOR", "system")
	v.SetDefault("SCHEDULER_CACHE_TTL", "5m")
	v.SetDefault("SCHEDULER_REPAIR_QUEUE_SIZE", 16)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseDays(raw string) []int {
	parts := splitAndTrim(raw)
	days := make([]int, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "1", "2", "3", "4", "5", "6", "7":
			days = append(days, int(part[0]-'0'))
		}
	}
	if len(days) == 0 {
		return []int{1, 2, 3, 4, 5}
	}
	return days
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
