package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SchedulerConfig struct {
	WorkerGroup            string        `mapstructure:"worker_group"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	TaskTimeout            time.Duration `mapstructure:"task_timeout"`
	MaxConcurrent          int           `mapstructure:"max_concurrent"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	HeartbeatInterval      time.Duration `mapstructure:"heartbeat_interval"`
	LivenessWindow         time.Duration `mapstructure:"liveness_window"`
}

type PoolConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var errViper viper.ConfigFileNotFoundError
		if errors.As(err, &errViper) {
			slog.Warn("config file not found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config, %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed, %w", err)
	}

	slog.Info("configuration loaded successfully")
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "netcollect")
	viper.SetDefault("app.version", "1.0.0")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "netcollect")
	viper.SetDefault("database.password", "netcollect")
	viper.SetDefault("database.dbname", "netcollect")
	viper.SetDefault("database.sslmode", "disable")

	// redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// scheduler defaults
	viper.SetDefault("scheduler.worker_group", "")
	viper.SetDefault("scheduler.poll_interval", "1s")
	viper.SetDefault("scheduler.task_timeout", "30s")
	viper.SetDefault("scheduler.max_concurrent", 5)
	viper.SetDefault("scheduler.max_consecutive_failures", 5)
	viper.SetDefault("scheduler.heartbeat_interval", "15s")
	viper.SetDefault("scheduler.liveness_window", "1m")

	// connection pool defaults
	viper.SetDefault("pool.idle_ttl", "5m")
	viper.SetDefault("pool.sweep_interval", "30s")

	// logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	if cfg.Server.Mode != "debug" && cfg.Server.Mode != "release" {
		return fmt.Errorf("invalid server mode %s", cfg.Server.Mode)
	}

	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}

	if cfg.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if cfg.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll_interval must be positive")
	}

	if cfg.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler max_concurrent must be at least 1")
	}

	if cfg.Scheduler.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("scheduler max_consecutive_failures must be at least 1")
	}

	if cfg.Pool.IdleTTL <= 0 {
		return fmt.Errorf("pool idle_ttl must be positive")
	}

	return nil
}

// возвращает DSN строку для PostgreSQL
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// возвращает настройки для Redis клиента
func (r *RedisConfig) GetRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:            r.Addr,
		Password:        r.Password,
		DB:              r.DB,
		DisableIdentity: true,
	}
}
