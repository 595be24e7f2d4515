package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bashkirian/kpi-engine/internal/engine"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Config структура для конфигурации приложения
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig конфигурация сервера
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec"`
}

// StorageConfig источник событий: memory, postgres или sqlite
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig конфигурация Redis. Пустой addr - кэш выключен
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTLSec   int    `mapstructure:"ttl_sec"`
}

// EngineConfig значения по умолчанию для запросов к движку
type EngineConfig struct {
	SLAMinutes  float64 `mapstructure:"sla_minutes"`
	Granularity string  `mapstructure:"granularity"`
	Limit       int     `mapstructure:"limit"`
	RankLimit   int     `mapstructure:"rank_limit"`
	Timezone    string  `mapstructure:"timezone"`
}

// LogConfig mode: development или production; file включает ротацию
type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// LoadConfig загружает конфигурацию из файла и переменных окружения.
// Если path пустой, config.yaml ищется в стандартных каталогах.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/kpi-engine")
	}

	// Устанавливаем значения по умолчанию
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout_sec", 15)
	v.SetDefault("server.write_timeout_sec", 30)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_sec", 600)
	v.SetDefault("engine.sla_minutes", 15)
	v.SetDefault("engine.granularity", string(models.GranularityDay))
	v.SetDefault("engine.limit", 10)
	v.SetDefault("engine.rank_limit", 50)
	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("log.mode", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// Читаем переменные окружения
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	// Для вложенных структур
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Без файла работаем на значениях по умолчанию и переменных окружения
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("invalid engine.timezone: %w", err)
	}
	if c.Redis.TTLSec < 0 {
		return errors.New("redis.ttl_sec must not be negative")
	}
	opts, err := c.EngineOptions()
	if err != nil {
		return err
	}
	return opts.Validate()
}

// EngineOptions значения по умолчанию движка из секции engine
func (c *Config) EngineOptions() (engine.Options, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		SLAMinutes:  c.Engine.SLAMinutes,
		Granularity: models.Granularity(c.Engine.Granularity),
		Limit:       c.Engine.Limit,
		RankLimit:   c.Engine.RankLimit,
		Location:    loc,
	}, nil
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSec) * time.Second
}
