// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/greenpay/usage-limiter/internal/core/domain"
	"github.com/greenpay/usage-limiter/internal/pkg/validator"
)

// Config agrega as configurações da aplicação. As tags name trazem a variável de
// ambiente de origem e só rotulam os erros de validação.
type Config struct {
	App     AppConfig
	Server  ServerConfig
	Storage StorageConfig
	Usage   UsageConfig
}

type AppConfig struct {
	Env      string `name:"APP_ENV" validate:"required"`
	LogLevel string `name:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
}

type ServerConfig struct {
	Port           string `name:"SERVER_PORT" validate:"required,numeric"`
	IdentityHeader string `name:"IDENTITY_HEADER" validate:"required"`
}

type StorageConfig struct {
	Type          string `name:"STORAGE_TYPE" validate:"oneof=memory redis"`
	MaxIdentities int    `name:"USAGE_MAX_IDENTITIES" validate:"min=1"`
	Redis         RedisConfig
}

type RedisConfig struct {
	Host       string `name:"REDIS_HOST" validate:"required"`
	Port       int    `name:"REDIS_PORT" validate:"min=1,max=65535"`
	Password   string `name:"REDIS_PASSWORD"`
	DB         int    `name:"REDIS_DB" validate:"min=0"`
	KeyPrefix  string `name:"REDIS_KEY_PREFIX" validate:"required"`
	MaxRetries int    `name:"REDIS_MAX_RETRIES" validate:"min=1"`
}

type UsageConfig struct {
	MinuteLimit int `name:"USAGE_MINUTE_LIMIT" validate:"min=1"`
	DailyLimit  int `name:"USAGE_DAILY_LIMIT" validate:"min=1"`
}

// Limits converte as configurações de uso em limites de domínio.
func (u UsageConfig) Limits() domain.Limits {
	return domain.Limits{MinuteLimit: u.MinuteLimit, DailyLimit: u.DailyLimit}
}

func (c Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func Load() (Config, error) {
	_ = godotenv.Load()

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	usageConfig, err := buildUsageConfig()
	if err != nil {
		return Config{}, err
	}

	maxIdentities, err := getInt("USAGE_MAX_IDENTITIES", 100000)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			IdentityHeader: getEnv("IDENTITY_HEADER", "X-User-ID"),
		},
		Storage: StorageConfig{
			Type:          strings.ToLower(getEnv("STORAGE_TYPE", "memory")),
			MaxIdentities: maxIdentities,
			Redis:         redisConfig,
		},
		Usage: usageConfig,
	}

	if err := validator.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func buildRedisConfig() (RedisConfig, error) {
	port, err := getInt("REDIS_PORT", 6379)
	if err != nil {
		return RedisConfig{}, err
	}
	db, err := getInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	maxRetries, err := getInt("REDIS_MAX_RETRIES", 50)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Host:       getEnv("REDIS_HOST", "localhost"),
		Port:       port,
		Password:   os.Getenv("REDIS_PASSWORD"),
		DB:         db,
		KeyPrefix:  getEnv("REDIS_KEY_PREFIX", "usage"),
		MaxRetries: maxRetries,
	}, nil
}

func buildUsageConfig() (UsageConfig, error) {
	minuteLimit, err := getInt("USAGE_MINUTE_LIMIT", domain.DefaultMinuteLimit)
	if err != nil {
		return UsageConfig{}, err
	}
	dailyLimit, err := getInt("USAGE_DAILY_LIMIT", domain.DefaultDailyLimit)
	if err != nil {
		return UsageConfig{}, err
	}

	return UsageConfig{MinuteLimit: minuteLimit, DailyLimit: dailyLimit}, nil
}

func getInt(key string, fallback int) (int, error) {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
