// Package config загружает конфигурацию сервисов из yaml-файла,
// путь к которому передается через переменную окружения CONFIG_PATH.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура настроек всех бинарей проекта.
type Config struct {
	Env                     string        `yaml:"env" env-default:"local"`
	StorageConnectionString string        `yaml:"storage_connection_string"`
	MigrationsPath          string        `yaml:"migrations_path" env-default:"./migrations"`
	RabbitURL               string        `yaml:"rabbit_url"`
	RabbitMaxRetries        int           `yaml:"rabbit_max_retries" env-default:"5"`
	RabbitRetryDelay        time.Duration `yaml:"rabbit_retry_delay" env-default:"5s"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Billing                 `yaml:"billing"`
	SMTP                    `yaml:"smtp"`
	// TrialLimits лимиты действий пробного периода по платформам.
	// Внешняя конфигурация, а не константы кода: продукты задают свои
	// лимиты независимо (например, rxguard: 100 проверок препаратов).
	TrialLimits map[string]int `yaml:"trial_limits"`
}

// HTTPServer настройки HTTP-сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// JWTToken настройки выпуска токенов доступа.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Billing настройки клиента биллингового провайдера.
type Billing struct {
	BillingAPIURL    string        `yaml:"billing_api_url"`
	BillingSecretKey string        `yaml:"billing_secret_key"`
	BillingTimeout   time.Duration `yaml:"billing_timeout" env-default:"10s"`
	// BillingCacheTTL время жизни кеша ответов биллинга по email клиента.
	BillingCacheTTL time.Duration `yaml:"billing_cache_ttl" env-default:"5m"`
}

// SMTP настройки почтового транспорта для уведомлений.
type SMTP struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port" env-default:"587"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
}

// MustLoad читает конфиг по пути из CONFIG_PATH.
// Любая ошибка на этом этапе фатальна: без конфига сервис не стартует.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
