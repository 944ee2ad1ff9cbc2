// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	RabbitMQURL             string `yaml:"rabbitmq_url"`
	JWTToken                `yaml:"jwttoken"`
	Panel                   `yaml:"panel"`
	Subscription            `yaml:"subscription"`
	YooKassa                `yaml:"yookassa"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8443"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном админского API
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Panel описывает подключение к 3x-ui панели и параметры Reality,
// которые попадают в ссылку подключения.
type Panel struct {
	APIURL         string        `yaml:"api_url" env:"PANEL_API_URL"`
	BasePath       string        `yaml:"base_path" env-default:"/panel"`
	Username       string        `yaml:"username" env:"PANEL_USERNAME"`
	Password       string        `yaml:"password" env:"PANEL_PASSWORD"`
	Host           string        `yaml:"host"`
	InboundID      int           `yaml:"inbound_id" env-default:"1"`
	RequestTimeout time.Duration `yaml:"request_timeout" env-default:"15s"`

	RealityPublicKey   string `yaml:"reality_public_key"`
	RealityFingerprint string `yaml:"reality_fingerprint" env-default:"chrome"`
	RealitySNI         string `yaml:"reality_sni"`
	RealityShortID     string `yaml:"reality_short_id"`
	RealitySpiderX     string `yaml:"reality_spider_x" env-default:"/"`
}

// Subscription содержит тарифные и жизненные параметры подписки.
type Subscription struct {
	TrialDays     int           `yaml:"trial_days" env-default:"3"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1h"`
	// Цена за период в рублях, ключ - количество месяцев.
	Prices map[int]int `yaml:"prices"`
	// Начальный метод оплаты: yookassa | balance | both.
	// Дальше значение живёт в runtime-холдере и меняется админским API.
	PaymentMethod string `yaml:"payment_method" env-default:"both"`
}

// YooKassa настройки платёжного провайдера.
type YooKassa struct {
	ShopID        string `yaml:"shop_id" env:"YOOKASSA_SHOP_ID"`
	SecretKey     string `yaml:"secret_key" env:"YOOKASSA_SECRET_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"YOOKASSA_WEBHOOK_SECRET"`
	ReturnURL     string `yaml:"return_url"`
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
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
	if cfg.Prices == nil {
		cfg.Prices = map[int]int{1: 149, 3: 296, 6: 439, 12: 559}
	}
	return &cfg
}
