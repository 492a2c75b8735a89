package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	// NATSUrl — адрес брокера для message patterns; пустое значение
	// переключает сервис на in-memory заглушки каталога и платежей.
	NATSUrl string
	// PostgresDSN — строка подключения к хранилищу; пустое значение
	// переключает сервис на in-memory хранилище.
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую; пустое значение
	// отключает event plane (settlement и outbox publication).
	KafkaBrokers string
	// MetricsAddr — адрес HTTP-сервера метрик и health checks.
	MetricsAddr string
	// ConsumerGroup — группа Kafka consumer'а подтверждений оплаты.
	ConsumerGroup string
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		NATSUrl:       "",
		PostgresDSN:   "",
		KafkaBrokers:  "",
		MetricsAddr:   ":9090",
		ConsumerGroup: "orders-ms",
	}
}

// LoadConfig читает настройки из .env (если есть) и переменных окружения.
func LoadConfig() Config {
	// .env нужен только для локальной разработки, его отсутствие не ошибка.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("ORDERS_NATS_URL")); v != "" {
		cfg.NATSUrl = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERS_POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERS_KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERS_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERS_CONSUMER_GROUP")); v != "" {
		cfg.ConsumerGroup = v
	}
	return cfg
}
