package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName  string
	SQLitePath   string
	RedisAddr    string
	KafkaBrokers []string
	UseKafka     bool

	OutboxPeriod time.Duration
	OutboxLimit  int
	CacheTTL     time.Duration

	SagaLeaseTTL   time.Duration
	SagaRetention  time.Duration // edad máxima de instancias terminadas antes del cleanup
	CleanupPeriod  time.Duration
	InboxTTL       time.Duration // retención del registro de duplicados en Redis
	ClickHouseAddr string
	ClickHouseDB   string
	ArchiveToCH    bool
	HTTPPort       string
}

func LoadConfig() *Config {
	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	getBool := func(key string, fallback bool) bool {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err == nil {
				return b
			}
		}
		return fallback
	}

	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")

	return &Config{
		ServiceName:  getEnv("SERVICE_NAME", "sagalab"),
		SQLitePath:   getEnv("SQLITE_PATH", "./sagalab.db"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: kafkaBrokers,
		UseKafka:     getBool("USE_KAFKA", false),

		OutboxPeriod: 1 * time.Second,
		OutboxLimit:  50,
		CacheTTL:     5 * time.Minute,

		SagaLeaseTTL:   time.Minute,
		SagaRetention:  24 * time.Hour,
		CleanupPeriod:  time.Hour,
		InboxTTL:       7 * 24 * time.Hour,
		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "sagalab"),
		ArchiveToCH:    getBool("ARCHIVE_TO_CLICKHOUSE", false),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
	}
}
