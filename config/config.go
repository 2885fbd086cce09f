package config

import (
	"github.com/mailgate/mailgate/internal/logger"
	"github.com/mailgate/mailgate/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12333"`
	AdminAPIKey string `env:"ADMIN_API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"MAILGATE_POSTGRES_HOST,required"`
	Port            string `env:"MAILGATE_POSTGRES_PORT,required"`
	User            string `env:"MAILGATE_POSTGRES_USER,required"`
	DBName          string `env:"MAILGATE_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILGATE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILGATE_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILGATE_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILGATE_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILGATE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILGATE_POSTGRES_SSL_MODE" envDefault:"disable"`
}

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
}
