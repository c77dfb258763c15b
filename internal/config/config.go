package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	Database    Database    `envPrefix:"DATABASE_"`
	MercadoPago MercadoPago `envPrefix:"MERCADOPAGO_"`
	Auth        Auth        `envPrefix:"AUTH_"`
	Redis       Redis       `envPrefix:"REDIS_"`
	Kafka       Kafka       `envPrefix:"KAFKA_"`
	Otel        Otel        `envPrefix:"OTEL_"`
	Workers     Workers     `envPrefix:"WORKER_"`
}

type Database struct {
	Driver          string        `env:"DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	URL             string        `env:"URL"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"50"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
}

type MercadoPago struct {
	BaseApiURL    string        `env:"BASE_API_URL" envDefault:"https://api.mercadopago.com"`
	AccessToken   string        `env:"ACCESS_TOKEN"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Currency      string        `env:"CURRENCY" envDefault:"MXN"`
}

type Auth struct {
	JWTSecret         string        `env:"JWT_SECRET"`
	AccessTokenExpiry time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
}

type Redis struct {
	Addr string `env:"ADDR"` // empty disables checkout idempotency keys
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","` // empty disables the outbox relay
	Topic   string   `env:"TOPIC" envDefault:"partstore.events"`
}

type Otel struct {
	Endpoint string `env:"ENDPOINT"` // empty disables trace export
}

type Workers struct {
	OrderExpiry     time.Duration `env:"ORDER_EXPIRY" envDefault:"24h"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
