// Package config loads and validates engine configuration from YAML files
// and environment variables, with optional hot-reload.
package config

import (
	"time"
)

// Config is the root configuration for the riskd service.
type Config struct {
	Environment string         `mapstructure:"environment" validate:"oneof=development staging production"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Risk        RiskConfig     `mapstructure:"risk"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig configures scenario and result persistence.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the optional result cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig configures the optional event publisher.
type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	RunCompleteTopic string   `mapstructure:"run_complete_topic"`
	BreachTopic      string   `mapstructure:"breach_topic"`
}

// EngineConfig bounds the simulation engine.
type EngineConfig struct {
	Workers      int `mapstructure:"workers" validate:"min=0"`
	BatchSize    int `mapstructure:"batch_size" validate:"min=0"`
	MaxPaths     int `mapstructure:"max_paths" validate:"min=0"`
	MaxSteps     int `mapstructure:"max_steps" validate:"min=0"`
	MaxAssets    int `mapstructure:"max_assets" validate:"min=0"`
	ResultMemory int `mapstructure:"result_memory" validate:"min=0"`
	RunHistory   int `mapstructure:"run_history" validate:"min=0"`
}

// RiskConfig holds portfolio risk defaults and limits.
type RiskConfig struct {
	DefaultConfidence float64 `mapstructure:"default_confidence" validate:"gt=0,lt=1"`
	MaxPortfolioVaR   float64 `mapstructure:"max_portfolio_var" validate:"min=0"`
	HistoryWindow     int     `mapstructure:"history_window" validate:"min=0"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.GracefulShutdownTimeout == 0 {
		cfg.Server.GracefulShutdownTimeout = 15 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "riskd.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 1 * time.Hour
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.RunCompleteTopic == "" {
		cfg.Kafka.RunCompleteTopic = "risk.run.completed"
	}
	if cfg.Kafka.BreachTopic == "" {
		cfg.Kafka.BreachTopic = "risk.var.breach"
	}

	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.BatchSize == 0 {
		cfg.Engine.BatchSize = 10_000
	}
	if cfg.Engine.MaxPaths == 0 {
		cfg.Engine.MaxPaths = 5_000_000
	}
	if cfg.Engine.MaxSteps == 0 {
		cfg.Engine.MaxSteps = 10_000
	}
	if cfg.Engine.MaxAssets == 0 {
		cfg.Engine.MaxAssets = 64
	}
	if cfg.Engine.ResultMemory == 0 {
		cfg.Engine.ResultMemory = 256
	}
	if cfg.Engine.RunHistory == 0 {
		cfg.Engine.RunHistory = 256
	}

	if cfg.Risk.DefaultConfidence == 0 {
		cfg.Risk.DefaultConfidence = 0.95
	}
	if cfg.Risk.HistoryWindow == 0 {
		cfg.Risk.HistoryWindow = 252
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
