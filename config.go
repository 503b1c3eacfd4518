package gateway

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Bondifuzz/api-gateway/mq"
)

// Config holds dispatch behaviour settings.
type Config struct {
	// InteractiveTimeout is the per-call deadline for SubmitJob.
	InteractiveTimeout time.Duration

	// BackgroundTimeout is the per-call deadline for SubmitBackground.
	BackgroundTimeout time.Duration

	// MaxRetries is how many times a background submission is retried
	// after a transport error. Interactive submissions are never retried.
	MaxRetries int

	// SweepInterval is how often the correlation broker checks pending
	// request deadlines.
	SweepInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		InteractiveTimeout: 30 * time.Second,
		BackgroundTimeout:  5 * time.Minute,
		MaxRetries:         3,
		SweepInterval:      100 * time.Millisecond,
		ShutdownTimeout:    30 * time.Second,
	}
}

// envConfig is the flat environment schema covering both dispatch
// behaviour and queue connectivity.
type envConfig struct {
	Brokers      []string `env:"GATEWAY_KAFKA_BROKERS" envSeparator:","`
	CommandTopic string   `env:"GATEWAY_COMMAND_TOPIC" envDefault:"api-gateway.commands"`
	ResultTopic  string   `env:"GATEWAY_RESULT_TOPIC" envDefault:"api-gateway.results"`
	GroupID      string   `env:"GATEWAY_GROUP_ID" envDefault:"api-gateway"`

	InteractiveTimeout time.Duration `env:"GATEWAY_INTERACTIVE_TIMEOUT" envDefault:"30s"`
	BackgroundTimeout  time.Duration `env:"GATEWAY_BACKGROUND_TIMEOUT" envDefault:"5m"`
	MaxRetries         int           `env:"GATEWAY_MAX_RETRIES" envDefault:"3"`
	SweepInterval      time.Duration `env:"GATEWAY_SWEEP_INTERVAL" envDefault:"100ms"`
	ShutdownTimeout    time.Duration `env:"GATEWAY_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// ConfigFromEnv reads dispatch and queue configuration from GATEWAY_*
// environment variables.
func ConfigFromEnv() (Config, mq.Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, mq.Config{}, fmt.Errorf("gateway: parse environment: %w", err)
	}

	cfg := Config{
		InteractiveTimeout: ec.InteractiveTimeout,
		BackgroundTimeout:  ec.BackgroundTimeout,
		MaxRetries:         ec.MaxRetries,
		SweepInterval:      ec.SweepInterval,
		ShutdownTimeout:    ec.ShutdownTimeout,
	}
	mqCfg := mq.Config{
		Brokers:      ec.Brokers,
		CommandTopic: ec.CommandTopic,
		ResultTopic:  ec.ResultTopic,
		GroupID:      ec.GroupID,
	}
	return cfg, mqCfg, nil
}
