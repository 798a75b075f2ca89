// Package config loads EVENTBEACON_* settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Sender holds settings shared by every command that dispatches events.
type Sender struct {
	Domain    string        `env:"EVENTBEACON_DOMAIN"`
	Transport string        `env:"EVENTBEACON_TRANSPORT" envDefault:"image"`
	Timeout   time.Duration `env:"EVENTBEACON_TIMEOUT" envDefault:"10s"`
	QueueSize int           `env:"EVENTBEACON_QUEUE_SIZE" envDefault:"64"`
	// OTelEndpoint enables span export when non-empty.
	OTelEndpoint string `env:"EVENTBEACON_OTEL_ENDPOINT"`
}

// Collector holds settings for the development collector.
type Collector struct {
	Addr   string `env:"EVENTBEACON_COLLECTOR_ADDR" envDefault:"127.0.0.1:8087"`
	DBPath string `env:"EVENTBEACON_COLLECTOR_DB" envDefault:"eventbeacon.db"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
