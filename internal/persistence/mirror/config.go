package mirror

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config selects the S3-compatible bucket that receives copies of snapshots
// and run archives. Mirroring is off unless an endpoint is set.
type Config struct {
	Endpoint        string        `env:"STATECRAFT_MIRROR_ENDPOINT"`
	Bucket          string        `env:"STATECRAFT_MIRROR_BUCKET"`
	Region          string        `env:"STATECRAFT_MIRROR_REGION" envDefault:"auto"`
	AccessKeyID     string        `env:"STATECRAFT_MIRROR_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"STATECRAFT_MIRROR_SECRET_ACCESS_KEY"`
	Prefix          string        `env:"STATECRAFT_MIRROR_PREFIX"`
	Workers         int           `env:"STATECRAFT_MIRROR_WORKERS" envDefault:"2"`
	QueueCapacity   int           `env:"STATECRAFT_MIRROR_QUEUE" envDefault:"256"`
	EnqueueWait     time.Duration `env:"STATECRAFT_MIRROR_ENQUEUE_WAIT" envDefault:"25ms"`
	MaxAttempts     int           `env:"STATECRAFT_MIRROR_MAX_ATTEMPTS" envDefault:"4"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Endpoint) != "" }
