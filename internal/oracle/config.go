package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds the oracle settings read from the environment.
type EnvConfig struct {
	Kind        string        `env:"STATECRAFT_ORACLE" envDefault:"llm"`
	APIKey      string        `env:"STATECRAFT_ORACLE_API_KEY"`
	BaseURL     string        `env:"STATECRAFT_ORACLE_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AgentModel  string        `env:"STATECRAFT_ORACLE_AGENT_MODEL" envDefault:"gpt-4o-mini"`
	WorldModel  string        `env:"STATECRAFT_ORACLE_WORLD_MODEL" envDefault:"gpt-4o"`
	Temperature float64       `env:"STATECRAFT_ORACLE_TEMPERATURE" envDefault:"0.7"`
	HTTPTimeout time.Duration `env:"STATECRAFT_ORACLE_HTTP_TIMEOUT" envDefault:"120s"`
	MaxRetries  int           `env:"STATECRAFT_ORACLE_MAX_RETRIES" envDefault:"2"`
	ScriptPath  string        `env:"STATECRAFT_ORACLE_SCRIPT"`
}

func LoadEnvConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kind = strings.ToLower(strings.TrimSpace(cfg.Kind))
	return cfg, nil
}

// LLMConfig converts the environment settings into client settings.
func (c EnvConfig) LLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		AgentModel:  c.AgentModel,
		WorldModel:  c.WorldModel,
		Temperature: c.Temperature,
		HTTPTimeout: c.HTTPTimeout,
		MaxRetries:  c.MaxRetries,
	}
}
