package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type PlaidConfig struct {
	ClientID string `envconfig:"CLIENT_ID"`
	Secret   string `envconfig:"SECRET"`
	Env      string `envconfig:"ENV" default:"sandbox"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
	Prefix string `envconfig:"PREFIX" default:"famfin"`
}

type Config struct {
	Port             string        `envconfig:"PORT" default:"8080"`
	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret        string        `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiry        time.Duration `envconfig:"JWT_EXPIRY" default:"168h"`
	DemoMode         bool          `envconfig:"DEMO_MODE" default:"false"`
	TOTPIssuer       string        `envconfig:"TOTP_ISSUER" default:"Famfin"`
	DefaultRulesPath string        `envconfig:"DEFAULT_RULES_PATH"`
	CacheMaxCost     int64         `envconfig:"CACHE_MAX_COST" default:"10000"`
	AllowedOrigins   []string      `envconfig:"ALLOWED_ORIGINS" default:"https://famfin.app,https://www.famfin.app"`
	Plaid            PlaidConfig   `envconfig:"PLAID"`
	Log              LogConfig     `envconfig:"LOG"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	// Load .env file if present
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	switch cfg.Plaid.Env {
	case "sandbox", "production":
	default:
		return Config{}, fmt.Errorf("invalid PLAID_ENV %q", cfg.Plaid.Env)
	}

	return cfg, nil
}
