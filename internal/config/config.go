package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config carries every runtime knob of the service. Values come from the
// environment, optionally seeded from a local .env file.
type Config struct {
	AppEnv   string `env:"ENERKPI_APP_ENV" envDefault:"local"`
	HTTPAddr string `env:"ENERKPI_HTTP_ADDR" envDefault:":8080"`

	PGDSN           string `env:"ENERKPI_PG_DSN"`
	BootstrapSchema bool   `env:"ENERKPI_DB_BOOTSTRAP" envDefault:"false"`

	JWTSecret string        `env:"ENERKPI_JWT_SECRET"`
	JWTIssuer string        `env:"ENERKPI_JWT_ISSUER" envDefault:"enerkpi"`
	AccessTTL time.Duration `env:"ENERKPI_JWT_ACCESS_TTL" envDefault:"15m"`

	ScorerURL     string        `env:"ENERKPI_SCORER_URL" envDefault:"http://localhost:5000"`
	ScorerTimeout time.Duration `env:"ENERKPI_SCORER_TIMEOUT" envDefault:"5s"`
	NLUURL        string        `env:"ENERKPI_NLU_URL" envDefault:"http://localhost:5000/api"`
	NLUTimeout    time.Duration `env:"ENERKPI_NLU_TIMEOUT" envDefault:"5s"`

	// Hour of day (UTC) at which the daily anomaly scan fires.
	ScanHour int `env:"ENERKPI_SCAN_HOUR" envDefault:"2"`

	RateBurst     int `env:"ENERKPI_RATE_BURST" envDefault:"20"`
	RatePerSecond int `env:"ENERKPI_RATE_PER_SECOND" envDefault:"10"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
