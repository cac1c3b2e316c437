package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env        string `env:"ENV,default=dev"`
	DataDir    string `env:"DATA_DIR,default=./data"`
	StorageDir string `env:"STORAGE_DIR,default=./storage"`
	Server     struct {
		Port        string `env:"PORT,default=8080"`
		MetricsPort string `env:"METRICS_PORT,default=8081"`
		Origins     string `env:"ALLOWED_ORIGINS,default=*"`
	}
	Auth struct {
		TokenSecret string        `env:"TOKEN_SECRET,required"`
		TokenTTL    time.Duration `env:"TOKEN_TTL,default=1h"`
	}
	Delivery struct {
		PollTimeout   time.Duration `env:"POLL_TIMEOUT,default=10s"`
		SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=1s"`
	}
}

func Load() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process(context.Background(), config); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

func (c *Config) DataDirectory() string {
	return c.DataDir
}

func (c *Config) StorageDirectory() string {
	return c.StorageDir
}
