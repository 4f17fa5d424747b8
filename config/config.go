package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the api process.
type Config struct {
	ListenAddr      string        `yaml:"listenAddr"`
	DatabaseURL     string        `yaml:"databaseUrl"`
	JWTSecret       string        `yaml:"jwtSecret"`
	OutboxInterval  time.Duration `yaml:"outboxInterval"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		OutboxInterval:  time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadFromPath reads a YAML config file, merges it over the defaults, and
// applies environment overrides on top. A missing or unreadable file is not an
// error: the process can run on env vars alone.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

// Merge copies the non-zero fields of src over dst.
func Merge(dst *Config, src Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.DatabaseURL != "" {
		dst.DatabaseURL = src.DatabaseURL
	}
	if src.JWTSecret != "" {
		dst.JWTSecret = src.JWTSecret
	}
	if src.OutboxInterval != 0 {
		dst.OutboxInterval = src.OutboxInterval
	}
	if src.ShutdownTimeout != 0 {
		dst.ShutdownTimeout = src.ShutdownTimeout
	}
}

// ApplyEnvOverrides lets environment variables win over file values.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("OUTBOX_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OutboxInterval = d
		}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
}
