package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
		Secure bool   `yaml:"secure"`
	} `yaml:"session"`
	Exercise struct {
		Duration string `yaml:"duration"`
		CacheTTL string `yaml:"cache_ttl"`
		Seed     bool   `yaml:"seed"`
	} `yaml:"exercise"`
	Webhook struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Timezone string `yaml:"timezone"`
	} `yaml:"webhook"`
}

// Load reads YAML config from path and overlays environment variables.
// A missing file is not an error; a .env file in the working directory is honored.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Exercise.Seed = true

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	setString(&cfg.Session.Secret, "SESSION_SECRET")
	setString(&cfg.Session.TTL, "SESSION_TTL")
	if v := os.Getenv("SESSION_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Session.Secure = b
		}
	}
	setString(&cfg.Exercise.Duration, "EXERCISE_DURATION")
	setString(&cfg.Exercise.CacheTTL, "EXERCISE_CACHE_TTL")
	if v := os.Getenv("EXERCISE_SEED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Exercise.Seed = b
		}
	}
	setString(&cfg.Webhook.URL, "DISCORD_WEBHOOK_URL")
	setString(&cfg.Webhook.Timeout, "WEBHOOK_TIMEOUT")
	setString(&cfg.Webhook.Timezone, "WEBHOOK_TIMEZONE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
