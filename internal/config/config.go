package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr         string `yaml:"addr"`
	DatabaseURL  string `yaml:"database_url"`
	DataFile     string `yaml:"data_file"`
	RedisURL     string `yaml:"redis_url"`
	RelayChannel string `yaml:"relay_channel"`
	JWTSecret    string `yaml:"jwt_secret"`
	RequireToken bool   `yaml:"require_token"`
	CORSOrigin   string `yaml:"cors_origin"`
	LogLevel     string `yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		Addr:         ":8000",
		DataFile:     "./data/document.json",
		RelayChannel: "collab:document",
		JWTSecret:    "collab-dev-secret",
		CORSOrigin:   "*",
		LogLevel:     "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// COLLAB_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("COLLAB_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Addr = getenv("API_ADDR", cfg.Addr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DataFile = getenv("COLLAB_DATA_FILE", cfg.DataFile)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.RelayChannel = getenv("COLLAB_RELAY_CHANNEL", cfg.RelayChannel)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.RequireToken = getenvBool("COLLAB_REQUIRE_TOKEN", cfg.RequireToken)
	cfg.CORSOrigin = getenv("COLLAB_CORS_ORIGIN", cfg.CORSOrigin)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
