// Package config loads AgentPulse settings from agentpulse.yaml, applies
// environment overrides and supports hot-reload of the seeded agents on SIGHUP.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alghanim/agentpulse/models"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML structure.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Database  DatabaseConfig     `yaml:"database"`
	Relay     RelayConfig        `yaml:"relay"`
	History   HistoryConfig      `yaml:"history"`
	Alerts    AlertsConfig       `yaml:"alerts"`
	Analytics AnalyticsConfig    `yaml:"analytics"`
	Auth      AuthConfig         `yaml:"auth"`
	Log       LogConfig          `yaml:"log"`
	Agents    []models.SeedAgent `yaml:"agents"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig selects the SQL driver. Driver is "postgres" or "sqlite".
// When DSN is empty for postgres it is assembled from the discrete fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString returns the DSN handed to sql.Open.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return "agentpulse.db"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RelayConfig struct {
	BaseURL               string        `yaml:"base_url"`
	APIKey                string        `yaml:"api_key"`
	Model                 string        `yaml:"model"`
	Timeout               time.Duration `yaml:"timeout"`
	HistorySize           int           `yaml:"history_size"`
	MaxConcurrent         int64         `yaml:"max_concurrent"`
	DefaultAgentID        int64         `yaml:"default_agent_id"`
	DefaultAgent          string        `yaml:"default_agent"`
	SystemPrompt          string        `yaml:"system_prompt"`
	DefaultLanguage       string        `yaml:"default_language"`
	MinLanguageConfidence float64       `yaml:"min_language_confidence"`
}

// HistoryConfig picks where chat context lives: "memory" or "redis".
type HistoryConfig struct {
	Backend       string        `yaml:"backend"`
	MaxMessages   int           `yaml:"max_messages"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type AlertsConfig struct {
	SMTP          SMTPConfig    `yaml:"smtp"`
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

type SMTPConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	ImplicitTLS bool     `yaml:"implicit_tls"`
}

// Enabled reports whether enough is configured to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != "" && len(s.To) > 0
}

type AnalyticsConfig struct {
	TokensPerExecution int     `yaml:"tokens_per_execution"`
	CostPerToken       float64 `yaml:"cost_per_token"`
	Timezone           string  `yaml:"timezone"`
}

// Location resolves Timezone, falling back to the process local zone.
func (a AnalyticsConfig) Location() *time.Location {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Password     string        `yaml:"password"`
	PasswordHash string        `yaml:"password_hash"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const defaultSystemPrompt = `You are an intelligent recommendation agent.
You only answer when the question is a RECOMMENDATION request.
Take the whole previous conversation into account to stay consistent.
You must ALWAYS answer in the detected language: %s.`

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			User:    "agentpulse",
			Name:    "agentpulse",
			SSLMode: "disable",
		},
		Relay: RelayConfig{
			BaseURL:               "https://openrouter.ai/api/v1",
			Model:                 "mistralai/mistral-7b-instruct",
			Timeout:               8 * time.Second,
			HistorySize:           10,
			MaxConcurrent:         4,
			DefaultAgentID:        15,
			SystemPrompt:          defaultSystemPrompt,
			DefaultLanguage:       "en",
			MinLanguageConfidence: 0.80,
		},
		History: HistoryConfig{
			Backend:     "memory",
			MaxMessages: 50,
			RedisAddr:   "localhost:6379",
			TTL:         24 * time.Hour,
		},
		Alerts: AlertsConfig{
			SMTP:    SMTPConfig{Port: 465, ImplicitTLS: true},
			Timeout: 15 * time.Second,
		},
		Analytics: AnalyticsConfig{
			TokensPerExecution: 30,
			CostPerToken:       0.0001,
			Timezone:           "Local",
		},
		Auth: AuthConfig{
			Enabled:  true,
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ResolvePath returns the config file to load: the explicit flag, then
// AGENTPULSE_CONFIG, then the first existing well-known location.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv("AGENTPULSE_CONFIG"); p != "" {
		return p
	}
	candidates := []string{
		"/app/agentpulse.yaml",
		"./agentpulse.yaml",
		"../agentpulse.yaml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)

	c.Relay.BaseURL = getEnv("LLM_BASE_URL", c.Relay.BaseURL)
	c.Relay.APIKey = getEnv("LLM_API_KEY", c.Relay.APIKey)
	c.Relay.Model = getEnv("LLM_MODEL", c.Relay.Model)

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.History.RedisAddr = addr
		c.History.Backend = "redis"
	}
	c.History.RedisPassword = getEnv("REDIS_PASSWORD", c.History.RedisPassword)

	c.Alerts.SMTP.Host = getEnv("SMTP_HOST", c.Alerts.SMTP.Host)
	c.Alerts.SMTP.Port = getEnvInt("SMTP_PORT", c.Alerts.SMTP.Port)
	c.Alerts.SMTP.Username = getEnv("SMTP_USERNAME", c.Alerts.SMTP.Username)
	c.Alerts.SMTP.Password = getEnv("SMTP_PASSWORD", c.Alerts.SMTP.Password)
	c.Alerts.SMTP.From = getEnv("ALERT_EMAIL_FROM", c.Alerts.SMTP.From)
	if to := os.Getenv("ALERT_EMAIL_TO"); to != "" {
		c.Alerts.SMTP.To = splitList(to)
	}
	c.Alerts.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alerts.WebhookURL)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Password = getEnv("DASHBOARD_PASSWORD", c.Auth.Password)
	c.Auth.PasswordHash = getEnv("DASHBOARD_PASSWORD_HASH", c.Auth.PasswordHash)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.History.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("history.backend must be memory or redis, got %q", c.History.Backend)
	}
	if c.Relay.Timeout <= 0 {
		return errors.New("relay.timeout must be positive")
	}
	if c.Relay.MaxConcurrent <= 0 {
		return errors.New("relay.max_concurrent must be positive")
	}
	if c.Relay.HistorySize < 0 {
		return errors.New("relay.history_size must not be negative")
	}
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		switch a.Status {
		case "", models.StatusActive, models.StatusInactive:
		default:
			return fmt.Errorf("agents[%d]: status must be %s or %s, got %q", i, models.StatusActive, models.StatusInactive, a.Status)
		}
	}
	return nil
}

// WatchSIGHUP reloads path on every SIGHUP and hands the new config to fn
// until ctx is done.
func WatchSIGHUP(ctx context.Context, path string, fn func(*Config, error)) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP)
	defer signal.Stop(sigs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			fn(Load(path))
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
