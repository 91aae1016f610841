package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "chatdesk"
	DefaultPGSSLMode    = "disable"
	DefaultAIBaseURL    = "https://api.openai.com/v1"
	DefaultAIModel      = "gpt-4o-mini"
	DefaultTimeZone     = "America/Managua"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Provider ProviderConfig `toml:"provider"`
	AI       AIConfig       `toml:"ai"`
	Monitor  MonitorConfig  `toml:"monitor"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ProviderConfig configures the external messaging provider API.
type ProviderConfig struct {
	BaseURL        string `toml:"base_url"`
	AccessToken    string `toml:"access_token"`
	PhoneNumberID  string `toml:"phone_number_id"`
	VerifyToken    string `toml:"verify_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AIConfig configures the reply generator.
type AIConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	SystemPrompt   string `toml:"system_prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ExpiresIn parses JWTExpiresIn, falling back to 24 hours.
func (a AuthConfig) ExpiresIn() time.Duration {
	return parseDurationOr(a.JWTExpiresIn, 24*time.Hour)
}

// MonitorConfig configures the inactivity monitor. The short threshold
// defaults mirror the original deployment values.
type MonitorConfig struct {
	TimeZone     string `toml:"time_zone"`
	WarnAfter    string `toml:"warn_after"`
	CloseAfter   string `toml:"close_after"`
	WarningText  string `toml:"warning_text"`
	ClosingText  string `toml:"closing_text"`
	WelcomeText  string `toml:"welcome_text"`
	FallbackText string `toml:"fallback_text"`
}

// WarnThreshold parses WarnAfter, falling back to one minute.
func (m MonitorConfig) WarnThreshold() time.Duration {
	return parseDurationOr(m.WarnAfter, time.Minute)
}

// CloseThreshold parses CloseAfter, falling back to two minutes.
func (m MonitorConfig) CloseThreshold() time.Duration {
	return parseDurationOr(m.CloseAfter, 2*time.Minute)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DSN renders a pgx-compatible connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Provider: ProviderConfig{
			TimeoutSeconds: 20,
		},
		AI: AIConfig{
			BaseURL:        DefaultAIBaseURL,
			Model:          DefaultAIModel,
			SystemPrompt:   "Eres un asistente de soporte al cliente. Responde de forma breve y amable.",
			TimeoutSeconds: 30,
		},
		Monitor: MonitorConfig{
			TimeZone:     DefaultTimeZone,
			WarnAfter:    "1m",
			CloseAfter:   "2m",
			WarningText:  "¿Sigues ahí? Esta conversación se cerrará pronto por inactividad.",
			ClosingText:  "Hemos cerrado esta conversación por inactividad. Escríbenos de nuevo cuando quieras.",
			WelcomeText:  "¡Hola! Gracias por escribirnos. ¿En qué podemos ayudarte?",
			FallbackText: "Lo sentimos, no pudimos procesar tu mensaje en este momento. Un agente te atenderá pronto.",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
