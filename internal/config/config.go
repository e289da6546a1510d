package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8090"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "guildsync"
	DefaultPGSSLMode    = "disable"
	DefaultEventChannel = "guildsync_events"
	DefaultResyncSpec   = "17 */4 * * *"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Discord  DiscordConfig  `toml:"discord"`
	WebApp   WebAppConfig   `toml:"webapp"`
	Sync     SyncConfig     `toml:"sync"`
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

type DiscordConfig struct {
	BotToken string `toml:"bot_token"`
	// CallTimeoutSeconds bounds every outbound Discord API call.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
}

type WebAppConfig struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type SyncConfig struct {
	// EventChannel is the Postgres NOTIFY channel the web app signals after
	// inserting outbox rows.
	EventChannel string `toml:"event_channel"`
	Workers      int    `toml:"workers"`
	// ResyncCron schedules the periodic full structure sync safety net.
	ResyncCron string `toml:"resync_cron"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (c DiscordConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c AuthConfig) ExpiresIn() time.Duration {
	d, err := time.ParseDuration(c.JWTExpiresIn)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c WebAppConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
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
		Sync: SyncConfig{
			EventChannel: DefaultEventChannel,
			Workers:      4,
			ResyncCron:   DefaultResyncSpec,
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
