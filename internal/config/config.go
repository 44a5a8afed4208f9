package config

import (
	"fmt"
	"os"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	DiscordToken     string
	DiscordAppID     string
	DiscordPublicKey string

	TwitchClientID       string
	TwitchClientSecret   string
	TwitchWebhookSecret  string
	TwitchCallbackURL    string
	KickClientID         string
	KickClientSecret     string
	KickWebhookPublicKey string
	KickCallbackURL      string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		DiscordToken:         getEnv("DISCORD_TOKEN", ""),
		DiscordAppID:         getEnv("DISCORD_APP_ID", ""),
		DiscordPublicKey:     getEnv("DISCORD_PUBLIC_KEY", ""),
		TwitchClientID:       getEnv("TWITCH_CLIENT_ID", ""),
		TwitchClientSecret:   getEnv("TWITCH_CLIENT_SECRET", ""),
		TwitchWebhookSecret:  getEnv("TWITCH_WEBHOOK_SECRET", ""),
		TwitchCallbackURL:    getEnv("TWITCH_CALLBACK_URL", ""),
		KickClientID:         getEnv("KICK_CLIENT_ID", ""),
		KickClientSecret:     getEnv("KICK_CLIENT_SECRET", ""),
		KickWebhookPublicKey: getEnv("KICK_WEBHOOK_PUBLIC_KEY", ""),
		KickCallbackURL:      getEnv("KICK_CALLBACK_URL", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.DiscordAppID == "" {
		return nil, fmt.Errorf("DISCORD_APP_ID is required")
	}
	if cfg.DiscordPublicKey == "" {
		return nil, fmt.Errorf("DISCORD_PUBLIC_KEY is required")
	}
	if cfg.TwitchClientID == "" {
		return nil, fmt.Errorf("TWITCH_CLIENT_ID is required")
	}
	if cfg.TwitchClientSecret == "" {
		return nil, fmt.Errorf("TWITCH_CLIENT_SECRET is required")
	}

	// Twitch EventSub webhook config: both must be set together
	if cfg.TwitchCallbackURL != "" || cfg.TwitchWebhookSecret != "" {
		if cfg.TwitchCallbackURL == "" {
			return nil, fmt.Errorf("TWITCH_CALLBACK_URL is required when TWITCH_WEBHOOK_SECRET is set")
		}
		if cfg.TwitchWebhookSecret == "" {
			return nil, fmt.Errorf("TWITCH_WEBHOOK_SECRET is required when TWITCH_CALLBACK_URL is set")
		}
		if len(cfg.TwitchWebhookSecret) < 10 || len(cfg.TwitchWebhookSecret) > 100 {
			return nil, fmt.Errorf("TWITCH_WEBHOOK_SECRET must be between 10 and 100 characters")
		}
	}

	// Kick webhook config follows the same rule
	if cfg.KickCallbackURL != "" && cfg.KickWebhookPublicKey == "" {
		return nil, fmt.Errorf("KICK_WEBHOOK_PUBLIC_KEY is required when KICK_CALLBACK_URL is set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
