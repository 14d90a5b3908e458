// Package messaging delivers texts and documents to users and parses the
// commands they send to the bot.
package messaging

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

// Transport is the outbound side of the chat channel.
type Transport interface {
	SendMessage(ctx context.Context, userID, text string) error
	SendDocument(ctx context.Context, userID string, content []byte, filename string) error
}

type Config struct {
	BotToken      string
	APIBaseURL    string
	WebhookSecret string
	Timeout       time.Duration
}

func LoadConfig() Config {
	return Config{
		BotToken:      env.GetEnv("TELEGRAM_BOT_TOKEN", ""),
		APIBaseURL:    env.GetEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		WebhookSecret: env.GetEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		Timeout:       env.GetEnvDuration("TELEGRAM_TIMEOUT", 30*time.Second),
	}
}

// NewTransport returns the Telegram transport, or a LogTransport when no bot token is set.
func NewTransport(cfg Config) Transport {
	if cfg.BotToken == "" {
		log.Warn("[Telegram] TELEGRAM_BOT_TOKEN not set, messages are only logged")
		return LogTransport{}
	}
	return NewTelegramTransport(cfg)
}

// LogTransport writes outgoing messages to the log. Used in local development.
type LogTransport struct{}

func (LogTransport) SendMessage(ctx context.Context, userID, text string) error {
	log.Infof("[Telegram] (dry-run) to %s: %s", userID, text)
	return nil
}

func (LogTransport) SendDocument(ctx context.Context, userID string, content []byte, filename string) error {
	log.Infof("[Telegram] (dry-run) document %s (%d bytes) to %s", filename, len(content), userID)
	return nil
}
