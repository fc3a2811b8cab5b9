package adapter

import "time"

// Config holds the Telegram bot settings.
type Config struct {
	Token       string
	PollTimeout time.Duration

	// ResolveTTL caches successful chat lookups. Zero uses the default.
	ResolveTTL time.Duration
}
