package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
// Unknown fields are rejected.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Reminders    RemindersConfig    `json:"reminders"`
	Polls        PollsConfig        `json:"polls"`
	Delivery     DeliveryConfig     `json:"delivery"`
	Commands     CommandsConfig     `json:"commands"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
	Ops          OpsConfig          `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// ResolveTTL caches successful chat lookups (Go duration string).
	ResolveTTL string `json:"resolve_ttl,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors warnings into an ops chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig narrows the accepted reminder durations. Values outside
// 10s..168h are clamped.
//
// Example:
//
//	"reminders": { "min_duration": "30s", "max_duration": "72h" }
type RemindersConfig struct {
	MinDuration string `json:"min_duration,omitempty"`
	MaxDuration string `json:"max_duration,omitempty"`
}

// PollsConfig controls poll durations and the vote board.
//
// Defaults:
//   - min_minutes: 10, max_minutes: 1440
//   - default_minutes: 60 (used when a poll command omits its duration)
//   - board_capacity: 1024 open vote boards
type PollsConfig struct {
	MinMinutes     int `json:"min_minutes,omitempty"`
	MaxMinutes     int `json:"max_minutes,omitempty"`
	DefaultMinutes int `json:"default_minutes,omitempty"`
	BoardCapacity  int `json:"board_capacity,omitempty"`
}

// DeliveryConfig bounds outbound sends.
type DeliveryConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// CommandsConfig sizes the command worker pool.
type CommandsConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// HousekeepingConfig schedules maintenance jobs with cron specs
// (robfig/cron syntax, including "@every 5m").
//
// Enabled is a pointer so an omitted section defaults to on.
type HousekeepingConfig struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	PruneSpec string `json:"prune_spec,omitempty"`
	StatsSpec string `json:"stats_spec,omitempty"`
	// PruneGrace is added to the longest poll duration before a vote board
	// counts as orphaned.
	PruneGrace string `json:"prune_grace,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// OpsConfig controls the operational HTTP server (health, metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// HousekeepingEnabled reports whether maintenance jobs should run.
func (c *Config) HousekeepingEnabled() bool {
	return c.Housekeeping.Enabled == nil || *c.Housekeeping.Enabled
}
