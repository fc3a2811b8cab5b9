package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/housekeeping"
	"remindbot/internal/observability/opshttp"
	"remindbot/internal/poll"
	"remindbot/internal/reminder"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	ttl, err := config.ParseDurationField("telegram.resolve_ttl", cfg.Telegram.ResolveTTL)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		ResolveTTL:  ttl,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapReminderConfig(cfg *config.Config) (reminder.Config, error) {
	minD, err := config.ParseDurationField("reminders.min_duration", cfg.Reminders.MinDuration)
	if err != nil {
		return reminder.Config{}, err
	}
	maxD, err := config.ParseDurationField("reminders.max_duration", cfg.Reminders.MaxDuration)
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{MinDuration: minD, MaxDuration: maxD}, nil
}

func mapPollConfig(cfg *config.Config) poll.Config {
	return poll.Config{MinMinutes: cfg.Polls.MinMinutes, MaxMinutes: cfg.Polls.MaxMinutes}
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	timeout, err := config.ParseDurationField("delivery.send_timeout", cfg.Delivery.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		RatePerSec:  cfg.Delivery.RatePerSec,
		SendTimeout: timeout,
		HistorySize: cfg.Delivery.HistorySize,
	}, nil
}

func mapCommandsConfig(cfg *config.Config) (commands.Config, error) {
	timeout, err := config.ParseDurationField("commands.timeout", cfg.Commands.Timeout)
	if err != nil {
		return commands.Config{}, err
	}
	return commands.Config{
		Workers:     cfg.Commands.Workers,
		QueueSize:   cfg.Commands.QueueSize,
		Timeout:     timeout,
		PollMinutes: cfg.Polls.DefaultMinutes,
	}, nil
}

// mapHousekeepingConfig derives the board prune age from the hard poll
// ceiling plus the configured grace (default 1h). The configured
// polls.max_minutes is not used: a reload may lower it while polls opened
// under the old limit are still running.
func mapHousekeepingConfig(cfg *config.Config) (housekeeping.Config, error) {
	h := cfg.Housekeeping
	grace, err := config.ParseDurationOrDefault("housekeeping.prune_grace", h.PruneGrace, time.Hour)
	if err != nil {
		return housekeeping.Config{}, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(h.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return housekeeping.Config{}, fmt.Errorf("housekeeping.timezone: invalid %q: %w", tz, err)
		}
	}
	return housekeeping.Config{
		Enabled:   cfg.HousekeepingEnabled(),
		PruneSpec: h.PruneSpec,
		StatsSpec: h.StatsSpec,
		PruneAge:  poll.MaxMinutes*time.Minute + grace,
		Location:  loc,
	}, nil
}

func mapOpsConfig(cfg *config.Config) (opshttp.Config, error) {
	o := cfg.Ops
	rt, err := config.ParseDurationOrDefault("ops.read_timeout", o.ReadTimeout, 5*time.Second)
	if err != nil {
		return opshttp.Config{}, err
	}
	// profile endpoints stream for up to 30s by default
	wt, err := config.ParseDurationOrDefault("ops.write_timeout", o.WriteTimeout, 65*time.Second)
	if err != nil {
		return opshttp.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("ops.idle_timeout", o.IdleTimeout, 60*time.Second)
	if err != nil {
		return opshttp.Config{}, err
	}
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		addr = opshttp.DefaultAddr
	}
	return opshttp.Config{
		Enabled:              o.Enabled,
		Addr:                 addr,
		Token:                strings.TrimSpace(o.Token),
		AllowInsecure:        o.AllowInsecure,
		Pprof:                o.Pprof,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: o.MutexProfileFraction,
		BlockProfileRate:     o.BlockProfileRate,
	}, nil
}
