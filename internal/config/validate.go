package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser accepts five- or six-field specs and descriptors like "@every 5m".
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate rejects configs that would fail at apply time. It runs before a
// hot reload is committed, so a bad edit keeps the previous config live.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	durations := map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"telegram.resolve_ttl":     cfg.Telegram.ResolveTTL,
		"reminders.min_duration":   cfg.Reminders.MinDuration,
		"reminders.max_duration":   cfg.Reminders.MaxDuration,
		"delivery.send_timeout":    cfg.Delivery.SendTimeout,
		"commands.timeout":         cfg.Commands.Timeout,
		"housekeeping.prune_grace": cfg.Housekeeping.PruneGrace,
		"ops.read_timeout":         cfg.Ops.ReadTimeout,
		"ops.write_timeout":        cfg.Ops.WriteTimeout,
		"ops.idle_timeout":         cfg.Ops.IdleTimeout,
	}
	for path, raw := range durations {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	minD, _ := ParseDurationField("", cfg.Reminders.MinDuration)
	maxD, _ := ParseDurationField("", cfg.Reminders.MaxDuration)
	if minD > 0 && maxD > 0 && minD > maxD {
		add(fmt.Errorf("reminders.min_duration (%s) exceeds max_duration (%s)", minD, maxD))
	}

	p := cfg.Polls
	for path, v := range map[string]int{
		"polls.min_minutes":     p.MinMinutes,
		"polls.max_minutes":     p.MaxMinutes,
		"polls.default_minutes": p.DefaultMinutes,
		"polls.board_capacity":  p.BoardCapacity,
		"delivery.rate_per_sec": cfg.Delivery.RatePerSec,
		"delivery.history_size": cfg.Delivery.HistorySize,
		"commands.workers":      cfg.Commands.Workers,
		"commands.queue_size":   cfg.Commands.QueueSize,
	} {
		if v < 0 {
			add(fmt.Errorf("%s must be >= 0", path))
		}
	}
	if p.MinMinutes > 0 && p.MaxMinutes > 0 && p.MinMinutes > p.MaxMinutes {
		add(fmt.Errorf("polls.min_minutes (%d) exceeds max_minutes (%d)", p.MinMinutes, p.MaxMinutes))
	}

	for path, spec := range map[string]string{
		"housekeeping.prune_spec": cfg.Housekeeping.PruneSpec,
		"housekeeping.stats_spec": cfg.Housekeeping.StatsSpec,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := CronParser.Parse(spec); err != nil {
			add(fmt.Errorf("%s: invalid cron spec %q: %w", path, spec, err))
		}
	}
	if tz := strings.TrimSpace(cfg.Housekeeping.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("housekeeping.timezone: invalid %q: %w", tz, err))
		}
	}

	if cfg.Ops.Enabled && !cfg.Ops.AllowInsecure && strings.TrimSpace(cfg.Ops.Token) == "" && !isLoopback(cfg.Ops.Addr) {
		add(fmt.Errorf("ops.addr %q is not loopback; set ops.token or ops.allow_insecure", cfg.Ops.Addr))
	}
	return errors.Join(errs...)
}

func isLoopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		// The ops server defaults to 127.0.0.1.
		return true
	}
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
