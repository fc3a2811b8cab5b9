// Package housekeeping runs periodic maintenance on cron schedules: it
// drops orphaned vote boards and resyncs the engine gauges.
package housekeeping

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/config"
	"remindbot/internal/metrics"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const (
	JobPrune = "prune"
	JobStats = "stats"

	DefaultPruneSpec = "@every 10m"
	DefaultStatsSpec = "@every 1m"
)

type Config struct {
	Enabled   bool
	PruneSpec string
	StatsSpec string
	// PruneAge is how long a vote board may stay open before it counts as
	// orphaned. It should exceed the longest poll duration.
	PruneAge time.Duration
	Location *time.Location
}

type Boards interface {
	PruneOlderThan(age time.Duration) int
	Len() int
}

type Reminders interface {
	Stats() reminder.Stats
}

type Polls interface {
	Open() int
}

// JobRun records the last execution of a job.
type JobRun struct {
	At     time.Time     `json:"at"`
	Took   time.Duration `json:"took"`
	Result int           `json:"result"`
}

type Service struct {
	mu   sync.Mutex
	cfg  Config
	c    *cron.Cron
	runs map[string]JobRun

	boards  Boards
	rem     Reminders
	polls   Polls
	log     logx.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, boards Boards, rem Reminders, polls Polls, log logx.Logger, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     normalizeConfig(cfg),
		runs:    map[string]JobRun{},
		boards:  boards,
		rem:     rem,
		polls:   polls,
		log:     log,
		metrics: m,
	}
}

func normalizeConfig(cfg Config) Config {
	if strings.TrimSpace(cfg.PruneSpec) == "" {
		cfg.PruneSpec = DefaultPruneSpec
	}
	if strings.TrimSpace(cfg.StatsSpec) == "" {
		cfg.StatsSpec = DefaultStatsSpec
	}
	if cfg.PruneAge <= 0 {
		cfg.PruneAge = 25 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start registers the jobs and starts the cron runner. It is a no-op when
// disabled or already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	c, err := s.buildLocked()
	if err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("housekeeping started",
		logx.String("prune_spec", s.cfg.PruneSpec),
		logx.String("stats_spec", s.cfg.StatsSpec),
		logx.String("tz", s.cfg.Location.String()),
	)
	return nil
}

func (s *Service) buildLocked() (*cron.Cron, error) {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.PruneSpec, func() { s.Prune() }); err != nil {
		return nil, fmt.Errorf("housekeeping prune spec %q: %w", s.cfg.PruneSpec, err)
	}
	if _, err := c.AddFunc(s.cfg.StatsSpec, func() { s.Stats() }); err != nil {
		return nil, fmt.Errorf("housekeeping stats spec %q: %w", s.cfg.StatsSpec, err)
	}
	return c, nil
}

// Stop waits for running jobs or until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("housekeeping stopped")
}

// Apply swaps the config, rebuilding the runner when it is running. A spec
// that fails to parse keeps the previous runner.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	cfg = normalizeConfig(cfg)

	s.mu.Lock()
	old := s.cfg
	running := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
		return nil
	case !running:
		return s.Start(ctx)
	case old.PruneSpec == cfg.PruneSpec && old.StatsSpec == cfg.StatsSpec && old.Location.String() == cfg.Location.String():
		return nil
	}

	s.mu.Lock()
	next, err := s.buildLocked()
	if err != nil {
		s.cfg = old
		s.mu.Unlock()
		return err
	}
	prev := s.c
	s.c = next
	next.Start()
	s.mu.Unlock()

	<-prev.Stop().Done()
	s.log.Info("housekeeping rescheduled", logx.String("prune_spec", cfg.PruneSpec), logx.String("stats_spec", cfg.StatsSpec))
	return nil
}

// Prune drops orphaned vote boards and returns how many were removed.
func (s *Service) Prune() int {
	start := time.Now()
	s.mu.Lock()
	age := s.cfg.PruneAge
	s.mu.Unlock()

	n := 0
	if s.boards != nil {
		n = s.boards.PruneOlderThan(age)
	}
	s.record(JobPrune, start, n)
	if n > 0 {
		s.log.Info("orphaned vote boards pruned", logx.Int("count", n), logx.Duration("age", age))
	}
	return n
}

// Stats resyncs the pending-reminder and open-poll gauges.
func (s *Service) Stats() reminder.Stats {
	start := time.Now()
	var st reminder.Stats
	if s.rem != nil {
		st = s.rem.Stats()
	}
	open := 0
	if s.polls != nil {
		open = s.polls.Open()
	}
	boards := 0
	if s.boards != nil {
		boards = s.boards.Len()
	}
	s.metrics.SetRemindersPending(st.Pending)
	s.metrics.SetPollsOpen(open)
	s.record(JobStats, start, st.Pending)
	s.log.Debug("engine stats",
		logx.Int("reminders_pending", st.Pending),
		logx.Int("reminders_group", st.Group),
		logx.Int("polls_open", open),
		logx.Int("vote_boards", boards),
	)
	return st
}

func (s *Service) record(job string, start time.Time, result int) {
	s.metrics.HousekeepingRun(job)
	s.mu.Lock()
	s.runs[job] = JobRun{At: start, Took: time.Since(start), Result: result}
	s.mu.Unlock()
}

// Runs returns the last run of every job that ran at least once.
func (s *Service) Runs() map[string]JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobRun, len(s.runs))
	for k, v := range s.runs {
		out[k] = v
	}
	return out
}

// cronLogger adapts logx to cron.Logger. Routine scheduler chatter goes to
// debug.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
