package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/clock"
	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/housekeeping"
	"remindbot/internal/metrics"
	"remindbot/internal/observability/opshttp"
	"remindbot/internal/poll"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/votes"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	metrics *metrics.Metrics

	adapter kit.Channel

	delivery  *delivery.Dispatcher
	reminders *reminder.Manager
	board     *votes.Board
	polls     *poll.Manager
	router    *commands.Router
	house     *housekeeping.Service
	ops       *opshttp.Service

	updates chan kit.Update
	started time.Time
}

// NewApp loads the config at cfgPath and builds every component around the
// Telegram adapter.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(tcfg, bootLog, telegram.WithRestartHook(m.GoroutineRestart))
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, ad, clock.Real(), m)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, ch kit.Channel, clk clock.Clock, m *metrics.Metrics) (*App, error) {
	logSvc, log := logx.New(mapLogConfig(cfg), ch)
	comp := func(name string) logx.Logger { return log.With(logx.String("comp", name)) }

	bus := eventbus.New()

	dcfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := delivery.New(dcfg, ch, comp("delivery"), bus, m)

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}
	rem := reminder.New(rcfg, clk, disp, comp("reminders"), bus, m)

	board, err := votes.New(cfg.Polls.BoardCapacity, clk, comp("votes"))
	if err != nil {
		return nil, err
	}
	polls := poll.New(mapPollConfig(cfg), clk, disp, board, comp("polls"), bus, m)

	ccfg, err := mapCommandsConfig(cfg)
	if err != nil {
		return nil, err
	}
	router := commands.New(ccfg, ch, rem, polls, comp("commands"), m)
	router.SetRestartHook(m.GoroutineRestart)

	hcfg, err := mapHousekeepingConfig(cfg)
	if err != nil {
		return nil, err
	}
	house := housekeeping.New(hcfg, board, rem, polls, comp("housekeeping"), m)

	a := &App{
		cfgm:      cfgm,
		log:       comp("app"),
		logs:      logSvc,
		bus:       bus,
		metrics:   m,
		adapter:   ch,
		delivery:  disp,
		reminders: rem,
		board:     board,
		polls:     polls,
		router:    router,
		house:     house,
		updates:   make(chan kit.Update, 256),
	}

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = opshttp.New(ocfg, m.Registry(), a.health, comp("ops"))
	a.ops.SetRestartHook(m.GoroutineRestart)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
		rtsup.WithRestartHook(a.metrics.GoroutineRestart),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.house.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.ops.Enabled() {
		a.ops.Start(a.sup.Context())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	// Debug-level only; reminders and votes are frequent. The dispatcher
	// logs its own delivery outcomes.
	events, unsub := a.bus.Subscribe(128, "reminder", "poll")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Bool("housekeeping", a.house.Enabled()),
		logx.Bool("ops_http", a.ops.Enabled()),
	)
	return nil
}

// applyConfig pushes a committed config into every live component.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := logx.String("changed", strings.Join(sections, ","))
	a.log.Debug("config change summary", append([]logx.Field{changed}, attrs...)...)

	if rs := config.RestartRequired(sections); len(rs) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(rs, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if dcfg, err := mapDeliveryConfig(next); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.delivery.Apply(dcfg)
	}
	if rcfg, err := mapReminderConfig(next); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else {
		a.reminders.Apply(rcfg)
	}

	a.polls.Apply(mapPollConfig(next))
	a.board.Resize(next.Polls.BoardCapacity)
	if n, limit := a.board.Len(), a.board.Cap(); n > limit {
		a.log.Warn("more polls open than board capacity; new polls refused until some close",
			logx.Int("open", n), logx.Int("capacity", limit))
	}

	if ccfg, err := mapCommandsConfig(next); err != nil {
		a.log.Warn("invalid commands config; keeping previous", logx.Err(err))
	} else {
		a.router.Apply(ccfg)
	}

	if hcfg, err := mapHousekeepingConfig(next); err != nil {
		a.log.Warn("invalid housekeeping config; keeping previous", logx.Err(err))
	} else if err := a.house.Apply(ctx, hcfg); err != nil {
		a.log.Warn("housekeeping apply failed; keeping previous", logx.Err(err))
	}

	if ocfg, err := mapOpsConfig(next); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, ocfg)
	}

	a.log.Info("config reloaded", append([]logx.Field{changed}, attrs...)...)
}

// health backs /healthz.
func (a *App) health(context.Context) (any, error) {
	st := a.reminders.Stats()
	detail := map[string]any{
		"uptime":            time.Since(a.started).Round(time.Second).String(),
		"reminders_pending": st.Pending,
		"reminders_group":   st.Group,
		"polls_open":        a.polls.Open(),
		"vote_boards":       a.board.Len(),
		"events_dropped":    eventbus.Dropped(a.bus),
		"housekeeping":      a.house.Runs(),
		"goroutines":        a.goroutines(),
	}
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			return detail, err
		}
	}
	return detail, nil
}

// goroutines reports the supervised goroutines of the app and its long-running
// components. Only names that restarted or panicked are listed.
func (a *App) goroutines() map[string]any {
	sups := map[string]*rtsup.Supervisor{
		"app":      a.sup,
		"commands": a.router.Supervisor(),
		"ops":      a.ops.Supervisor(),
	}
	if s, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		sups["telegram"] = s.Supervisor()
	}
	var active int64
	troubled := map[string]string{}
	for owner, sup := range sups {
		snap := sup.Snapshot()
		active += snap.Active
		for _, g := range snap.Goroutines {
			if g.Restarts == 0 && g.Panics == 0 {
				continue
			}
			troubled[owner+"/"+g.Name] = fmt.Sprintf("restarts=%d panics=%d last_err=%s", g.Restarts, g.Panics, g.LastErr)
		}
	}
	return map[string]any{"active": active, "troubled": troubled}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so a single component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	// Pending reminders and open polls are dropped on shutdown.
	step("reminders", time.Second, func(context.Context) error {
		st := a.reminders.Stats()
		a.reminders.StopAll()
		if st.Pending > 0 {
			a.log.Info("pending reminders discarded", logx.Int("count", st.Pending))
		}
		return nil
	})
	step("polls", time.Second, func(context.Context) error {
		n := a.polls.Open()
		a.polls.StopAll()
		if n > 0 {
			a.log.Info("open polls discarded", logx.Int("count", n))
		}
		return nil
	})
	step("housekeeping", time.Second, func(c context.Context) error { a.house.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
