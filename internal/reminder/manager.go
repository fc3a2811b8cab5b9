package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"remindbot/internal/apperr"
	"remindbot/internal/clock"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	"remindbot/internal/registry"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ErrStopped is returned by Create after StopAll.
var ErrStopped = errors.New("reminder: manager stopped")

// entry owns the timer of one pending reminder. The registry key and the
// timer live together so removal and cancellation happen in one step.
type entry struct {
	r Reminder

	mu    sync.Mutex
	timer clock.Timer
	done  bool
}

// finish marks the entry terminal and stops its timer if one is armed.
func (e *entry) finish() {
	e.mu.Lock()
	e.done = true
	t := e.timer
	e.timer = nil
	e.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// arm attaches t unless the entry already reached a terminal state.
func (e *entry) arm(t clock.Timer) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		t.Stop()
		return
	}
	e.timer = t
	e.mu.Unlock()
}

// Manager schedules, cancels, lists and fires reminders.
//
// Every pending reminder is a registry entry plus one timer. Whichever of
// fire or cancel takes the entry out of the registry first wins; the loser
// observes a missing entry and does nothing.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	stopped bool
	wg      sync.WaitGroup

	clk     clock.Clock
	out     Deliverer
	reg     *registry.Registry[*entry]
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, clk clock.Clock, out Deliverer, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     normalizeConfig(cfg),
		clk:     clk,
		out:     out,
		reg:     registry.New[*entry](),
		log:     log,
		bus:     bus,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.MinDuration < MinDuration || cfg.MinDuration > MaxDuration {
		cfg.MinDuration = MinDuration
	}
	if cfg.MaxDuration <= 0 || cfg.MaxDuration > MaxDuration {
		cfg.MaxDuration = MaxDuration
	}
	if cfg.MinDuration > cfg.MaxDuration {
		cfg.MinDuration, cfg.MaxDuration = MinDuration, MaxDuration
	}
	return cfg
}

// Apply updates the duration bounds for new reminders.
func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	m.cfg = normalizeConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) bounds() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// CreateSelf schedules a reminder for the creator.
func (m *Manager) CreateSelf(ctx context.Context, creator kit.User, channel kit.ChatTarget, rawTime, message string) (Reminder, error) {
	return m.create(ctx, creator, creator, channel, rawTime, message, false)
}

// Create schedules a group reminder set by creator for target.
func (m *Manager) Create(ctx context.Context, creator, target kit.User, channel kit.ChatTarget, rawTime, message string) (Reminder, error) {
	switch {
	case target.IsBot:
		return Reminder{}, apperr.Invalid(apperr.InvalidTarget, "You can't set reminders for bots.")
	case target.ID == creator.ID:
		return Reminder{}, apperr.Invalid(apperr.InvalidTarget, "To remind yourself, use /remind instead.")
	case target.ID <= 0:
		return Reminder{}, apperr.Invalid(apperr.InvalidTarget, "Please specify a valid user to remind.")
	}
	return m.create(ctx, creator, target, channel, rawTime, message, true)
}

func (m *Manager) create(ctx context.Context, creator, target kit.User, channel kit.ChatTarget, rawTime, message string, group bool) (Reminder, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reminder{}, apperr.Invalid(apperr.EmptyMessage, "Please include a reminder message.")
	}
	d, err := ParseTimeSpec(rawTime)
	if err != nil {
		return Reminder{}, err
	}
	b := m.bounds()
	if err := validateBounds(d, b.MinDuration, b.MaxDuration); err != nil {
		return Reminder{}, err
	}
	if err := ctx.Err(); err != nil {
		return Reminder{}, err
	}

	m.mu.RLock()
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return Reminder{}, ErrStopped
	}

	now := m.clk.Now()
	var e *entry
	id, err := m.reg.InsertNew(func(id string) *entry {
		e = &entry{r: Reminder{
			ID:        id,
			Target:    target,
			Creator:   creator,
			Channel:   channel,
			Message:   message,
			CreatedAt: now,
			Duration:  d,
			IsGroup:   group,
		}}
		return e
	})
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder: allocate id: %w", err)
	}
	e.arm(m.clk.AfterFunc(d, func() { m.fire(id) }))

	// StopAll may have drained the registry between the check above and
	// the insert; its timers never fire, so take the entry back out.
	m.mu.RLock()
	stopped = m.stopped
	m.mu.RUnlock()
	if stopped {
		if late, ok := m.reg.Take(id); ok {
			late.finish()
		}
		return Reminder{}, ErrStopped
	}

	m.metrics.ReminderCreated(group)
	m.log.Info("reminder created",
		logx.String("id", id),
		logx.Int64("creator_id", creator.ID),
		logx.Int64("target_id", target.ID),
		logx.Int64("chat_id", channel.ChatID),
		logx.Duration("in", d),
		logx.Bool("group", group),
	)
	eventbus.Emit(m.bus, "reminder.created", eventOf(e.r, ""))
	return e.r, nil
}

// Cancel removes a pending reminder. Only its creator or target may cancel.
// A denied request changes nothing.
func (m *Manager) Cancel(ctx context.Context, requesterID int64, id string) error {
	id = normalizeID(id)
	e, err := m.reg.Get(id)
	if errors.Is(err, registry.ErrNotFound) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return err
	}
	if requesterID != e.r.Creator.ID && requesterID != e.r.Target.ID {
		m.log.Debug("reminder cancel denied", logx.String("id", id), logx.Int64("requester_id", requesterID))
		return apperr.ErrPermissionDenied
	}

	// Take decides the race against a concurrent fire.
	e, ok := m.reg.Take(id)
	if !ok {
		return apperr.ErrNotFound
	}
	e.finish()

	m.metrics.ReminderCancelled()
	m.log.Info("reminder cancelled", logx.String("id", id), logx.Int64("requester_id", requesterID))
	eventbus.Emit(m.bus, "reminder.cancelled", eventOf(e.r, ""))
	return nil
}

func (m *Manager) fire(id string) {
	m.mu.RLock()
	if m.stopped {
		m.mu.RUnlock()
		return
	}
	m.wg.Add(1)
	m.mu.RUnlock()
	defer m.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("reminder fire panic",
				logx.String("id", id),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	e, ok := m.reg.Take(id)
	if !ok {
		return
	}
	e.finish()
	m.metrics.ReminderFired()

	r := e.r
	out := m.out.Deliver(m.ctx, delivery.Envelope{
		Kind:        "reminder",
		Channel:     r.Channel,
		RecipientID: r.Target.ID,
		Compose: func(u kit.User) (string, *kit.SendOptions) {
			msg := DeliveredCard(r, u)
			return msg.Text, msg.Opt
		},
	})
	if !out.OK() {
		m.log.Warn("reminder dropped",
			logx.String("id", r.ID),
			logx.Int64("target_id", r.Target.ID),
			logx.Int64("chat_id", r.Channel.ChatID),
			logx.String("status", string(out.Status)),
			logx.Err(out.Err),
		)
		eventbus.Emit(m.bus, "reminder.dropped", eventOf(r, out.Status))
		return
	}
	m.log.Info("reminder fired", logx.String("id", r.ID), logx.Int64("target_id", r.Target.ID))
	eventbus.Emit(m.bus, "reminder.fired", eventOf(r, out.Status))
}

// ListActive returns the user's pending reminders for the given view,
// soonest first. Reminders with nothing left to wait are omitted.
func (m *Manager) ListActive(userID int64, role Role) []Active {
	entries := m.reg.ListBy(func(e *entry) bool {
		switch role {
		case RoleCreator:
			return e.r.IsGroup && e.r.Creator.ID == userID
		default:
			return e.r.Target.ID == userID
		}
	})

	now := m.clk.Now()
	out := make([]Active, 0, len(entries))
	for _, e := range entries {
		left := e.r.TimeLeft(now)
		if left <= 0 {
			continue
		}
		out = append(out, Active{Reminder: e.r, Remaining: left})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Remaining != out[j].Remaining {
			return out[i].Remaining < out[j].Remaining
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a pending reminder by id.
func (m *Manager) Get(id string) (Reminder, bool) {
	e, err := m.reg.Get(normalizeID(id))
	if err != nil {
		return Reminder{}, false
	}
	return e.r, true
}

func (m *Manager) Stats() Stats {
	all := m.reg.ListBy(nil)
	st := Stats{Pending: len(all)}
	for _, e := range all {
		if e.r.IsGroup {
			st.Group++
		}
	}
	return st
}

// StopAll cancels every pending timer and waits for in-flight deliveries.
// Pending reminders are discarded. It is safe to call more than once.
func (m *Manager) StopAll() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.cancel()
	drained := m.reg.Drain()
	for _, e := range drained {
		e.finish()
	}
	m.wg.Wait()
	m.metrics.SetRemindersPending(0)
	if len(drained) > 0 {
		m.log.Info("pending reminders discarded", logx.Int("count", len(drained)))
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func eventOf(r Reminder, st delivery.Status) Event {
	return Event{
		ID:        r.ID,
		TargetID:  r.Target.ID,
		CreatorID: r.Creator.ID,
		ChatID:    r.Channel.ChatID,
		Group:     r.IsGroup,
		Status:    st,
	}
}
