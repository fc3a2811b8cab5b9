package poll

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"remindbot/internal/apperr"
	"remindbot/internal/clock"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	"remindbot/internal/registry"
	kit "remindbot/internal/transport"
	"remindbot/internal/votes"
	logx "remindbot/pkg/logx"
)

var (
	ErrClosed        = errors.New("this poll is closed")
	ErrUnknownOption = errors.New("unknown poll option")
	ErrStopped       = errors.New("poll: manager stopped")
)

type openPoll struct {
	p     Poll
	timer clock.Timer
}

// Manager publishes polls, routes vote signals and closes polls on time.
// Open polls are tracked only to route votes; the vote board holds counts.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	open    map[string]*openPoll
	stopped bool
	wg      sync.WaitGroup

	clk     clock.Clock
	out     Publisher
	board   *votes.Board
	newID   func() string
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, clk clock.Clock, out Publisher, board *votes.Board, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     normalizeConfig(cfg),
		open:    map[string]*openPoll{},
		clk:     clk,
		out:     out,
		board:   board,
		newID:   registry.NewID,
		log:     log,
		bus:     bus,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.MinMinutes < MinMinutes || cfg.MinMinutes > MaxMinutes {
		cfg.MinMinutes = MinMinutes
	}
	if cfg.MaxMinutes <= 0 || cfg.MaxMinutes > MaxMinutes {
		cfg.MaxMinutes = MaxMinutes
	}
	if cfg.MinMinutes > cfg.MaxMinutes {
		cfg.MinMinutes, cfg.MaxMinutes = MinMinutes, MaxMinutes
	}
	return cfg
}

func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	m.cfg = normalizeConfig(cfg)
	m.mu.Unlock()
}

// CreatePoll publishes a poll with numbered options from a comma-separated list.
func (m *Manager) CreatePoll(ctx context.Context, creator kit.User, channel kit.ChatTarget, question, rawOptions string, minutes int) (Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Poll{}, apperr.Invalid(apperr.EmptyQuestion, "Please include a poll question.")
	}
	labels, err := ParseOptions(rawOptions)
	if err != nil {
		return Poll{}, err
	}
	opts := make([]Option, len(labels))
	for i, l := range labels {
		opts[i] = Option{Label: l, Symbol: NumberSymbols[i]}
	}
	return m.publish(ctx, creator, channel, question, opts, General, minutes)
}

// CreateQuickPoll publishes a yes/no poll.
func (m *Manager) CreateQuickPoll(ctx context.Context, creator kit.User, channel kit.ChatTarget, question string, minutes int) (Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Poll{}, apperr.Invalid(apperr.EmptyQuestion, "Please include a poll question.")
	}
	opts := []Option{{Label: "Yes", Symbol: YesSymbol}, {Label: "No", Symbol: NoSymbol}}
	return m.publish(ctx, creator, channel, question, opts, Quick, minutes)
}

func (m *Manager) publish(ctx context.Context, creator kit.User, channel kit.ChatTarget, question string, opts []Option, kind Kind, minutes int) (Poll, error) {
	m.mu.Lock()
	cfg := m.cfg
	stopped := m.stopped
	m.mu.Unlock()
	if err := validateMinutes(minutes, cfg.MinMinutes, cfg.MaxMinutes); err != nil {
		return Poll{}, err
	}
	if stopped {
		return Poll{}, ErrStopped
	}

	p := Poll{
		ID:        m.allocID(),
		Question:  question,
		Options:   opts,
		Kind:      kind,
		Creator:   creator,
		Channel:   channel,
		Duration:  time.Duration(minutes) * time.Minute,
		CreatedAt: m.clk.Now(),
	}
	card, err := PollCard(p)
	if err != nil {
		return Poll{}, err
	}

	// Open the board first so early taps are counted.
	if err := m.board.Open(p.ID, p.Symbols()); err != nil {
		if errors.Is(err, votes.ErrFull) {
			m.metrics.Rejected("polls_full")
			return Poll{}, apperr.Invalid(apperr.TooManyOpenPolls, "Too many polls are open right now. Try again after one closes.")
		}
		return Poll{}, fmt.Errorf("poll: open board: %w", err)
	}
	out := m.out.Deliver(ctx, delivery.Envelope{Kind: "poll", Channel: channel, Text: card.Text, Options: card.Opt})
	if !out.OK() {
		m.board.Close(p.ID)
		return Poll{}, fmt.Errorf("poll: publish: %w", out.Err)
	}
	p.Message = out.Ref

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.board.Close(p.ID)
		return Poll{}, ErrStopped
	}
	op := &openPoll{p: p}
	m.open[p.ID] = op
	op.timer = m.clk.AfterFunc(p.Duration, func() { m.close(p.ID) })
	m.mu.Unlock()

	m.metrics.PollCreated(string(kind))
	m.log.Info("poll opened",
		logx.String("id", p.ID),
		logx.String("kind", string(kind)),
		logx.Int64("chat_id", channel.ChatID),
		logx.Int("options", len(opts)),
		logx.Duration("duration", p.Duration),
	)
	eventbus.Emit(m.bus, "poll.created", Event{ID: p.ID, Kind: kind, ChatID: channel.ChatID, Options: len(opts)})
	return p, nil
}

func (m *Manager) allocID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		id := m.newID()
		if _, taken := m.open[id]; !taken {
			return id
		}
	}
}

// Vote toggles userID's vote on option idx of an open poll.
func (m *Manager) Vote(pollID string, idx int, userID int64) (VoteResult, error) {
	m.mu.Lock()
	op := m.open[pollID]
	m.mu.Unlock()
	if op == nil {
		m.metrics.VoteSignal("ignored")
		return VoteResult{}, ErrClosed
	}
	if idx < 0 || idx >= len(op.p.Options) {
		m.metrics.VoteSignal("ignored")
		return VoteResult{}, ErrUnknownOption
	}
	opt := op.p.Options[idx]
	added, err := m.board.Toggle(pollID, opt.Symbol, userID)
	if err != nil {
		m.metrics.VoteSignal("ignored")
		if errors.Is(err, votes.ErrUnknownBoard) {
			return VoteResult{}, ErrClosed
		}
		return VoteResult{}, err
	}
	if added {
		m.metrics.VoteSignal("added")
	} else {
		m.metrics.VoteSignal("removed")
	}
	return VoteResult{Option: opt, Added: added}, nil
}

// close publishes results once and releases the vote board.
func (m *Manager) close(id string) {
	m.mu.Lock()
	op := m.open[id]
	if m.stopped || op == nil {
		m.mu.Unlock()
		return
	}
	delete(m.open, id)
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("poll close panic", logx.String("id", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	counts, ok := m.board.Close(id)
	if !ok {
		m.log.Warn("vote board missing at close; reporting zero votes", logx.String("id", id))
	}
	res := Tally(op.p, counts)
	m.metrics.PollClosed()

	card := ResultsCard(res)
	out := m.out.Deliver(m.ctx, delivery.Envelope{Kind: "poll.results", Channel: op.p.Channel, Text: card.Text, Options: card.Opt})
	if !out.OK() {
		m.log.Warn("poll results dropped", logx.String("id", id), logx.String("status", string(out.Status)), logx.Err(out.Err))
	}

	closed := ClosedCard(op.p)
	if err := m.out.Edit(m.ctx, op.p.Message, closed.Text, closed.Opt); err != nil {
		m.log.Debug("poll card edit failed", logx.String("id", id), logx.Err(err))
	}

	m.log.Info("poll closed", logx.String("id", id), logx.Int("total", res.Total), logx.String("winner", res.Winner()))
	eventbus.Emit(m.bus, "poll.closed", Event{
		ID:      id,
		Kind:    op.p.Kind,
		ChatID:  op.p.Channel.ChatID,
		Options: len(op.p.Options),
		Total:   res.Total,
		Winner:  res.Winner(),
	})
}

// Get returns an open poll.
func (m *Manager) Get(id string) (Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op := m.open[id]; op != nil {
		return op.p, true
	}
	return Poll{}, false
}

// Open reports how many polls accept votes.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// StopAll discards open polls without publishing results and waits for
// closes in flight. It is safe to call more than once.
func (m *Manager) StopAll() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	open := m.open
	m.open = map[string]*openPoll{}
	m.mu.Unlock()

	m.cancel()
	for id, op := range open {
		if op.timer != nil {
			op.timer.Stop()
		}
		m.board.Close(id)
	}
	m.wg.Wait()
	m.metrics.SetPollsOpen(0)
	if len(open) > 0 {
		m.log.Info("open polls discarded", logx.Int("count", len(open)))
	}
}
