// Package commands routes chat updates to the reminder and poll managers.
//
// Commands are single words ("/remind 5m tea"); the only callback is the
// poll vote button. Handlers run on a bounded worker pool.
package commands

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/metrics"
	"remindbot/internal/poll"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Config tunes the dispatcher.
type Config struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	PollMinutes int // used when a poll command omits its duration
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handle      HandlerFunc
}

// Request is one routed message or callback.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	From    kit.User
	ReplyTo *kit.User
	IsGroup bool

	Command string
	Args    string // text after the command word
	ReqID   string
	Logger  logx.Logger
}

// Reminders is the reminder manager surface used by handlers.
type Reminders interface {
	CreateSelf(ctx context.Context, creator kit.User, channel kit.ChatTarget, rawTime, message string) (reminder.Reminder, error)
	Create(ctx context.Context, creator, target kit.User, channel kit.ChatTarget, rawTime, message string) (reminder.Reminder, error)
	Cancel(ctx context.Context, requesterID int64, id string) error
	ListActive(userID int64, role reminder.Role) []reminder.Active
}

// Polls is the poll manager surface used by handlers.
type Polls interface {
	CreatePoll(ctx context.Context, creator kit.User, channel kit.ChatTarget, question, rawOptions string, minutes int) (poll.Poll, error)
	CreateQuickPoll(ctx context.Context, creator kit.User, channel kit.ChatTarget, question string, minutes int) (poll.Poll, error)
	Vote(pollID string, idx int, userID int64) (poll.VoteResult, error)
}

type Router struct {
	mu    sync.RWMutex
	cfg   Config
	index map[string]*Command
	cmds  []Command

	ad        kit.Adapter
	reminders Reminders
	polls     Polls
	log       logx.Logger
	metrics   *metrics.Metrics
	onRestart func(name string)

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(cfg Config, ad kit.Adapter, rem Reminders, polls Polls, log logx.Logger, m *metrics.Metrics) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = normalizeConfig(cfg)
	r := &Router{
		cfg:       cfg,
		ad:        ad,
		reminders: rem,
		polls:     polls,
		log:       log,
		metrics:   m,
		jobs:      make(chan func(), cfg.QueueSize),
	}
	r.setRegistry(r.builtin())
	return r
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.NumCPU(), 2)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.PollMinutes <= 0 {
		cfg.PollMinutes = 60
	}
	return cfg
}

// Apply updates timeouts and defaults. Worker and queue sizes apply on the
// next Run.
func (r *Router) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = normalizeConfig(cfg)
	r.mu.Unlock()
}

func (r *Router) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetRestartHook is passed to the worker supervisor on the next Run.
func (r *Router) SetRestartHook(fn func(name string)) {
	r.runMu.Lock()
	r.onRestart = fn
	r.runMu.Unlock()
}

// Supervisor returns the worker supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.cmds...)
}

func (r *Router) setRegistry(cmds []Command) {
	index := map[string]*Command{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		list = append(list, c)
		cp := c
		index[name] = &cp
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, exists := index[a]; !exists {
					index[a] = &cp
				}
			}
		}
	}
	r.mu.Lock()
	r.index = index
	r.cmds = list
	r.mu.Unlock()
}

// Run dispatches updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	cfg := r.config()

	r.runMu.Lock()
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "commands"))),
		rtsup.WithCancelOnError(false),
		rtsup.WithRestartHook(r.onRestart),
	)
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("job_queue_cap", cap(r.jobs)))

	if up, ok := r.ad.(kit.CommandMenuUpdater); ok {
		menu := menuCommands(r.Commands())
		sup.Go("telegram.menu.update", func(c context.Context) error {
			cctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.runMu.Lock()
		r.running = false
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.route(ctx, up)
			if job == nil {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				r.rejectBusy(ctx, up)
			}
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) rejectBusy(ctx context.Context, up kit.Update) {
	r.metrics.Rejected("busy")
	switch up.Kind {
	case kit.UpdateMessage:
		to := kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}
		_, _ = r.ad.SendText(ctx, to, "I'm busy right now, please try again in a moment.", nil)
	case kit.UpdateCallback:
		_ = r.ad.AnswerCallback(ctx, up.Callback.ID, "Busy, try again.")
	}
}

// route turns an update into a job, or nil when the update is not for us.
func (r *Router) route(ctx context.Context, up kit.Update) func() {
	switch up.Kind {
	case kit.UpdateMessage:
		return r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		return r.routeCallback(ctx, up)
	}
	return nil
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) func() {
	msg := up.Message
	if msg == nil || msg.From.IsBot {
		return nil
	}
	word, args, ok := splitCommand(msg.Text)
	if !ok {
		return nil
	}

	r.mu.RLock()
	cmd := r.index[word]
	r.mu.RUnlock()
	if cmd == nil {
		// Unknown commands may belong to other bots in the group.
		return nil
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		From:    msg.From,
		ReplyTo: msg.ReplyTo,
		IsGroup: msg.IsGroup,
		Command: cmd.Name,
		Args:    args,
		ReqID:   newReqID(),
	}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.From.ID),
		logx.String("cmd", cmd.Name),
	)
	r.metrics.Command(cmd.Name)

	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWReplyErrors(r.ad, r.log, r.metrics),
		MWTimeout(r.config().Timeout),
	)
	return func() { _ = final(ctx, req) }
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) func() {
	cb := up.Callback
	if cb == nil {
		return nil
	}
	if !strings.HasPrefix(cb.Data, poll.VoteAction+"|") {
		return func() { _ = r.ad.AnswerCallback(ctx, cb.ID, "") }
	}
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		From:    cb.From,
		Command: poll.VoteAction,
		Args:    cb.Data,
		ReqID:   newReqID(),
	}
	req.Logger = r.log.With(logx.String("rid", req.ReqID), logx.Int64("chat_id", cb.ChatID), logx.Int64("from_id", cb.From.ID))

	final := Chain(r.handleVote,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(r.config().Timeout),
	)
	return func() {
		if err := final(ctx, req); err != nil && !errors.Is(err, context.Canceled) {
			_ = r.ad.AnswerCallback(ctx, cb.ID, "Something went wrong.")
		}
	}
}
