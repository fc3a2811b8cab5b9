package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"

	"golang.org/x/time/rate"
)

// Dispatcher resolves and sends Envelopes through a kit.Channel.
//
// It is safe for concurrent use; every fired timer calls Deliver on its own
// goroutine.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	ch      kit.Channel
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	// In-memory history (for diagnostics)
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, ch kit.Channel, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{ch: ch, log: log, bus: bus, metrics: m}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	d.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Deliver resolves env's channel and recipient, then sends it once.
// It never panics and never retries.
func (d *Dispatcher) Deliver(ctx context.Context, env Envelope) (out Outcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: TransportError, Err: fmt.Errorf("%w: panic: %v", ErrTransport, r)}
		}
		d.finish(env, out, time.Since(start))
	}()

	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	ch := d.ch
	d.mu.Unlock()

	if ch == nil {
		return Outcome{Status: TransportError, Err: fmt.Errorf("%w: no channel configured", ErrTransport)}
	}

	// Rate limit (honor cancellation).
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return Outcome{Status: TransportError, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	err := ch.ResolveChat(callCtx, env.Channel)
	cancel()
	if err != nil {
		return classify(err, ErrChannelUnavailable)
	}

	var recipient kit.User
	if env.RecipientID != 0 {
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		recipient, err = ch.ResolveUser(callCtx, env.Channel.ChatID, env.RecipientID)
		cancel()
		if err != nil {
			return classify(err, ErrRecipientUnresolvable)
		}
	}

	text, opt := env.Text, env.Options
	if env.Compose != nil {
		text, opt = env.Compose(recipient)
	}

	callCtx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
	ref, err := ch.SendText(callCtx, env.Channel, text, opt)
	cancel()
	if err != nil {
		return classify(err, ErrChannelUnavailable)
	}
	return Outcome{Status: Delivered, Ref: ref, Recipient: recipient}
}

// Edit rewrites a previously delivered message, sharing the send rate limit.
func (d *Dispatcher) Edit(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransport, r)
		}
	}()

	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	ch := d.ch
	d.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("%w: no channel configured", ErrTransport)
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if err := ch.EditText(callCtx, ref, text, opt); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// classify maps a transport error to an Outcome. notFound is the sentinel
// used when the platform reports the target missing or inaccessible.
func classify(err error, notFound error) Outcome {
	if errors.Is(err, kit.ErrNotFound) || errors.Is(err, kit.ErrForbidden) {
		st := ChannelUnavailable
		if errors.Is(notFound, ErrRecipientUnresolvable) {
			st = RecipientUnresolvable
		}
		return Outcome{Status: st, Err: fmt.Errorf("%w: %v", notFound, err)}
	}
	return Outcome{Status: TransportError, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
}

func (d *Dispatcher) finish(env Envelope, out Outcome, took time.Duration) {
	d.metrics.Delivery(string(out.Status), took)

	errStr := ""
	if out.Err != nil {
		errStr = out.Err.Error()
	}
	d.appendHistory(HistoryItem{At: time.Now(), Kind: env.Kind, ChatID: env.Channel.ChatID, Status: out.Status, Err: errStr})

	evType := "delivery.sent"
	if !out.OK() {
		evType = "delivery.failed"
		d.log.Warn("delivery failed",
			logx.String("kind", env.Kind),
			logx.Int64("chat_id", env.Channel.ChatID),
			logx.Int64("recipient_id", env.RecipientID),
			logx.String("status", string(out.Status)),
			logx.Err(out.Err),
		)
	} else {
		d.log.Debug("delivered", logx.String("kind", env.Kind), logx.Int64("chat_id", env.Channel.ChatID), logx.Duration("took", took))
	}
	eventbus.Emit(d.bus, evType, DeliveryEvent{
		Kind:     env.Kind,
		ChatID:   env.Channel.ChatID,
		ThreadID: env.Channel.ThreadID,
		Status:   out.Status,
		At:       time.Now(),
		Error:    errStr,
	})
}

func (d *Dispatcher) Snapshot() []HistoryItem {
	d.hmu.Lock()
	out := append([]HistoryItem(nil), d.history...)
	d.hmu.Unlock()
	return out
}

func (d *Dispatcher) appendHistory(it HistoryItem) {
	d.mu.Lock()
	max := d.cfg.HistorySize
	d.mu.Unlock()

	d.hmu.Lock()
	d.history = append(d.history, it)
	if len(d.history) > max {
		d.history = d.history[len(d.history)-max:]
	}
	d.hmu.Unlock()
}
