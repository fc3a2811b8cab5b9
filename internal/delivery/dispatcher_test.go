package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/fake"
	logx "remindbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

func newTestDispatcher(ch kit.Channel, bus eventbus.Bus) *Dispatcher {
	return New(Config{RatePerSec: 1000, SendTimeout: time.Second}, ch, logx.Nop(), bus, nil)
}

func TestDeliverStatuses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		setup  func(ch *fake.Channel)
		env    Envelope
		status Status
		sent   int
	}{
		{
			name:   "delivered without recipient",
			setup:  func(*fake.Channel) {},
			env:    Envelope{Kind: "poll", Channel: kit.ChatTarget{ChatID: 1}, Text: "hi"},
			status: Delivered,
			sent:   1,
		},
		{
			name:   "channel missing",
			setup:  func(ch *fake.Channel) { ch.SetChatErr(1, fmt.Errorf("chat: %w", kit.ErrNotFound)) },
			env:    Envelope{Channel: kit.ChatTarget{ChatID: 1}, Text: "hi"},
			status: ChannelUnavailable,
		},
		{
			name:   "channel forbidden on send",
			setup:  func(ch *fake.Channel) { ch.SetSendErr(kit.ErrForbidden) },
			env:    Envelope{Channel: kit.ChatTarget{ChatID: 1}, Text: "hi"},
			status: ChannelUnavailable,
		},
		{
			name:   "recipient left",
			setup:  func(ch *fake.Channel) { ch.AddMember(kit.User{ID: 7}) },
			env:    Envelope{Channel: kit.ChatTarget{ChatID: 1}, RecipientID: 8, Text: "hi"},
			status: RecipientUnresolvable,
		},
		{
			name:   "transport failure",
			setup:  func(ch *fake.Channel) { ch.SetSendErr(errors.New("connection reset")) },
			env:    Envelope{Channel: kit.ChatTarget{ChatID: 1}, Text: "hi"},
			status: TransportError,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ch := fake.New()
			tt.setup(ch)
			d := newTestDispatcher(ch, nil)

			out := d.Deliver(context.Background(), tt.env)
			require.Equal(t, tt.status, out.Status)
			if tt.status == Delivered {
				require.NoError(t, out.Err)
			} else {
				require.Error(t, out.Err)
			}
			require.Len(t, ch.Sent(), tt.sent)
		})
	}
}

func TestDeliverComposeSeesRecipient(t *testing.T) {
	t.Parallel()
	ch := fake.New()
	ch.AddMember(kit.User{ID: 42, Name: "Ana"})
	d := newTestDispatcher(ch, nil)

	out := d.Deliver(context.Background(), Envelope{
		Channel:     kit.ChatTarget{ChatID: 5, ThreadID: 3},
		RecipientID: 42,
		Compose: func(u kit.User) (string, *kit.SendOptions) {
			return "hey " + u.Name, &kit.SendOptions{ParseMode: "HTML"}
		},
	})
	require.True(t, out.OK())
	require.Equal(t, "Ana", out.Recipient.Name)

	sent := ch.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "hey Ana", sent[0].Text)
	require.Equal(t, 3, sent[0].To.ThreadID)
	require.Equal(t, sent[0].Ref, out.Ref)
}

func TestDeliverRecoversPanics(t *testing.T) {
	t.Parallel()
	ch := fake.New()
	ch.Panic = true
	d := newTestDispatcher(ch, nil)

	out := d.Deliver(context.Background(), Envelope{Channel: kit.ChatTarget{ChatID: 1}, Text: "x"})
	require.Equal(t, TransportError, out.Status)
	require.ErrorIs(t, out.Err, ErrTransport)
}

func TestDeliverPublishesEventsAndHistory(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	ch := fake.New()
	d := newTestDispatcher(ch, bus)
	d.Deliver(context.Background(), Envelope{Kind: "reminder", Channel: kit.ChatTarget{ChatID: 9}, Text: "x"})
	ch.SetChatErr(9, kit.ErrForbidden)
	d.Deliver(context.Background(), Envelope{Kind: "reminder", Channel: kit.ChatTarget{ChatID: 9}, Text: "x"})

	e1 := <-events
	e2 := <-events
	require.Equal(t, "delivery.sent", e1.Type)
	require.Equal(t, "delivery.failed", e2.Type)
	require.Equal(t, ChannelUnavailable, e2.Data.(DeliveryEvent).Status)

	hist := d.Snapshot()
	require.Len(t, hist, 2)
	require.Equal(t, Delivered, hist[0].Status)
}

func TestDeliverHonorsCancelledContext(t *testing.T) {
	t.Parallel()
	ch := fake.New()
	d := New(Config{RatePerSec: 1, SendTimeout: time.Second}, ch, logx.Nop(), nil, nil)
	// Drain the single burst token.
	require.True(t, d.Deliver(context.Background(), Envelope{Channel: kit.ChatTarget{ChatID: 1}}).OK())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := d.Deliver(ctx, Envelope{Channel: kit.ChatTarget{ChatID: 1}})
	require.Equal(t, TransportError, out.Status)
	require.Len(t, ch.Sent(), 1)
}

func TestEdit(t *testing.T) {
	t.Parallel()
	ch := fake.New()
	d := newTestDispatcher(ch, nil)
	ref := kit.MessageRef{ChatID: 1, MessageID: 4}
	require.NoError(t, d.Edit(context.Background(), ref, "closed", nil))
	require.Len(t, ch.Edits(), 1)

	ch.SetSendErr(errors.New("boom"))
	require.ErrorIs(t, d.Edit(context.Background(), ref, "closed", nil), ErrTransport)
}
