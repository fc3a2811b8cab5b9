package poll

import (
	"context"
	"strings"
	"testing"
	"time"

	"remindbot/internal/apperr"
	"remindbot/internal/clock"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/fake"
	"remindbot/internal/votes"
	logx "remindbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

var (
	creator = kit.User{ID: 1, Name: "Ana"}
	chat    = kit.ChatTarget{ChatID: -200}
)

type harness struct {
	m     *Manager
	clk   *clock.Manual
	ch    *fake.Channel
	board *votes.Board
	bus   eventbus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessCap(t, 16)
}

func newHarnessCap(t *testing.T, boards int) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	ch := fake.New()
	board, err := votes.New(boards, clk, logx.Nop())
	require.NoError(t, err)
	bus := eventbus.New()
	d := delivery.New(delivery.Config{RatePerSec: 1000, SendTimeout: time.Second}, ch, logx.Nop(), nil, nil)
	m := New(Config{}, clk, d, board, logx.Nop(), bus, nil)
	t.Cleanup(m.StopAll)
	return &harness{m: m, clk: clk, ch: ch, board: board, bus: bus}
}

func colors() Poll {
	return Poll{
		ID:       "p1",
		Question: "Favourite colour?",
		Options: []Option{
			{Label: "Red", Symbol: NumberSymbols[0]},
			{Label: "Blue", Symbol: NumberSymbols[1]},
			{Label: "Green", Symbol: NumberSymbols[2]},
		},
	}
}

func TestTallyRanksAndAwardsMedals(t *testing.T) {
	t.Parallel()
	p := colors()
	// Raw counts include the system vote on every symbol.
	res := Tally(p, map[string]int{
		NumberSymbols[0]: 3 + SystemVotesPerSymbol,
		NumberSymbols[1]: 5 + SystemVotesPerSymbol,
		NumberSymbols[2]: 0 + SystemVotesPerSymbol,
	})

	require.Equal(t, 8, res.Total)
	require.Len(t, res.Ranked, 3)

	require.Equal(t, "Blue", res.Ranked[0].Label)
	require.InDelta(t, 62.5, res.Ranked[0].Percent, 1e-9)
	require.Equal(t, "🥇", res.Ranked[0].Medal)
	require.Equal(t, 1, res.Ranked[0].Rank)

	require.Equal(t, "Red", res.Ranked[1].Label)
	require.InDelta(t, 37.5, res.Ranked[1].Percent, 1e-9)
	require.Equal(t, "🥈", res.Ranked[1].Medal)

	require.Equal(t, "Green", res.Ranked[2].Label)
	require.Zero(t, res.Ranked[2].Percent)
	require.Empty(t, res.Ranked[2].Medal)
	require.Equal(t, "Blue", res.Winner())
}

func TestTallyWithoutVotes(t *testing.T) {
	t.Parallel()
	res := Tally(colors(), nil)
	require.Zero(t, res.Total)
	require.Empty(t, res.Winner())
	for i, r := range res.Ranked {
		require.Zero(t, r.Votes)
		require.Zero(t, r.Percent)
		require.Empty(t, r.Medal)
		require.Equal(t, colors().Options[i].Label, r.Label, "ties keep option order")
	}
}

func TestTallyTiesKeepOptionOrder(t *testing.T) {
	t.Parallel()
	res := Tally(colors(), map[string]int{
		NumberSymbols[0]: 2,
		NumberSymbols[1]: 3,
		NumberSymbols[2]: 3,
	})
	require.Equal(t, []string{"Blue", "Green", "Red"}, []string{res.Ranked[0].Label, res.Ranked[1].Label, res.Ranked[2].Label})
	require.Equal(t, "🥉", res.Ranked[2].Medal)
}

func TestParseOptions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want []string
		kind apperr.Kind
	}{
		{raw: "Red, Blue ,Green", want: []string{"Red", "Blue", "Green"}},
		{raw: "a,,b, ", want: []string{"a", "b"}},
		{raw: "only", kind: apperr.TooFewOptions},
		{raw: " , ", kind: apperr.TooFewOptions},
		{raw: "1,2,3,4,5,6,7,8,9,10,11", kind: apperr.TooManyOptions},
		{raw: "Yes, yes", kind: apperr.DuplicateOptions},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOptions(tt.raw)
			if tt.kind != "" {
				require.Equal(t, tt.kind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCreatePollPublishesCard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	p, err := h.m.CreatePoll(context.Background(), creator, chat, "Lunch?", "Pizza, Sushi, Tacos", 30)
	require.NoError(t, err)
	require.Equal(t, General, p.Kind)
	require.Equal(t, 30*time.Minute, p.Duration)
	require.Equal(t, 1, h.m.Open())

	sent := h.ch.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, p.Message, sent[0].Ref)
	require.Contains(t, sent[0].Text, "Lunch?")
	require.Contains(t, sent[0].Text, "2️⃣ Sushi")
	require.Len(t, sent[0].Opt.Keyboard, 1)
	require.Len(t, sent[0].Opt.Keyboard[0], 3)
	require.Equal(t, "vote|"+p.ID+"|2", sent[0].Opt.Keyboard[0][2].Data)

	counts, ok := h.board.Counts(p.ID)
	require.True(t, ok)
	require.Equal(t, SystemVotesPerSymbol, counts["1️⃣"])
}

func TestVoteThenClosePublishesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	events, unsub := h.bus.Subscribe(16)
	defer unsub()

	p, err := h.m.CreatePoll(context.Background(), creator, chat, "Colour?", "Red, Blue, Green", 10)
	require.NoError(t, err)

	for _, v := range []struct {
		idx  int
		user int64
	}{{1, 1}, {1, 2}, {0, 3}, {1, 4}} {
		res, err := h.m.Vote(p.ID, v.idx, v.user)
		require.NoError(t, err)
		require.True(t, res.Added)
	}
	res, err := h.m.Vote(p.ID, 1, 4)
	require.NoError(t, err)
	require.False(t, res.Added, "second tap removes the vote")
	require.Equal(t, "Blue", res.Option.Label)

	h.clk.Advance(10 * time.Minute)

	sent := h.ch.Sent()
	require.Len(t, sent, 2)
	results := sent[1].Text
	require.Contains(t, results, "🥇 2️⃣ Blue: 2 votes (66.7%)")
	require.Contains(t, results, "🥈 1️⃣ Red: 1 vote (33.3%)")
	require.Contains(t, results, "3. 3️⃣ Green: 0 votes (0%)")
	require.Nil(t, sent[1].Opt.Keyboard)

	edits := h.ch.Edits()
	require.Len(t, edits, 1)
	require.Equal(t, p.Message, edits[0].Ref)
	require.Nil(t, edits[0].Opt.Keyboard)
	require.Contains(t, edits[0].Text, "Voting has ended")

	require.Equal(t, 0, h.m.Open())
	require.Equal(t, 0, h.board.Len())
	_, err = h.m.Vote(p.ID, 0, 9)
	require.ErrorIs(t, err, ErrClosed)

	h.clk.Advance(time.Hour)
	require.Len(t, h.ch.Sent(), 2)

	var closed *Event
	for len(events) > 0 {
		e := <-events
		if e.Type == "poll.closed" {
			ev := e.Data.(Event)
			closed = &ev
		}
	}
	require.NotNil(t, closed)
	require.Equal(t, 3, closed.Total)
	require.Equal(t, "Blue", closed.Winner)
}

func TestFullBoardRefusesNewPollAndKeepsOpenVotes(t *testing.T) {
	t.Parallel()
	h := newHarnessCap(t, 2)
	ctx := context.Background()

	p1, err := h.m.CreatePoll(ctx, creator, chat, "Lunch?", "A, B", 10)
	require.NoError(t, err)
	_, err = h.m.Vote(p1.ID, 0, 42)
	require.NoError(t, err)
	_, err = h.m.CreateQuickPoll(ctx, creator, chat, "Coffee?", 20)
	require.NoError(t, err)

	_, err = h.m.CreateQuickPoll(ctx, creator, chat, "Tea?", 20)
	require.Equal(t, apperr.TooManyOpenPolls, apperr.KindOf(err))
	require.Equal(t, 2, h.m.Open())
	require.Len(t, h.ch.Sent(), 2)

	res, err := h.m.Vote(p1.ID, 1, 43)
	require.NoError(t, err)
	require.True(t, res.Added)

	h.clk.Advance(10 * time.Minute)
	sent := h.ch.Sent()
	require.Len(t, sent, 3)
	require.Contains(t, sent[2].Text, "A: 1 vote (50%)")
	require.Contains(t, sent[2].Text, "B: 1 vote (50%)")

	// The closed poll frees a slot.
	_, err = h.m.CreateQuickPoll(ctx, creator, chat, "Tea?", 20)
	require.NoError(t, err)
}

func TestQuickPoll(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	p, err := h.m.CreateQuickPoll(context.Background(), creator, chat, "Ship it?", 15)
	require.NoError(t, err)
	require.Equal(t, Quick, p.Kind)
	require.Equal(t, []string{YesSymbol, NoSymbol}, p.Symbols())

	sent := h.ch.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "✅ Yes", sent[0].Opt.Keyboard[0][0].Text)
	require.Contains(t, sent[0].Text, "Quick Poll")

	h.clk.Advance(15 * time.Minute)
	sent = h.ch.Sent()
	require.Len(t, sent, 2)
	require.Contains(t, sent[1].Text, "No votes were cast.")
}

func TestPollDurationBounds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		minutes int
		ok      bool
	}{
		{9, false},
		{10, true},
		{1440, true},
		{1441, false},
	}
	for _, tt := range tests {
		h := newHarness(t)
		_, err := h.m.CreateQuickPoll(context.Background(), creator, chat, "q", tt.minutes)
		if tt.ok {
			require.NoError(t, err, "minutes=%d", tt.minutes)
			continue
		}
		require.Equal(t, apperr.DurationOutOfRange, apperr.KindOf(err), "minutes=%d", tt.minutes)
		require.Empty(t, h.ch.Sent())
	}
}

func TestCreatePollValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.CreatePoll(ctx, creator, chat, "  ", "a, b", 10)
	require.Equal(t, apperr.EmptyQuestion, apperr.KindOf(err))
	_, err = h.m.CreatePoll(ctx, creator, chat, "q", "a", 10)
	require.Equal(t, apperr.TooFewOptions, apperr.KindOf(err))
	_, err = h.m.CreatePoll(ctx, creator, chat, "q", strings.Repeat("x,", 10)+"y", 10)
	require.Equal(t, apperr.DuplicateOptions, apperr.KindOf(err))

	require.Empty(t, h.ch.Sent())
	require.Equal(t, 0, h.m.Open())
}

func TestPublishFailureLeavesNothingOpen(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ch.SetChatErr(chat.ChatID, kit.ErrForbidden)

	_, err := h.m.CreatePoll(context.Background(), creator, chat, "q", "a, b", 10)
	require.ErrorIs(t, err, delivery.ErrChannelUnavailable)
	require.Equal(t, 0, h.m.Open())
	require.Equal(t, 0, h.board.Len())
	require.Equal(t, 0, h.clk.Pending())
}

func TestVoteUnknownOption(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	p, err := h.m.CreateQuickPoll(context.Background(), creator, chat, "q", 10)
	require.NoError(t, err)

	_, err = h.m.Vote(p.ID, 2, 5)
	require.ErrorIs(t, err, ErrUnknownOption)
	_, err = h.m.Vote("missing", 0, 5)
	require.ErrorIs(t, err, ErrClosed)
}

func TestStopAllDiscardsOpenPolls(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.m.CreateQuickPoll(context.Background(), creator, chat, "q", 10)
	require.NoError(t, err)

	h.m.StopAll()
	h.clk.Advance(time.Hour)
	require.Len(t, h.ch.Sent(), 1)
	require.Equal(t, 0, h.m.Open())

	_, err = h.m.CreateQuickPoll(context.Background(), creator, chat, "q", 10)
	require.ErrorIs(t, err, ErrStopped)
}
