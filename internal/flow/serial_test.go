package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genbot/internal/providers/polza"
	"genbot/internal/session"
)

func (l *userLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func waiting(l *userLocks, userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if turn, ok := l.users[userID]; ok {
		return len(turn.waiters)
	}
	return 0
}

func TestUserLocksAdmitInArrivalOrder(t *testing.T) {
	locks := newUserLocks()
	ctx := context.Background()

	unlock, err := locks.lock(ctx, 1)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next, err := locks.lock(ctx, 1)
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			next()
		}(i)
		want := i
		require.Eventually(t, func() bool { return waiting(locks, 1) == want }, time.Second, time.Millisecond)
	}

	// Another user is never blocked by user 1.
	other, err := locks.lock(ctx, 2)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	wg.Wait()
	require.Equal(t, []int{1, 2, 3}, order)
	require.Zero(t, locks.held())
}

func TestUserLocksWaitHonoursContext(t *testing.T) {
	locks := newUserLocks()
	unlock, err := locks.lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.lock(ctx, 7)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	require.Zero(t, locks.held())

	again, err := locks.lock(context.Background(), 7)
	require.NoError(t, err)
	again()
}

// gatedMessenger holds text messages to one chat until gate is closed.
type gatedMessenger struct {
	*fakeMessenger
	chatID  int64
	entered chan struct{}
	gate    chan struct{}
}

func newGatedMessenger(chatID int64) *gatedMessenger {
	return &gatedMessenger{
		fakeMessenger: &fakeMessenger{},
		chatID:        chatID,
		entered:       make(chan struct{}, 8),
		gate:          make(chan struct{}),
	}
}

func (m *gatedMessenger) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	if chatID == m.chatID {
		m.entered <- struct{}{}
		<-m.gate
	}
	return m.fakeMessenger.SendText(ctx, chatID, text, kb)
}

func TestEventsOfOneUserAreSerialized(t *testing.T) {
	gated := newGatedMessenger(20)
	h := newHarness(t, func(o *Options) { o.Messenger = gated })
	h.credit(t, 20, 5)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		first <- h.flow.Handle(ctx, Event{Kind: EventText, UserID: 20, ChatID: 20, Text: ButtonStartPhoto})
	}()
	<-gated.entered

	second := make(chan error, 1)
	go func() {
		second <- h.flow.Handle(ctx, Event{Kind: EventPhoto, UserID: 20, ChatID: 20, FileID: "photo-1"})
	}()

	// Other users proceed while user 20 is mid-transition.
	require.NoError(t, h.flow.Handle(ctx, Event{Kind: EventText, UserID: 21, ChatID: 21, Text: ButtonBalance}))

	select {
	case <-gated.entered:
		t.Fatal("second event ran while the first was still in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.gate)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	sess, err := h.sessions.Load(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, session.StateAwaitingModel, sess.State)
	require.Zero(t, h.flow.serial.held())
}

// blockingGenerator parks Run until release is closed.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Run(ctx context.Context, _ polza.Request) polza.Outcome {
	close(g.started)
	select {
	case <-g.release:
		return readyOutcome()
	case <-ctx.Done():
		return polza.Outcome{Status: polza.OutcomeFailed, Err: ctx.Err()}
	}
}

func TestNewBranchSurvivesRunningGeneration(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(o *Options) { o.Generator = gen })
	h.credit(t, 22, 10)
	ctx := context.Background()

	h.awaitPrompt(t, 22, "nanabanana")
	done := make(chan error, 1)
	go func() {
		done <- h.flow.Handle(ctx, Event{Kind: EventText, UserID: 22, ChatID: 22, Text: "first picture"})
	}()
	<-gen.started

	// The user's turn is free while the provider works.
	h.send(t, Event{Kind: EventText, UserID: 22, Text: ButtonStartVideo})
	h.send(t, Event{Kind: EventPhoto, UserID: 22, FileID: "photo-2"})

	// A second prompt is refused by the generation lock.
	h.send(t, Event{Kind: EventCallback, UserID: 22, Data: CallbackDurationPrefix + "kling_5"})
	h.send(t, Event{Kind: EventText, UserID: 22, Text: "wave"})
	require.Equal(t, msgBusy, h.messenger.last().text)

	close(gen.release)
	require.NoError(t, <-done)

	sess, err := h.sessions.Load(ctx, 22)
	require.NoError(t, err)
	require.Equal(t, session.StateAwaitingMotionPrompt, sess.State)
	require.Equal(t, "photo-2", sess.PhotoFileID)
	require.Equal(t, 1, h.messenger.assets())
	require.Equal(t, int64(9), h.balance(t, 22))
}
