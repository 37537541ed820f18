package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/pubsub"
	"github.com/nfrund/hexarena/internal/topics"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	reg := NewRegistry(f.opts, f.deps)
	t.Cleanup(reg.Close)
	ctx := context.Background()

	s, err := reg.CreateLobby(ctx, domain.LobbyConfig{ID: "b1", Assets: []string{"BTC"}})
	require.NoError(t, err)

	got, err := reg.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = reg.CreateLobby(ctx, domain.LobbyConfig{ID: "b1", Assets: []string{"BTC"}})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	generated, err := reg.CreateLobby(ctx, domain.LobbyConfig{Assets: []string{"ETH"}})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID())

	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRegistry_ExistingRecordBlocksCreate(t *testing.T) {
	f := newFixture(t)
	first := NewRegistry(f.opts, f.deps)
	_, err := first.CreateLobby(context.Background(), domain.LobbyConfig{ID: "b1", Assets: []string{"BTC"}})
	require.NoError(t, err)
	first.Close()

	second := NewRegistry(f.opts, f.deps)
	t.Cleanup(second.Close)
	_, err = second.CreateLobby(context.Background(), domain.LobbyConfig{ID: "b1", Assets: []string{"BTC"}})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestRegistry_ConcurrentGetRestoresOnce(t *testing.T) {
	f := newFixture(t)
	first := NewRegistry(f.opts, f.deps)
	_, err := first.CreateLobby(context.Background(), domain.LobbyConfig{ID: "b1", Assets: []string{"BTC"}})
	require.NoError(t, err)
	first.Close()

	reg := NewRegistry(f.opts, f.deps)
	t.Cleanup(reg.Close)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = map[*Session]bool{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := reg.Get(context.Background(), "b1")
			assert.NoError(t, err)
			mu.Lock()
			got[s] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, got, 1)
}

func TestRegistry_RecoverAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := NewRegistry(f.opts, f.deps)
	s, err := first.CreateLobby(ctx, domain.LobbyConfig{ID: "live", Assets: []string{"BTC"}, Seed: 3})
	require.NoError(t, err)
	join(t, s, "alice", "bob")
	require.NoError(t, s.StartImmediate(ctx))
	require.NoError(t, s.Tick(ctx))
	before := s.State()

	done, err := first.CreateLobby(ctx, domain.LobbyConfig{ID: "done", Assets: []string{"BTC"}})
	require.NoError(t, err)
	require.NoError(t, done.Cancel(ctx, ""))
	first.Close()

	second := NewRegistry(f.opts, f.deps)
	t.Cleanup(second.Close)
	n, err := second.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "finished battles are not recovered")

	restored, err := second.Get(ctx, "live")
	require.NoError(t, err)
	after := restored.State()
	assert.Equal(t, before.Seq, after.Seq)
	assert.Equal(t, before.State.Epoch, after.State.Epoch)
	assert.Equal(t, before.WakeToken, after.WakeToken)
	assert.Equal(t, before.State.Participants, after.State.Participants)

	num, ok, err := restored.NumericID(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, num)

	obs := &recorder{id: "r"}
	require.NoError(t, restored.Attach(ctx, obs))
	require.NoError(t, restored.Tick(ctx))
	assert.Equal(t, 2, restored.State().State.Epoch)
	require.Eventually(t, func() bool { return len(obs.snapshot()) > 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, before.Seq+1, obs.snapshot()[1].Seq, "sequence numbers continue across restarts")
}

func TestRegistry_RecoveredCountdownResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := time.Now()
	f.opts = Options{
		Countdown:     time.Hour,
		EpochInterval: time.Hour,
		Now:           func() time.Time { return clock },
	}

	first := NewRegistry(f.opts, f.deps)
	s, err := first.CreateLobby(ctx, domain.LobbyConfig{ID: "b1", Assets: []string{"BTC"}})
	require.NoError(t, err)
	join(t, s, "alice", "bob", "carol", "dave", "erin")
	require.Equal(t, domain.StatusCountdown, s.State().Status)
	first.Close()

	// The process comes back after the countdown deadline passed.
	later := clock.Add(2 * time.Hour)
	f.opts.Now = func() time.Time { return later }
	second := NewRegistry(f.opts, f.deps)
	t.Cleanup(second.Close)
	_, err = second.Recover(ctx)
	require.NoError(t, err)

	restored, err := second.Get(ctx, "b1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return restored.State().Status == domain.StatusActive
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublishCompletion(t *testing.T) {
	bus := pubsub.NewWatermillBus()
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan Completion, 1)
	require.NoError(t, bus.Subscribe(context.Background(), topics.BattleCompleted.Name, func(_ context.Context, msg pubsub.Message) error {
		c, err := pubsub.Decode[Completion](msg)
		if err != nil {
			return err
		}
		received <- c
		return nil
	}))

	f := newFixture(t)
	f.deps.Hooks = []CompletionHook{PublishCompletion(bus)}
	f.deps.Observers = func(battleID string) []broadcast.Observer {
		return []broadcast.Observer{broadcast.NewBusObserver(battleID, bus)}
	}
	s := f.lobby(t, "b1")
	join(t, s, "alice", "bob")
	require.NoError(t, s.StartImmediate(context.Background()))
	runToEnd(t, s)

	select {
	case c := <-received:
		assert.Equal(t, "b1", c.BattleID)
		assert.Equal(t, s.State().Winner, c.Winner)
	case <-time.After(2 * time.Second):
		t.Fatal("completion was not published")
	}
}
