package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/epoch"
	"github.com/nfrund/hexarena/internal/phase"
	"github.com/nfrund/hexarena/internal/pubsub"
	"github.com/nfrund/hexarena/internal/topics"
)

type recorder struct {
	id      string
	mu      sync.Mutex
	events  []Event
	fail    bool
	block   chan struct{}
	explode bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(ctx context.Context, ev Event) error {
	if r.explode {
		panic("observer bug")
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.fail {
		return errors.New("send failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) seqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Seq
	}
	return out
}

func seqEvents(from, to uint64) []Event {
	var out []Event
	for s := from; s <= to; s++ {
		out = append(out, Event{BattleID: "b1", Seq: s, Type: EpochStart})
	}
	return out
}

func TestBroadcaster_InitialEventsFirst(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	obs := &recorder{id: "o1"}
	b.Attach(obs, Event{Seq: 10, Type: StateSnapshot})
	b.Publish(seqEvents(11, 13)...)

	require.Eventually(t, func() bool { return len(obs.seqs()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{10, 11, 12, 13}, obs.seqs())
}

func TestBroadcaster_FailingObserverIsolated(t *testing.T) {
	b := New(Options{FailureLimit: 2})
	defer b.Close()

	good := &recorder{id: "good"}
	bad := &recorder{id: "bad", fail: true}
	b.Attach(good)
	b.Attach(bad)
	b.Publish(seqEvents(1, 5)...)

	require.Eventually(t, func() bool { return len(good.seqs()) == 5 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_PanickingObserverDetached(t *testing.T) {
	b := New(Options{FailureLimit: 1})
	defer b.Close()

	b.Attach(&recorder{id: "boom", explode: true})
	b.Publish(seqEvents(1, 1)...)
	require.Eventually(t, func() bool { return b.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_SlowObserverDetachedWhenQueueFull(t *testing.T) {
	b := New(Options{QueueSize: 2, SendTimeout: time.Minute})
	defer b.Close()

	slow := &recorder{id: "slow", block: make(chan struct{})}
	defer close(slow.block)
	fast := &recorder{id: "fast"}
	b.Attach(slow)
	b.Attach(fast)

	for s := uint64(1); s <= 10; s++ {
		b.Publish(seqEvents(s, s)...)
		// Give the fast writer room to drain between publishes.
		require.Eventually(t, func() bool { return uint64(len(fast.seqs())) == s }, time.Second, time.Millisecond)
	}
	assert.Equal(t, 1, b.Count())
}

func TestBroadcaster_AttachReplacesSameID(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	first := &recorder{id: "same"}
	second := &recorder{id: "same"}
	b.Attach(first)
	b.Attach(second)
	assert.Equal(t, 1, b.Count())

	b.Publish(seqEvents(1, 1)...)
	require.Eventually(t, func() bool { return len(second.seqs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, first.seqs())

	b.Detach("same")
	assert.Equal(t, 0, b.Count())
}

func TestBroadcaster_AttachAfterClose(t *testing.T) {
	b := New(Options{})
	b.Close()
	b.Attach(&recorder{id: "late"})
	assert.Equal(t, 0, b.Count())
}

func TestSequence_Order(t *testing.T) {
	res := epoch.Result{Epoch: 3, Phase: phase.Hunt, HazardRing: 3}
	types := func(evs []Event) []EventType {
		out := make([]EventType, len(evs))
		for i, ev := range evs {
			out[i] = ev.Type
		}
		return out
	}
	base := []EventType{
		EpochStart, SponsorBoosts, MovementResults, ItemPickups, TrapTriggers,
		ParticipantActions, PredictionResults, CombatResults, ItemSpawns,
		StormDamage, Deaths, EpochEnd, GridSnapshot,
	}

	assert.Equal(t, base, types(Sequence(res, nil)))

	res.Complete, res.Winner = true, "p1"
	res.PhaseChange = &epoch.PhaseChange{From: phase.Loot, To: phase.Hunt, HazardRing: 3}
	assert.Equal(t, append(append([]EventType{}, base...), BattleEnd, PhaseChange), types(Sequence(res, nil)))

	res.Timeout = true
	evs := Sequence(res, nil)
	assert.Equal(t, TimeoutWin, evs[len(evs)-2].Type)
	for _, ev := range evs {
		assert.Equal(t, 3, ev.Epoch)
	}
}

func TestSequence_EmptyListsEncodeAsArrays(t *testing.T) {
	evs := Sequence(epoch.Result{Epoch: 1, Phase: phase.Loot}, nil)
	data, err := json.Marshal(evs[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestBusObserver(t *testing.T) {
	bus := pubsub.NewWatermillBus()
	defer bus.Close()
	ctx := context.Background()

	got := make(chan pubsub.Message, 1)
	require.NoError(t, bus.Subscribe(ctx, topics.BattleEvents.Name, func(_ context.Context, msg pubsub.Message) error {
		got <- msg
		return nil
	}))

	obs := NewBusObserver("b1", bus)
	assert.Equal(t, "bus:b1", obs.ID())
	require.NoError(t, obs.Send(ctx, Event{BattleID: "b1", Seq: 7, Type: Deaths, Payload: []string{}}))

	select {
	case msg := <-got:
		assert.Equal(t, "b1", msg.BattleID)
		assert.Equal(t, "7", msg.Metadata["seq"])
		assert.Equal(t, "deaths", msg.Metadata["type"])
		var ev Event
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, uint64(7), ev.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("bus message not delivered")
	}
}
