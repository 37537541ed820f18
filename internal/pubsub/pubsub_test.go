package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nfrund/hexarena/internal/topics"
)

type completed struct {
	BattleID string `json:"battle_id"`
	Winner   string `json:"winner"`
}

func TestWatermillBus_PublishSubscribe(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bus.Subscribe(ctx, "battle.events", func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, Message{
		Topic:    "battle.events",
		BattleID: "b1",
		Payload:  []byte(`{"seq":1}`),
		Metadata: map[string]string{"type": "epoch_start"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "battle.events", msg.Topic)
		assert.Equal(t, "b1", msg.BattleID)
		assert.JSONEq(t, `{"seq":1}`, string(msg.Payload))
		assert.Equal(t, "epoch_start", msg.Metadata["type"])
		assert.NotContains(t, msg.Metadata, metaKeyBattleID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWatermillBus_HandlerErrorDoesNotStopLoop(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()
	ctx := context.Background()

	calls := make(chan struct{}, 2)
	require.NoError(t, bus.Subscribe(ctx, "t", func(context.Context, Message) error {
		calls <- struct{}{}
		return errors.New("boom")
	}))
	require.NoError(t, bus.Publish(ctx, Message{Topic: "t"}))
	require.NoError(t, bus.Publish(ctx, Message{Topic: "t"}))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler call %d missing", i+1)
		}
	}
}

func TestWatermillBus_PublishSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	bus := NewWatermillBus(WithTracer(tp.Tracer("test")))
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), Message{Topic: "battle.events", BattleID: "b9"}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "bus.publish", spans[0].Name())
}

func TestTypedPublish(t *testing.T) {
	bus := NewWatermillBus()
	defer bus.Close()
	ctx := context.Background()

	event := NewEvent[completed](topics.BattleCompleted)
	got := make(chan completed, 1)
	require.NoError(t, bus.Subscribe(ctx, event.Name(), func(_ context.Context, msg Message) error {
		v, err := Decode[completed](msg)
		if err != nil {
			return err
		}
		got <- v
		return nil
	}))

	require.NoError(t, Publish(ctx, bus, event, "b1", completed{BattleID: "b1", Winner: "p3"}))

	select {
	case v := <-got:
		assert.Equal(t, "p3", v.Winner)
	case <-time.After(2 * time.Second):
		t.Fatal("typed event not delivered")
	}
}

func TestNewEvent_UnregisteredPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewEvent[completed](topics.Topic{Name: "nobody.registered.this"})
	})
}
