package sim

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/domain"
)

func TestRun_PrintsEveryEventInOrder(t *testing.T) {
	var seen []broadcast.Event
	collect := func(_ io.Writer, ev broadcast.Event) error {
		seen = append(seen, ev)
		return nil
	}

	final, err := Run(context.Background(), Options{Players: 3, Seed: 11, Assets: []string{"BTC", "ETH"}}, io.Discard, collect)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, uint64(11), final.State.Seed)
	require.NotEmpty(t, seen)

	assert.Equal(t, broadcast.StateSnapshot, seen[0].Type)
	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1].Seq+1, seen[i].Seq, "event %d", i)
	}
	assert.Equal(t, final.Seq, seen[len(seen)-1].Seq)
}

func TestRun_FiveOrMorePlayersSkipCountdown(t *testing.T) {
	final, err := Run(context.Background(), Options{Players: 6, Seed: 5, Assets: []string{"SOL"}}, io.Discard,
		func(io.Writer, broadcast.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Len(t, final.State.Participants, 6)
}

func TestRun_BundledScript(t *testing.T) {
	var buf bytes.Buffer
	final, err := Run(context.Background(), Options{Players: 2, Seed: 3, Assets: []string{"BTC"}, Script: "bundled:hunter"}, &buf,
		func(w io.Writer, ev broadcast.Event) error {
			_, err := io.WriteString(w, string(ev.Type)+"\n")
			return err
		})
	require.NoError(t, err)
	assert.True(t, final.Status.Terminal())
	assert.Contains(t, buf.String(), "battle_started")
}

func TestRun_RejectsBadInput(t *testing.T) {
	noop := func(io.Writer, broadcast.Event) error { return nil }

	_, err := Run(context.Background(), Options{Players: 1, Assets: []string{"BTC"}}, io.Discard, noop)
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{Players: 9, Assets: []string{"BTC"}}, io.Discard, noop)
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{Players: 2, Assets: []string{"BTC"}, Script: "bundled:nope"}, io.Discard, noop)
	assert.Error(t, err)
}
