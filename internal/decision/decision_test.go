package decision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/decision/scripts"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/phase"
)

var assets = []string{"BTC", "ETH"}

func at(q, r int) *hexgrid.Coord { return &hexgrid.Coord{Q: q, R: r} }

func participant(id string, arch domain.Archetype, hp int, pos *hexgrid.Coord) domain.Participant {
	p := domain.NewParticipant(id, "name-"+id, arch, 0)
	p.HP = hp
	p.Position = pos
	return p
}

func request(self domain.Participant, others ...domain.Participant) Request {
	arena := hexgrid.New(hexgrid.DefaultRadius)
	for _, p := range append([]domain.Participant{self}, others...) {
		if p.Position != nil {
			_ = arena.Place(p.ID, *p.Position)
		}
	}
	return Request{
		BattleID: "b1", Epoch: 4, Phase: phase.Hunt, HazardRing: 3,
		Self: self, Others: others, Tiles: arena.Tiles(), Assets: assets,
	}
}

func TestGather_IsolatesFailures(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, req Request) (domain.EpochAction, error) {
		switch req.Self.ID {
		case "slow":
			time.Sleep(time.Second) // ignores ctx
			return domain.SafeDefault(assets), nil
		case "boom":
			panic("provider bug")
		case "err":
			return domain.EpochAction{}, errors.New("llm unavailable")
		default:
			return domain.EpochAction{Stance: domain.StanceDefend, Prediction: domain.Prediction{Asset: "BTC", Direction: domain.DirectionUp, StakePercent: 10}}, nil
		}
	})
	g := &Gatherer{Provider: provider, Timeout: 50 * time.Millisecond}

	var reqs []Request
	for _, id := range []string{"ok", "slow", "boom", "err"} {
		reqs = append(reqs, Request{BattleID: "b1", Epoch: 1, Self: domain.Participant{ID: id}})
	}

	start := time.Now()
	got := g.Gather(context.Background(), reqs)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Len(t, got, 4)
	assert.NoError(t, got["ok"].Err)
	assert.Equal(t, domain.StanceDefend, got["ok"].Action.Stance)
	assert.ErrorIs(t, got["slow"].Err, ErrTimeout)
	assert.ErrorContains(t, got["boom"].Err, "panicked")
	assert.ErrorContains(t, got["err"].Err, "llm unavailable")
}

func TestBot_ProducesValidDeterministicActions(t *testing.T) {
	bot := NewBotProvider(7)
	for _, arch := range domain.Archetypes {
		self := participant("p1", arch, 800, at(3, 0))
		req := request(self, participant("p2", domain.Warrior, 500, at(-3, 0)), participant("p3", domain.Trader, 500, at(2, 1)))

		a, err := bot.Decide(context.Background(), req)
		require.NoError(t, err)
		assert.NoError(t, domain.ValidateAction(a, assets), arch)
		if a.Target != "" {
			assert.Equal(t, "p3", a.Target, "nearest opponent")
		}

		again, err := bot.Decide(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, a, again)
	}
}

func TestBot_LootIsPeaceful(t *testing.T) {
	req := request(participant("p1", domain.Warrior, 1000, at(3, 0)), participant("p2", domain.Trader, 500, at(2, 0)))
	req.Phase, req.HazardRing = phase.Loot, 0

	a, err := NewBotProvider(1).Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StanceNone, a.Stance)
	assert.Empty(t, a.Target)
}

func TestBot_LeavesStormInward(t *testing.T) {
	req := request(participant("p1", domain.Survivor, 1000, at(3, 0)))
	req.Phase, req.HazardRing = phase.Blood, 2

	a, err := NewBotProvider(1).Decide(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, a.Move)
	assert.Equal(t, 2, a.Move.Ring())
	assert.True(t, hexgrid.Adjacent(hexgrid.Coord{Q: 3, R: 0}, *a.Move))
}

func TestBot_NoAssets(t *testing.T) {
	req := request(participant("p1", domain.Survivor, 1000, at(3, 0)))
	req.Assets = nil
	_, err := NewBotProvider(1).Decide(context.Background(), req)
	assert.Error(t, err)
}

func TestScript_Hunter(t *testing.T) {
	p, err := NewScriptProvider("hunter", []byte(scripts.Hunter))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version())

	req := request(participant("p1", domain.Warrior, 1000, at(3, 0)),
		participant("p2", domain.Trader, 700, at(-3, 0)),
		participant("p3", domain.Parasite, 300, at(0, 3)))

	a, err := p.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StanceAttack, a.Stance)
	assert.Equal(t, "p3", a.Target)
	assert.Equal(t, 200, a.Stake)
	assert.Equal(t, "BTC", a.Prediction.Asset)
	assert.Equal(t, domain.DirectionDown, a.Prediction.Direction)
	assert.NoError(t, domain.ValidateAction(a, assets))

	req.Self.HP = 200
	a, err = p.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StanceDefend, a.Stance)
}

func TestScript_Errors(t *testing.T) {
	_, err := NewScriptProvider("broken", []byte(`action := {`))
	assert.Error(t, err)

	p, err := NewScriptProvider("silent", []byte(`x := 1`))
	require.NoError(t, err)
	_, err = p.Decide(context.Background(), request(participant("p1", domain.Warrior, 1000, at(3, 0))))
	assert.ErrorIs(t, err, ErrNoAction)

	p, err = NewScriptProvider("spin", []byte(`for { }`))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Decide(ctx, request(participant("p1", domain.Warrior, 1000, at(3, 0))))
	assert.Error(t, err)
}

func TestScript_MoveField(t *testing.T) {
	p, err := NewScriptProvider("mover", []byte(`action := {asset: "ETH", direction: "UP", stake_percent: 5, move: {q: 2, r: 0}}`))
	require.NoError(t, err)
	a, err := p.Decide(context.Background(), request(participant("p1", domain.Warrior, 1000, at(3, 0))))
	require.NoError(t, err)
	assert.Equal(t, domain.StanceNone, a.Stance)
	require.NotNil(t, a.Move)
	assert.Equal(t, hexgrid.Coord{Q: 2, R: 0}, *a.Move)
}

func TestScript_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.tengo")
	write := func(src string) { require.NoError(t, os.WriteFile(path, []byte(src), 0o644)) }
	write(`action := {asset: "BTC", direction: "UP", stake_percent: 5, rationale: "v1"}`)

	p, err := NewScriptProviderFromFile(path)
	require.NoError(t, err)
	reloaded := make(chan int, 4)
	p.OnReload = func(_ string, v int) { reloaded <- v }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Watch(ctx))

	write(`action := {asset: "BTC", direction: "UP", stake_percent: 5, rationale: "v2"}`)
	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("script was not reloaded")
	}

	a, err := p.Decide(context.Background(), request(participant("p1", domain.Warrior, 1000, at(3, 0))))
	require.NoError(t, err)
	assert.Equal(t, "v2", a.Rationale)

	// A broken edit keeps the last good version.
	before := p.Version()
	write(`action := {`)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, p.Version())
}
