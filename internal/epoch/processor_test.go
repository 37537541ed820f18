package epoch

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/market"
	"github.com/nfrund/hexarena/internal/phase"
)

var assets = []string{"BTC"}

func price(v int64) market.Snapshot {
	return market.Snapshot{Prices: map[string]decimal.Decimal{"BTC": decimal.NewFromInt(v)}}
}

type seat struct {
	class domain.Archetype
	hp    int
	at    hexgrid.Coord
}

// fixture builds a state with participants p1..pn seated as given.
func fixture(t *testing.T, lastEpoch int, seats ...seat) State {
	t.Helper()
	arena := hexgrid.New(hexgrid.DefaultRadius)
	var ps []domain.Participant
	for i, s := range seats {
		id := fmt.Sprintf("p%d", i+1)
		p := domain.NewParticipant(id, "Player "+id, s.class, i)
		p.HP = s.hp
		pos := s.at
		p.Position = &pos
		require.NoError(t, arena.Place(id, s.at))
		ps = append(ps, p)
	}
	return State{
		Epoch:        lastEpoch,
		Participants: ps,
		Arena:        arena,
		Schedule:     phase.ComputeSchedule(len(seats)),
		Assets:       assets,
		Seed:         7,
		Market:       price(100),
	}
}

func act(dir domain.Direction, stake int) domain.EpochAction {
	return domain.EpochAction{
		Prediction: domain.Prediction{Asset: "BTC", Direction: dir, StakePercent: stake},
		Stance:     domain.StanceNone,
	}
}

func attack(stance domain.Stance, target string, stake int) domain.EpochAction {
	a := act(domain.DirectionUp, 5)
	a.Stance, a.Target, a.Stake = stance, target, stake
	return a
}

func hpOf(t *testing.T, s State, id string) int {
	t.Helper()
	p := s.Participant(id)
	require.NotNil(t, p)
	return p.HP
}

func TestProcess_DecisionFailureResilience(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: 0, R: 1}},
	)
	in := Input{
		State: st,
		Decisions: map[string]Decision{
			"p1": {Action: act(domain.DirectionUp, 10)},
			"p2": {Err: errors.New("provider timeout")},
			"p3": {Action: act(domain.DirectionDown, 10)},
		},
		Market: price(110),
	}

	res, next, err := Process(in)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Epoch)
	assert.Equal(t, 1, next.Epoch)
	require.Len(t, res.Actions, 3)
	assert.False(t, res.Actions[0].Substituted)
	assert.True(t, res.Actions[1].Substituted)
	assert.Contains(t, res.Actions[1].Reason, "provider timeout")
	assert.Equal(t, domain.SafeDefault(assets), res.Actions[1].Action)

	assert.Equal(t, 580, hpOf(t, next, "p1"), "500 + 100 - bleed")
	assert.Equal(t, 530, hpOf(t, next, "p2"), "default 5% UP on a rising market")
	assert.Equal(t, 380, hpOf(t, next, "p3"), "500 - 100 - bleed")
}

func TestProcess_MissingDecisionUsesDefault(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
	)
	res, _, err := Process(Input{State: st, Decisions: map[string]Decision{
		"p1": {Action: act(domain.DirectionUp, 50)},
	}, Market: price(100)})
	require.NoError(t, err)
	assert.True(t, res.Actions[1].Substituted)
	assert.Equal(t, "no decision", res.Actions[1].Reason)
}

func TestProcess_LootDisablesCombat(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Warrior, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
	)
	res, next, err := Process(Input{State: st, Decisions: map[string]Decision{
		"p1": {Action: attack(domain.StanceAttack, "p2", 300)},
		"p2": {Action: act(domain.DirectionUp, 5)},
	}, Market: price(100)})
	require.NoError(t, err)

	assert.Equal(t, phase.Loot, res.Phase)
	assert.Empty(t, res.Combat)
	assert.Equal(t, domain.StanceNone, res.Actions[0].Effective)
	assert.Equal(t, 430, hpOf(t, next, "p2"), "only prediction and bleed")
}

func TestProcess_MutualTargetingResolvesOnce(t *testing.T) {
	// Two participants: epoch 2 is HUNT, storm on ring 3 only.
	st := fixture(t, 1,
		seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
	)
	res, _, err := Process(Input{State: st, Decisions: map[string]Decision{
		"p1": {Action: attack(domain.StanceAttack, "p2", 20)},
		"p2": {Action: attack(domain.StanceAttack, "p1", 30)},
	}, Market: price(110)})
	require.NoError(t, err)

	require.Len(t, res.Combat, 1)
	out := res.Combat[0]
	assert.Equal(t, "p1", out.AttackerID)
	assert.Equal(t, 6, out.AttackerDamage)
	assert.Equal(t, 9, out.DefenderDamage)
}

func TestProcess_WinDetectionByCombat(t *testing.T) {
	st := fixture(t, 1,
		seat{domain.Trader, 1000, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 100, hexgrid.Coord{Q: -1, R: 0}},
	)
	res, next, err := Process(Input{State: st, Decisions: map[string]Decision{
		"p1": {Action: attack(domain.StanceAttack, "p2", 200)},
		"p2": {Action: act(domain.DirectionUp, 5)},
	}, Market: price(100)})
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.False(t, res.Timeout)
	assert.Equal(t, "p1", res.Winner)
	require.Len(t, res.Deaths, 1)
	assert.Equal(t, Death{ParticipantID: "p2", KillerID: "p1", Cause: CauseCombat, LastPosition: hexgrid.Coord{Q: -1, R: 0}}, res.Deaths[0])

	p2 := next.Participant("p2")
	assert.False(t, p2.Alive)
	assert.Zero(t, p2.HP)
	require.NotNil(t, p2.Position, "last known position is kept")
	_, onBoard := next.Arena.PositionOf("p2")
	assert.False(t, onBoard)
	assert.Equal(t, 1, next.Participant("p1").Kills)
}

func TestProcess_WinDetectionByPrediction(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 15, hexgrid.Coord{Q: -1, R: 0}},
	)
	res, _, err := Process(Input{State: st, Decisions: map[string]Decision{}, Market: price(100)})
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, "p1", res.Winner)
	require.Len(t, res.Deaths, 1)
	assert.Equal(t, CausePrediction, res.Deaths[0].Cause)
	assert.Empty(t, res.Deaths[0].KillerID)
}

func TestProcess_TimeoutPicksHighestHP(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Trader, 400, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 250, hexgrid.Coord{Q: -1, R: 0}},
		seat{domain.Trader, 600, hexgrid.Coord{Q: 0, R: 1}},
	)
	st.Epoch = st.Schedule.Total - 1

	res, next, err := Process(Input{State: st, Decisions: map[string]Decision{}, Market: price(100)})
	require.NoError(t, err)

	assert.Equal(t, phase.FinalStand, res.Phase)
	assert.True(t, res.Complete)
	assert.True(t, res.Timeout)
	assert.Equal(t, "p3", res.Winner)
	assert.Len(t, res.Storm, 3)
	assert.Equal(t, 480, hpOf(t, next, "p3"), "600 - 50 prediction - 20 bleed - 50 storm")
}

func TestTimeoutWinner(t *testing.T) {
	mk := func(id string, hp, order int) domain.Participant {
		p := domain.NewParticipant(id, id, domain.Trader, order)
		p.HP = hp
		return p
	}
	assert.Equal(t, "c", TimeoutWinner([]domain.Participant{mk("a", 400, 0), mk("b", 250, 1), mk("c", 600, 2)}))
	assert.Equal(t, "b", TimeoutWinner([]domain.Participant{mk("a", 300, 2), mk("b", 300, 1), mk("c", 100, 0)}))

	dead := mk("d", 900, 0)
	dead.Alive = false
	assert.Equal(t, "a", TimeoutWinner([]domain.Participant{dead, mk("a", 10, 1)}))
	assert.Empty(t, TimeoutWinner(nil))
}

func TestProcess_SkillCooldown(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Survivor, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
	)
	fortify := act(domain.DirectionDown, 20)
	fortify.UseSkill = true
	decisions := map[string]Decision{"p1": {Action: fortify}}

	res, next, err := Process(Input{State: st, Decisions: decisions, Market: price(110)})
	require.NoError(t, err)
	require.Len(t, res.Skills, 1)
	assert.Equal(t, domain.SkillFortify, res.Skills[0].Skill)
	assert.Equal(t, 500, hpOf(t, next, "p1"), "fortified against prediction and bleed")
	assert.Equal(t, 3, next.Participant("p1").SkillCooldown)

	res, next, err = Process(Input{State: next, Decisions: decisions, Market: price(120)})
	require.NoError(t, err)
	assert.Empty(t, res.Skills, "still cooling down")
	assert.Equal(t, 2, next.Participant("p1").SkillCooldown)
	assert.Equal(t, 280, hpOf(t, next, "p1"))
}

func TestProcess_MovementAndItems(t *testing.T) {
	st := fixture(t, 0,
		seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
	)
	require.NoError(t, st.Arena.AddItem(hexgrid.Item{ID: "heal", Kind: hexgrid.ItemHealing, Coord: hexgrid.Coord{Q: 2, R: 0}}))
	require.NoError(t, st.Arena.AddItem(hexgrid.Item{ID: "trap", Kind: hexgrid.ItemTrap, Coord: hexgrid.Coord{Q: -2, R: 0}}))

	moveTo := func(c hexgrid.Coord) domain.EpochAction {
		a := act(domain.DirectionUp, 5)
		a.Move = &c
		return a
	}
	res, next, err := Process(Input{State: st, Decisions: map[string]Decision{
		"p1": {Action: moveTo(hexgrid.Coord{Q: 2, R: 0})},
		"p2": {Action: moveTo(hexgrid.Coord{Q: -2, R: 0})},
	}, Market: price(110)})
	require.NoError(t, err)

	require.Len(t, res.Movements, 2)
	assert.True(t, res.Movements[0].Success)
	require.Len(t, res.Pickups, 1)
	assert.Equal(t, 100, res.Pickups[0].Healed)
	require.Len(t, res.Traps, 1)
	assert.Equal(t, 80, res.Traps[0].Damage)
	assert.Equal(t, 630, hpOf(t, next, "p1"), "500 + 100 item + 50 prediction - 20 bleed")
	assert.Equal(t, 450, hpOf(t, next, "p2"), "500 - 80 trap + 50 prediction - 20 bleed")
	assert.Equal(t, hexgrid.Coord{Q: 2, R: 0}, *next.Participant("p1").Position)
}

func TestProcess_SponsorEffects(t *testing.T) {
	st := fixture(t, 1,
		seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Trader, 500, hexgrid.Coord{Q: -1, R: 0}},
	)
	res, _, err := Process(Input{
		State: st,
		Decisions: map[string]Decision{
			"p1": {Action: attack(domain.StanceAttack, "p2", 40)},
			"p2": {Action: act(domain.DirectionUp, 5)},
		},
		Market:   price(110),
		Sponsors: map[string]domain.SponsorEffect{"p2": {HPBoost: 30, FreeDefend: true}},
	})
	require.NoError(t, err)

	require.Len(t, res.Sponsors, 1)
	assert.Equal(t, 30, res.Sponsors[0].Healed)
	require.Len(t, res.Combat, 1)
	assert.Equal(t, domain.StanceDefend, res.Combat[0].DefenderStance, "free defend replaces NONE")
	assert.Equal(t, 20, res.Combat[0].AttackerDamage)
}

func TestProcess_IsDeterministicAndPure(t *testing.T) {
	st := fixture(t, 3,
		seat{domain.Gambler, 700, hexgrid.Coord{Q: 1, R: 0}},
		seat{domain.Parasite, 600, hexgrid.Coord{Q: -1, R: 0}},
		seat{domain.Warrior, 800, hexgrid.Coord{Q: 0, R: 1}},
	)
	siphon := attack(domain.StanceSabotage, "p3", 50)
	siphon.UseSkill, siphon.SkillTarget = true, "p1"
	in := Input{
		State: st,
		Decisions: map[string]Decision{
			"p1": {Action: attack(domain.StanceAttack, "p2", 80)},
			"p2": {Action: siphon},
			"p3": {Action: attack(domain.StanceAttack, "p1", 60)},
		},
		Market: price(95),
	}
	before, err := json.Marshal(st)
	require.NoError(t, err)

	res1, next1, err := Process(in)
	require.NoError(t, err)
	res2, next2, err := Process(in)
	require.NoError(t, err)

	assert.Equal(t, res1, res2)
	assert.Equal(t, next1, next2)
	after, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after), "input state must not change")
	assert.NotEmpty(t, res1.Siphons)
}

func TestProcess_Faults(t *testing.T) {
	_, _, err := Process(Input{State: State{Epoch: 4}})
	var fault *ProcessingFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 5, fault.Epoch)

	st := fixture(t, 0, seat{domain.Trader, 500, hexgrid.Coord{Q: 1, R: 0}})
	st.Arena.Remove("p1")
	_, _, err = Process(Input{State: st, Market: price(100)})
	require.ErrorAs(t, err, &fault)
}

func TestStart(t *testing.T) {
	var ps []domain.Participant
	for i := 0; i < 8; i++ {
		ps = append(ps, domain.NewParticipant(fmt.Sprintf("p%d", i), fmt.Sprintf("n%d", i), domain.Archetypes[i%5], i))
	}
	st, err := Start(ps, assets, 99, price(100))
	require.NoError(t, err)

	assert.Equal(t, 20, st.Schedule.Total)
	for _, p := range st.Participants {
		pos, ok := st.Arena.PositionOf(p.ID)
		require.True(t, ok)
		assert.Equal(t, 3, pos.Ring(), "starts on the outer ring")
		require.NotNil(t, p.Position)
		assert.Equal(t, pos, *p.Position)
	}
	center, _ := st.Arena.Tile(hexgrid.Origin)
	require.Len(t, center.Items, 1)
	assert.Equal(t, hexgrid.ItemCornucopia, center.Items[0].Kind)

	again, err := Start(ps, assets, 99, price(100))
	require.NoError(t, err)
	assert.Equal(t, st, again)
}

func TestProcess_Invariants(t *testing.T) {
	stances := []domain.Stance{domain.StanceAttack, domain.StanceSabotage, domain.StanceDefend, domain.StanceNone}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(t, "n")
		var ps []domain.Participant
		for i := 0; i < n; i++ {
			class := rapid.SampledFrom(domain.Archetypes).Draw(t, "class")
			ps = append(ps, domain.NewParticipant(fmt.Sprintf("p%d", i), fmt.Sprintf("n%d", i), class, i))
		}
		st, err := Start(ps, assets, rapid.Uint64().Draw(t, "seed"), price(100))
		if err != nil {
			t.Fatal(err)
		}

		dead := map[string]bool{}
		for step := 0; step < 25; step++ {
			ids := st.AliveIDs()
			decisions := map[string]Decision{}
			for _, id := range ids {
				a := domain.EpochAction{
					Prediction: domain.Prediction{
						Asset:        "BTC",
						Direction:    rapid.SampledFrom([]domain.Direction{domain.DirectionUp, domain.DirectionDown}).Draw(t, "dir"),
						StakePercent: rapid.IntRange(5, 50).Draw(t, "pct"),
					},
					Stance:      rapid.SampledFrom(stances).Draw(t, "stance"),
					Target:      rapid.SampledFrom(ids).Draw(t, "target"),
					Stake:       rapid.IntRange(1, 400).Draw(t, "stake"),
					UseSkill:    rapid.Bool().Draw(t, "skill"),
					SkillTarget: rapid.SampledFrom(ids).Draw(t, "skillTarget"),
				}
				if pos, ok := st.Arena.PositionOf(id); ok && rapid.Bool().Draw(t, "moves") {
					nb := st.Arena.Neighbors(pos)
					target := rapid.SampledFrom(nb).Draw(t, "move")
					a.Move = &target
				}
				decisions[id] = Decision{Action: a}
			}

			res, next, err := Process(Input{State: st, Decisions: decisions, Market: price(rapid.Int64Range(90, 110).Draw(t, "price"))})
			if err != nil {
				t.Fatalf("epoch %d: %v", st.Epoch+1, err)
			}
			if next.Epoch != st.Epoch+1 {
				t.Fatalf("epoch went %d -> %d", st.Epoch, next.Epoch)
			}

			occupied := map[hexgrid.Coord]string{}
			for _, p := range next.Participants {
				if p.HP < 0 || p.HP > p.MaxHP {
					t.Fatalf("%s hp %d out of bounds", p.ID, p.HP)
				}
				if dead[p.ID] && p.Alive {
					t.Fatalf("%s came back to life", p.ID)
				}
				if !p.Alive {
					dead[p.ID] = true
					continue
				}
				pos, ok := next.Arena.PositionOf(p.ID)
				if !ok {
					t.Fatalf("alive %s not on the board", p.ID)
				}
				if other, dup := occupied[pos]; dup {
					t.Fatalf("%s and %s share %s", p.ID, other, pos)
				}
				occupied[pos] = p.ID
			}
			st = next
			if res.Complete {
				break
			}
		}
	})
}
