// Package market supplies the price snapshots predictions are scored against.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownAsset is returned when a feed has no price for a requested asset.
var ErrUnknownAsset = errors.New("unknown asset")

// Snapshot is a set of prices taken at one moment.
type Snapshot struct {
	Prices  map[string]decimal.Decimal `json:"prices"`
	TakenAt time.Time                  `json:"taken_at"`
}

// Price returns the price of an asset.
func (s Snapshot) Price(asset string) (decimal.Decimal, bool) {
	p, ok := s.Prices[asset]
	return p, ok
}

// Clone returns a copy with its own price map.
func (s Snapshot) Clone() Snapshot {
	prices := make(map[string]decimal.Decimal, len(s.Prices))
	for k, v := range s.Prices {
		prices[k] = v
	}
	return Snapshot{Prices: prices, TakenAt: s.TakenAt}
}

// Feed fetches current prices. Implementations must be safe for concurrent use.
type Feed interface {
	Snapshot(ctx context.Context, assets []string) (Snapshot, error)
}

// RandomWalkFeed moves every asset by a bounded random step on each call.
// It is the default feed for local play and simulations.
type RandomWalkFeed struct {
	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]decimal.Decimal
	maxStep float64
	now     func() time.Time
}

// NewRandomWalkFeed creates a feed seeded for reproducible walks. Every asset
// starts at 100.
func NewRandomWalkFeed(seed uint64, maxStepPct float64) *RandomWalkFeed {
	if maxStepPct <= 0 {
		maxStepPct = 2
	}
	return &RandomWalkFeed{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		prices:  make(map[string]decimal.Decimal),
		maxStep: maxStepPct,
		now:     time.Now,
	}
}

// Snapshot advances the walk and returns the new prices.
func (f *RandomWalkFeed) Snapshot(ctx context.Context, assets []string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	hundred := decimal.NewFromInt(100)
	out := Snapshot{Prices: make(map[string]decimal.Decimal, len(assets)), TakenAt: f.now()}
	for _, asset := range assets {
		p, ok := f.prices[asset]
		if !ok {
			p = hundred
		}
		stepPct := (f.rng.Float64()*2 - 1) * f.maxStep
		step := p.Mul(decimal.NewFromFloat(stepPct)).Div(hundred).Round(4)
		p = p.Add(step)
		if !p.IsPositive() {
			p = decimal.New(1, -4)
		}
		f.prices[asset] = p
		out.Prices[asset] = p
	}
	return out, nil
}

// ScriptedFeed replays a fixed sequence of snapshots, repeating the last one
// once exhausted. Useful for deterministic tests and replays.
type ScriptedFeed struct {
	mu    sync.Mutex
	steps []map[string]decimal.Decimal
	next  int
	Err   error
}

// NewScriptedFeed builds a feed from price maps given as strings.
func NewScriptedFeed(steps ...map[string]string) (*ScriptedFeed, error) {
	f := &ScriptedFeed{}
	for i, step := range steps {
		prices := make(map[string]decimal.Decimal, len(step))
		for asset, raw := range step {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("step %d asset %s: %w", i, asset, err)
			}
			prices[asset] = d
		}
		f.steps = append(f.steps, prices)
	}
	return f, nil
}

// Snapshot returns the next scripted step.
func (f *ScriptedFeed) Snapshot(ctx context.Context, assets []string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return Snapshot{}, f.Err
	}
	if len(f.steps) == 0 {
		return Snapshot{}, fmt.Errorf("scripted feed: no steps: %w", ErrUnknownAsset)
	}
	step := f.steps[min(f.next, len(f.steps)-1)]
	f.next++
	out := Snapshot{Prices: make(map[string]decimal.Decimal, len(assets))}
	for _, asset := range assets {
		p, ok := step[asset]
		if !ok {
			return Snapshot{}, fmt.Errorf("scripted feed %s: %w", asset, ErrUnknownAsset)
		}
		out.Prices[asset] = p
	}
	return out, nil
}

// SetError makes every subsequent call fail with err (nil to recover).
func (f *ScriptedFeed) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}
