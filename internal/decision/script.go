package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/fsnotify/fsnotify"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
)

// Script inputs. The script must define `action` as a map.
var scriptGlobals = []string{"self", "others", "epoch", "phase", "hazard_ring", "assets", "prices"}

const maxScriptAllocs = 200_000

// ErrNoAction is returned when a script finishes without setting `action`.
var ErrNoAction = errors.New("script did not set action")

// ScriptProvider decides by running a Tengo script. The script can be
// replaced at runtime; decisions in flight keep the version they started
// with.
type ScriptProvider struct {
	name   string
	logger *slog.Logger

	mu       sync.RWMutex
	compiled *tengo.Compiled
	version  int

	// OnReload is called after a new version compiles.
	OnReload func(path string, version int)
}

// NewScriptProvider compiles src.
func NewScriptProvider(name string, src []byte) (*ScriptProvider, error) {
	p := &ScriptProvider{name: name, logger: slog.Default().With("component", "script_provider", "script", name)}
	if err := p.load(src); err != nil {
		return nil, err
	}
	return p, nil
}

// NewScriptProviderFromFile compiles the script at path.
func NewScriptProviderFromFile(path string) (*ScriptProvider, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decision script: %w", err)
	}
	return NewScriptProvider(path, src)
}

// Version counts successful loads, starting at 1.
func (p *ScriptProvider) Version() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

func compile(src []byte) (*tengo.Compiled, error) {
	s := tengo.NewScript(src)
	s.SetImports(stdlib.GetModuleMap("math", "text", "enum"))
	s.SetMaxAllocs(maxScriptAllocs)
	for _, name := range scriptGlobals {
		if err := s.Add(name, nil); err != nil {
			return nil, err
		}
	}
	return s.Compile()
}

func (p *ScriptProvider) load(src []byte) error {
	c, err := compile(src)
	if err != nil {
		return fmt.Errorf("compile decision script %s: %w", p.name, err)
	}
	p.mu.Lock()
	p.compiled = c
	p.version++
	p.mu.Unlock()
	return nil
}

// Decide implements Provider.
func (p *ScriptProvider) Decide(ctx context.Context, req Request) (domain.EpochAction, error) {
	p.mu.RLock()
	c := p.compiled.Clone()
	p.mu.RUnlock()

	if err := bindRequest(c, req); err != nil {
		return domain.EpochAction{}, err
	}
	if err := c.RunContext(ctx); err != nil {
		return domain.EpochAction{}, fmt.Errorf("run decision script: %w", err)
	}
	v := c.Get("action")
	if v == nil || v.IsUndefined() {
		return domain.EpochAction{}, ErrNoAction
	}
	return actionFromMap(v.Map())
}

func participantMap(p domain.Participant) map[string]any {
	m := map[string]any{
		"id":             p.ID,
		"name":           p.Name,
		"archetype":      string(p.Archetype),
		"hp":             p.HP,
		"max_hp":         p.MaxHP,
		"kills":          p.Kills,
		"skill_cooldown": p.SkillCooldown,
		"weapon_boosts":  p.WeaponBoosts,
	}
	if p.Position != nil {
		m["q"], m["r"] = p.Position.Q, p.Position.R
	}
	return m
}

func bindRequest(c *tengo.Compiled, req Request) error {
	others := make([]any, 0, len(req.Others))
	for _, o := range req.Others {
		others = append(others, participantMap(o))
	}
	assets := make([]any, len(req.Assets))
	for i, a := range req.Assets {
		assets[i] = a
	}
	prices := make(map[string]any, len(req.Market.Prices))
	for asset, price := range req.Market.Prices {
		prices[asset] = price.String()
	}
	vars := map[string]any{
		"self":        participantMap(req.Self),
		"others":      others,
		"epoch":       req.Epoch,
		"phase":       string(req.Phase),
		"hazard_ring": req.HazardRing,
		"assets":      assets,
		"prices":      prices,
	}
	for name, v := range vars {
		if err := c.Set(name, v); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

func actionFromMap(m map[string]any) (domain.EpochAction, error) {
	if m == nil {
		return domain.EpochAction{}, ErrNoAction
	}
	a := domain.EpochAction{
		Prediction: domain.Prediction{
			Asset:        str(m["asset"]),
			Direction:    domain.Direction(str(m["direction"])),
			StakePercent: num(m["stake_percent"]),
		},
		Stance:      domain.Stance(str(m["stance"])),
		Target:      str(m["target"]),
		Stake:       num(m["stake"]),
		SkillTarget: str(m["skill_target"]),
		Rationale:   str(m["rationale"]),
	}
	if a.Stance == "" {
		a.Stance = domain.StanceNone
	}
	if b, ok := m["use_skill"].(bool); ok {
		a.UseSkill = b
	}
	if mv, ok := m["move"].(map[string]any); ok {
		a.Move = &hexgrid.Coord{Q: num(mv["q"]), R: num(mv["r"])}
	}
	return a, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Watch reloads the script whenever its file changes, until ctx ends.
// A version that fails to compile is logged and the previous one kept.
func (p *ScriptProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	// Editors often replace files, so watch the directory.
	dir := filepath.Dir(p.name)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(p.name)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				p.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("Script watcher error", "error", err)
			}
		}
	}()
	p.logger.Debug("Started file system watcher for script hot-reloading", "directory", dir)
	return nil
}

func (p *ScriptProvider) reload() {
	src, err := os.ReadFile(p.name)
	if err != nil {
		p.logger.Warn("Failed to read changed script", "error", err)
		return
	}
	if err := p.load(src); err != nil {
		p.logger.Error("Changed script does not compile, keeping previous version", "error", err)
		return
	}
	version := p.Version()
	p.logger.Info("Decision script reloaded", "version", version)
	if p.OnReload != nil {
		p.OnReload(p.name, version)
	}
}
