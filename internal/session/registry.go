package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/storage"
)

// Summary is a lightweight listing entry for a persisted battle.
type Summary struct {
	ID        string        `json:"id"`
	Status    domain.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Registry owns the live sessions of one process. A battle id maps to at
// most one running actor; battles not in memory are restored from the store
// on first use.
type Registry struct {
	opts Options
	deps Deps
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	loads    singleflight.Group
}

// NewRegistry creates a Registry. Every session shares deps.Store.
func NewRegistry(opts Options, deps Deps) *Registry {
	if deps.Store == nil {
		deps.Store = storage.NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		opts:     opts,
		deps:     deps,
		log:      deps.Logger.With("component", "registry"),
		sessions: make(map[string]*Session),
	}
}

// CreateLobby opens a new battle. An id already in use, in memory or in the
// store, is rejected with ErrAlreadyExists.
func (r *Registry) CreateLobby(ctx context.Context, cfg domain.LobbyConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.sessions[cfg.ID]; ok {
		return nil, fmt.Errorf("battle %s: %w", cfg.ID, domain.ErrAlreadyExists)
	}
	_, err := r.deps.Store.Load(ctx, cfg.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("battle %s: %w", cfg.ID, domain.ErrAlreadyExists)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	s, err := New(ctx, cfg, r.opts, r.deps)
	if err != nil {
		return nil, err
	}
	r.sessions[cfg.ID] = s
	r.log.Info("Lobby created", "battle_id", cfg.ID, "assets", cfg.Assets)
	return s, nil
}

// Get returns the session for a battle, restoring it from the store if it is
// not running. Concurrent restores of the same battle share one load.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if s, ok := r.lookup(id); ok {
		return s, nil
	}
	v, err, _ := r.loads.Do(id, func() (any, error) {
		if s, ok := r.lookup(id); ok {
			return s, nil
		}
		rec, err := r.deps.Store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		s, err := Restore(rec, r.opts, r.deps)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			s.Close()
			return nil, ErrClosed
		}
		r.sessions[id] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Recover restores every unfinished battle in the store so their timers
// resume. It returns the number of battles brought back.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	recs, err := r.deps.Store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	var (
		n    int
		errs []error
	)
	for _, rec := range recs {
		if domain.Status(rec.Status).Terminal() {
			continue
		}
		if _, ok := r.lookup(rec.BattleID); ok {
			continue
		}
		if _, err := r.Get(ctx, rec.BattleID); err != nil {
			r.log.Error("Failed to recover battle", "battle_id", rec.BattleID, "error", err)
			errs = append(errs, err)
			continue
		}
		n++
	}
	r.log.Info("Battles recovered", "count", n, "failed", len(errs))
	return n, errors.Join(errs...)
}

// List returns every persisted battle ordered by id.
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	recs, err := r.deps.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summary{ID: rec.BattleID, Status: domain.Status(rec.Status), UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close stops every running session.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
