// Package storage persists battle snapshots.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one persisted battle snapshot. Blob is the session's own encoding;
// the store never interprets it.
type Record struct {
	BattleID   string          `json:"battle_id"`
	Status     string          `json:"status"`
	Blob       json.RawMessage `json:"blob"`
	NumericIDs map[string]int  `json:"numeric_ids"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SnapshotStore defines the interface for a snapshot backend. Save replaces
// any previous record for the battle atomically. Load returns
// domain.ErrNotFound for unknown battles.
type SnapshotStore interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, battleID string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, battleID string) error
}
