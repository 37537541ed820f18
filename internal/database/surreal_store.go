package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/storage"
)

const (
	upsertSnapshot = "UPSERT type::thing('battle_snapshot', $id) CONTENT $data"
	selectSnapshot = "SELECT battle_id, status, blob, numeric_ids, updated_at FROM type::thing('battle_snapshot', $id)"
	listSnapshots  = "SELECT battle_id, status, blob, numeric_ids, updated_at FROM battle_snapshot ORDER BY battle_id"
	deleteSnapshot = "DELETE type::thing('battle_snapshot', $id)"
)

// snapshotRow is the stored shape. The blob is kept as a string so the
// engine's JSON survives the driver's CBOR round trip unchanged.
type snapshotRow struct {
	BattleID   string         `json:"battle_id"`
	Status     string         `json:"status"`
	Blob       string         `json:"blob"`
	NumericIDs map[string]int `json:"numeric_ids"`
	UpdatedAt  string         `json:"updated_at"`
}

func toRow(rec storage.Record) snapshotRow {
	return snapshotRow{
		BattleID:   rec.BattleID,
		Status:     rec.Status,
		Blob:       string(rec.Blob),
		NumericIDs: rec.NumericIDs,
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r snapshotRow) record() (storage.Record, error) {
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return storage.Record{}, fmt.Errorf("snapshot %s: bad updated_at: %w", r.BattleID, err)
	}
	return storage.Record{
		BattleID:   r.BattleID,
		Status:     r.Status,
		Blob:       json.RawMessage(r.Blob),
		NumericIDs: r.NumericIDs,
		UpdatedAt:  updated,
	}, nil
}

// SurrealStore keeps battle snapshots in a SurrealDB table.
type SurrealStore struct {
	conn *Connection
}

// NewSurrealStore creates a SurrealStore over a managed connection.
func NewSurrealStore(conn *Connection) *SurrealStore {
	return &SurrealStore{conn: conn}
}

// Save upserts the record.
func (s *SurrealStore) Save(ctx context.Context, rec storage.Record) error {
	ctx, cancel := withTimeout(ctx, s.conn.ExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()
	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, upsertSnapshot, map[string]any{"id": rec.BattleID, "data": toRow(rec)})
	})
}

// Load reads one record.
func (s *SurrealStore) Load(ctx context.Context, battleID string) (storage.Record, error) {
	ctx, cancel := withTimeout(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var row *snapshotRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		row, err = QueryOne[snapshotRow](ctx, db, selectSnapshot, map[string]any{"id": battleID})
		return err
	})
	if err != nil {
		return storage.Record{}, err
	}
	if row == nil || row.BattleID == "" {
		return storage.Record{}, fmt.Errorf("snapshot %s: %w", battleID, domain.ErrNotFound)
	}
	return row.record()
}

// List returns every record ordered by battle id.
func (s *SurrealStore) List(ctx context.Context) ([]storage.Record, error) {
	ctx, cancel := withTimeout(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var rows []snapshotRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = Query[snapshotRow](ctx, db, listSnapshots, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]storage.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a record.
func (s *SurrealStore) Delete(ctx context.Context, battleID string) error {
	ctx, cancel := withTimeout(ctx, s.conn.ExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()
	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, deleteSnapshot, map[string]any{"id": battleID})
	})
}

var _ storage.SnapshotStore = (*SurrealStore)(nil)
