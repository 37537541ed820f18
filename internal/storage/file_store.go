package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nfrund/hexarena/internal/domain"
)

const snapshotExt = ".json"

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FileStore keeps one JSON file per battle on an afero filesystem.
type FileStore struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

// NewOsFileStore creates a FileStore on the real filesystem.
func NewOsFileStore(dir string) (*FileStore, error) {
	return NewFileStore(afero.NewOsFs(), dir)
}

func (s *FileStore) path(battleID string) (string, error) {
	if !safeID.MatchString(battleID) {
		return "", &domain.ValidationError{Field: "battle_id", Reason: "must be alphanumeric, dash or underscore"}
	}
	return filepath.Join(s.dir, battleID+snapshotExt), nil
}

// Save writes the record to a temporary file and renames it into place.
func (s *FileStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(rec.BattleID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", rec.BattleID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := filepath.Join(s.dir, "."+rec.BattleID+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", rec.BattleID, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit snapshot %s: %w", rec.BattleID, err)
	}
	return nil
}

// Load reads one record.
func (s *FileStore) Load(ctx context.Context, battleID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	p, err := s.path(battleID)
	if err != nil {
		return Record{}, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("snapshot %s: %w", battleID, domain.ErrNotFound)
		}
		return Record{}, fmt.Errorf("read snapshot %s: %w", battleID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode snapshot %s: %w", battleID, err)
	}
	return rec, nil
}

// List returns every stored record ordered by battle id.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		rec, err := s.Load(ctx, strings.TrimSuffix(name, snapshotExt))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BattleID < out[j].BattleID })
	return out, nil
}

// Delete removes a record. Deleting an unknown battle is not an error.
func (s *FileStore) Delete(ctx context.Context, battleID string) error {
	p, err := s.path(battleID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot %s: %w", battleID, err)
	}
	return nil
}

var _ SnapshotStore = (*FileStore)(nil)
