// Package checkpoint persists versioned model snapshots to the local
// filesystem and maintains a "latest" alias that is replaced atomically
// on each successful publish. One coordinator writes; any number of
// inference loops read concurrently.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rodneyosodo/fedstream/pkg/params"
)

const (
	roundFileTemplate = "checkpoint_round_%d.json"
	latestFileName    = "checkpoint_latest.json"
	writerLockName    = ".writer.lock"
)

// Checkpoint is a persisted, versioned model snapshot with associated
// metrics. Once persisted it is never mutated, only superseded.
type Checkpoint struct {
	Round     uint64              `json:"round"`
	Params    params.ParameterSet `json:"params"`
	Metrics   map[string]float64  `json:"metrics,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Marker is an opaque token that changes whenever the latest alias is
// republished. Readers compare markers to cheaply detect a new version
// without reading the payload.
type Marker struct {
	ModTime time.Time
	Size    int64
}

func (m Marker) Equal(other Marker) bool {
	return m.ModTime.Equal(other.ModTime) && m.Size == other.Size
}

func (m Marker) IsZero() bool {
	return m.ModTime.IsZero() && m.Size == 0
}

// Store reads and writes checkpoints under a single directory.
type Store struct {
	dir  string
	lock *flock.Flock

	mu sync.Mutex
}

// New opens a read-only store. The directory is created if missing so
// that a reader can start polling before the first publish.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty checkpoint directory", ErrWrite)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create checkpoint directory: %s", ErrWrite, err.Error())
	}

	return &Store{dir: dir}, nil
}

// NewExclusive opens a store for writing. A file lock on the directory
// enforces the single-writer contract; a second writer fails fast.
func NewExclusive(dir string) (*Store, error) {
	s, err := New(dir)
	if err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(dir, writerLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire writer lock: %s", ErrWrite, err.Error())
	}
	if !locked {
		return nil, fmt.Errorf("%w: checkpoint directory %s already has a writer", ErrWrite, dir)
	}
	s.lock = lock

	return s, nil
}

// Close releases the writer lock, if held.
func (s *Store) Close() error {
	if s.lock != nil {
		return s.lock.Unlock()
	}

	return nil
}

// Save writes the round-keyed checkpoint file and then republishes the
// latest alias. Both writes go through a temp file and os.Rename so a
// concurrent reader never observes a partially written payload, and the
// alias is only moved after the round file is fully on disk. On failure
// the previous latest alias is left untouched.
func (s *Store) Save(round uint64, p params.ParameterSet, metrics map[string]float64) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ckpt := Checkpoint{
		Round:     round,
		Params:    p,
		Metrics:   metrics,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(ckpt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: marshal checkpoint: %s", ErrWrite, err.Error())
	}

	roundFile := filepath.Join(s.dir, fmt.Sprintf(roundFileTemplate, round))
	if err := s.writeAtomic(roundFile, data); err != nil {
		return Checkpoint{}, err
	}

	latestFile := filepath.Join(s.dir, latestFileName)
	if err := s.writeAtomic(latestFile, data); err != nil {
		return Checkpoint{}, err
	}

	return ckpt, nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-checkpoint-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %s", ErrWrite, err.Error())
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("%w: write %s: %s", ErrWrite, path, err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("%w: sync %s: %s", ErrWrite, path, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: close %s: %s", ErrWrite, path, err.Error())
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: publish %s: %s", ErrWrite, path, err.Error())
	}

	return nil
}

// LoadLatest returns the checkpoint the latest alias currently references.
func (s *Store) LoadLatest() (Checkpoint, error) {
	return s.loadFile(filepath.Join(s.dir, latestFileName))
}

// Load returns the checkpoint for a specific round.
func (s *Store) Load(round uint64) (Checkpoint, error) {
	return s.loadFile(filepath.Join(s.dir, fmt.Sprintf(roundFileTemplate, round)))
}

func (s *Store) loadFile(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshal checkpoint %s: %w", path, err)
	}

	return ckpt, nil
}

// LatestMarker stats the latest alias without reading the payload.
func (s *Store) LatestMarker() (Marker, error) {
	info, err := os.Stat(filepath.Join(s.dir, latestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Marker{}, fmt.Errorf("%w: no checkpoint published yet", ErrNotFound)
		}

		return Marker{}, fmt.Errorf("stat latest checkpoint: %w", err)
	}

	return Marker{ModTime: info.ModTime(), Size: info.Size()}, nil
}

// ListRounds returns the round numbers of all persisted checkpoints in
// ascending order.
func (s *Store) ListRounds() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint directory: %w", err)
	}

	var rounds []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var round uint64
		if n, err := fmt.Sscanf(entry.Name(), roundFileTemplate, &round); err == nil && n == 1 {
			rounds = append(rounds, round)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] < rounds[j] })

	return rounds, nil
}
