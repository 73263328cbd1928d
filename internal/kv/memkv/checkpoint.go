package memkv

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/google/btree"
	"go.uber.org/zap"
)

// A checkpoint is the full store state, gob-encoded through a snappy
// stream. Loading a checkpoint and replaying the WAL on top of it
// restores the exact pre-shutdown state.

type checkpointCF struct {
	Name   string
	Keys   [][]byte
	Values [][]byte
}

type checkpointState struct {
	ColumnFamilies []checkpointCF
}

func (db *DB) checkpointPath() string {
	return filepath.Join(db.path, checkName)
}

// writeCheckpoint serializes every column family to disk atomically
// (write to a temp file, then rename).
func (db *DB) writeCheckpoint() error {
	state := checkpointState{}
	db.mu.RLock()
	for _, cf := range db.cfs {
		entry := checkpointCF{Name: cf.name}
		cf.tree.Ascend(func(i btree.Item) bool {
			it := i.(*item)
			entry.Keys = append(entry.Keys, it.key)
			entry.Values = append(entry.Values, it.value)
			return true
		})
		state.ColumnFamilies = append(state.ColumnFamilies, entry)
	}
	db.mu.RUnlock()

	tmp := db.checkpointPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("memkv: create checkpoint: %w", err)
	}
	sw := snappy.NewBufferedWriter(f)
	if err := gob.NewEncoder(sw).Encode(&state); err != nil {
		sw.Close()
		f.Close()
		return fmt.Errorf("memkv: encode checkpoint: %w", err)
	}
	if err := sw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("memkv: flush checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("memkv: sync checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("memkv: close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, db.checkpointPath()); err != nil {
		return fmt.Errorf("memkv: publish checkpoint: %w", err)
	}

	db.logger.Info("memkv: checkpoint written", zap.String("path", db.path))
	return nil
}

// loadCheckpoint restores trees from the checkpoint file, if present.
// Called during Open before WAL replay; no locking needed.
func (db *DB) loadCheckpoint() error {
	f, err := os.Open(db.checkpointPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("memkv: open checkpoint: %w", err)
	}
	defer f.Close()

	var state checkpointState
	if err := gob.NewDecoder(snappy.NewReader(f)).Decode(&state); err != nil {
		return fmt.Errorf("memkv: decode checkpoint: %w", err)
	}
	for _, entry := range state.ColumnFamilies {
		cf, ok := db.byName[entry.Name]
		if !ok {
			// A column family that no longer exists is dropped with its
			// data.
			continue
		}
		for i := range entry.Keys {
			cf.tree.ReplaceOrInsert(&item{key: entry.Keys[i], value: entry.Values[i], cmp: cf.cmp})
		}
	}
	return nil
}

// replayWAL applies logged batches on top of the checkpoint state.
func (db *DB) replayWAL() (int, error) {
	batches, err := db.wal.ReadAll()
	if err != nil {
		return 0, err
	}
	for _, ops := range batches {
		for i := range ops {
			if ops[i].cf < 0 || ops[i].cf >= len(db.cfs) {
				return 0, fmt.Errorf("memkv: wal references unknown column family %d", ops[i].cf)
			}
		}
		db.applyLocked(ops)
	}
	return len(batches), nil
}
