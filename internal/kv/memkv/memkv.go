// Package memkv is the bundled implementation of the kv engine
// contract: an ordered in-memory store with column families, O(1)
// snapshots via lazy btree clones, a CRC-checked write-ahead log for
// crash recovery and snappy-compressed checkpoints. Compaction filters
// run on a background loop and on explicit CompactRange calls.
package memkv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/kitedb/kitedb/internal/kv"
)

const (
	btreeDegree  = 32
	manifestName = "MANIFEST.json"
	walName      = "wal.log"
	checkName    = "checkpoint.snap"
)

type item struct {
	key   []byte
	value []byte
	cmp   kv.Comparator
}

func (it *item) Less(than btree.Item) bool {
	other := than.(*item)
	if it.cmp != nil {
		return it.cmp.Compare(it.key, other.key) < 0
	}
	return bytes.Compare(it.key, other.key) < 0
}

type columnFamily struct {
	name   string
	index  int
	cmp    kv.Comparator
	filter kv.CompactionFilter
	tree   *btree.BTree
}

func (cf *columnFamily) Name() string { return cf.name }

type manifest struct {
	ColumnFamilies []manifestCF `json:"column_families"`
}

type manifestCF struct {
	Name       string `json:"name"`
	Comparator string `json:"comparator"`
}

var _ kv.DB = (*DB)(nil)

// DB is an open memkv store.
type DB struct {
	mu     sync.RWMutex
	path   string
	opts   kv.Options
	cfs    []*columnFamily
	byName map[string]*columnFamily
	wal    *wal
	logger *zap.Logger

	closed      bool
	stopCompact chan struct{}
	wg          sync.WaitGroup
}

// Open opens or creates the store at path with the given column
// families. The first descriptor must be the default column family.
// The returned handles are positionally aligned with descs.
func Open(path string, opts kv.Options, descs []kv.ColumnFamilyDescriptor) (*DB, []kv.ColumnFamilyHandle, error) {
	if len(descs) == 0 || descs[0].Name != kv.DefaultColumnFamilyName {
		return nil, nil, fmt.Errorf("memkv: first column family must be %q", kv.DefaultColumnFamilyName)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("memkv: stat %s: %w", path, err)
		}
		if !opts.CreateIfMissing {
			return nil, nil, fmt.Errorf("memkv: store %s does not exist and create_if_missing is false", path)
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("memkv: mkdir %s: %w", path, err)
	}

	db := &DB{
		path:        path,
		opts:        opts,
		byName:      make(map[string]*columnFamily, len(descs)),
		logger:      logger,
		stopCompact: make(chan struct{}),
	}
	handles := make([]kv.ColumnFamilyHandle, 0, len(descs))
	for i, d := range descs {
		if _, dup := db.byName[d.Name]; dup {
			return nil, nil, fmt.Errorf("memkv: duplicate column family %q", d.Name)
		}
		cf := &columnFamily{
			name:   d.Name,
			index:  i,
			cmp:    d.Options.Comparator,
			filter: d.Options.CompactionFilter,
			tree:   btree.New(btreeDegree),
		}
		db.cfs = append(db.cfs, cf)
		db.byName[d.Name] = cf
		handles = append(handles, cf)
	}

	if err := db.checkManifest(); err != nil {
		return nil, nil, err
	}
	if err := db.loadCheckpoint(); err != nil {
		return nil, nil, err
	}

	w, err := openWAL(filepath.Join(path, walName))
	if err != nil {
		return nil, nil, err
	}
	db.wal = w
	replayed, err := db.replayWAL()
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	if replayed > 0 {
		logger.Info("memkv: recovered writes from wal",
			zap.String("path", path), zap.Int("batches", replayed))
	}

	if opts.CompactionIntervalSeconds > 0 {
		db.wg.Add(1)
		go db.compactLoop(time.Duration(opts.CompactionIntervalSeconds) * time.Second)
	}
	return db, handles, nil
}

// checkManifest persists the column family set and comparator names on
// first open and verifies them on every subsequent open. Changing a
// comparator between opens is a breaking change.
func (db *DB) checkManifest() error {
	path := filepath.Join(db.path, manifestName)
	want := manifest{}
	for _, cf := range db.cfs {
		name := ""
		if cf.cmp != nil {
			name = cf.cmp.Name()
		}
		want.ColumnFamilies = append(want.ColumnFamilies, manifestCF{Name: cf.name, Comparator: name})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("memkv: read manifest: %w", err)
		}
		out, err := json.MarshalIndent(want, "", "  ")
		if err != nil {
			return fmt.Errorf("memkv: encode manifest: %w", err)
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("memkv: write manifest: %w", err)
		}
		return nil
	}

	var have manifest
	if err := json.Unmarshal(data, &have); err != nil {
		return fmt.Errorf("memkv: decode manifest: %w", err)
	}
	haveByName := make(map[string]string, len(have.ColumnFamilies))
	for _, cf := range have.ColumnFamilies {
		haveByName[cf.Name] = cf.Comparator
	}
	for _, cf := range want.ColumnFamilies {
		if prev, ok := haveByName[cf.Name]; ok && prev != cf.Comparator {
			return fmt.Errorf("memkv: column family %q was created with comparator %q, reopened with %q",
				cf.Name, prev, cf.Comparator)
		}
	}
	return nil
}

func (db *DB) cfOf(h kv.ColumnFamilyHandle) (*columnFamily, error) {
	cf, ok := h.(*columnFamily)
	if !ok {
		return nil, fmt.Errorf("memkv: foreign column family handle %T", h)
	}
	return cf, nil
}

// Get returns the value for key or kv.ErrNotFound.
func (db *DB) Get(opts kv.ReadOptions, h kv.ColumnFamilyHandle, key []byte) ([]byte, error) {
	cf, err := db.cfOf(h)
	if err != nil {
		return nil, err
	}
	var tree *btree.BTree
	if opts.Snapshot != nil {
		snap, ok := opts.Snapshot.(*snapshot)
		if !ok {
			return nil, fmt.Errorf("memkv: foreign snapshot %T", opts.Snapshot)
		}
		tree = snap.trees[cf.name]
	}
	if tree == nil {
		db.mu.RLock()
		found := cf.tree.Get(&item{key: key, cmp: cf.cmp})
		db.mu.RUnlock()
		if found == nil {
			return nil, kv.ErrNotFound
		}
		return append([]byte(nil), found.(*item).value...), nil
	}
	found := tree.Get(&item{key: key, cmp: cf.cmp})
	if found == nil {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), found.(*item).value...), nil
}

// Put writes a single record atomically.
func (db *DB) Put(opts kv.WriteOptions, h kv.ColumnFamilyHandle, key, value []byte) error {
	b := db.NewWriteBatch()
	b.Put(h, key, value)
	return db.Write(opts, b)
}

// Delete removes a single record atomically.
func (db *DB) Delete(opts kv.WriteOptions, h kv.ColumnFamilyHandle, key []byte) error {
	b := db.NewWriteBatch()
	b.Delete(h, key)
	return db.Write(opts, b)
}

// NewWriteBatch returns an empty batch bound to this store.
func (db *DB) NewWriteBatch() kv.WriteBatch {
	return &writeBatch{db: db}
}

// Write commits the batch: WAL append first, then in-memory apply.
func (db *DB) Write(opts kv.WriteOptions, batch kv.WriteBatch) error {
	b, ok := batch.(*writeBatch)
	if !ok {
		return fmt.Errorf("memkv: foreign write batch %T", batch)
	}
	if b.db != db {
		return fmt.Errorf("memkv: write batch belongs to another store")
	}
	if len(b.ops) == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return fmt.Errorf("memkv: store is closed")
	}
	sync := opts.Sync || db.opts.SyncWrites
	if err := db.wal.AppendBatch(b.ops, sync); err != nil {
		return err
	}
	db.applyLocked(b.ops)
	return nil
}

func (db *DB) applyLocked(ops []batchOp) {
	for _, op := range ops {
		cf := db.cfs[op.cf]
		it := &item{key: op.key, value: op.value, cmp: cf.cmp}
		if op.del {
			cf.tree.Delete(it)
		} else {
			cf.tree.ReplaceOrInsert(it)
		}
	}
}

type snapshot struct {
	trees map[string]*btree.BTree
}

// GetSnapshot captures an immutable view of every column family.
func (db *DB) GetSnapshot() kv.Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	trees := make(map[string]*btree.BTree, len(db.cfs))
	for _, cf := range db.cfs {
		trees[cf.name] = cf.tree.Clone()
	}
	return &snapshot{trees: trees}
}

// ReleaseSnapshot frees the snapshot. Clones are garbage collected, so
// this only severs the reference.
func (db *DB) ReleaseSnapshot(snap kv.Snapshot) {
	if s, ok := snap.(*snapshot); ok {
		s.trees = nil
	}
}

// NewIterator returns an iterator over one column family. Without an
// explicit snapshot the iterator still sees a consistent view captured
// at creation.
func (db *DB) NewIterator(opts kv.ReadOptions, h kv.ColumnFamilyHandle) kv.Iterator {
	cf, err := db.cfOf(h)
	if err != nil {
		return &iterator{}
	}
	var tree *btree.BTree
	if opts.Snapshot != nil {
		if snap, ok := opts.Snapshot.(*snapshot); ok {
			tree = snap.trees[cf.name]
		}
	}
	if tree == nil {
		db.mu.Lock()
		tree = cf.tree.Clone()
		db.mu.Unlock()
	}
	return &iterator{tree: tree, cmp: cf.cmp}
}

// Close stops background work, optionally checkpoints, and closes the
// WAL. The store must not be used afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	close(db.stopCompact)
	db.wg.Wait()

	if db.opts.CheckpointOnClose {
		if err := db.writeCheckpoint(); err != nil {
			db.wal.Close()
			return err
		}
		if err := db.wal.Clear(); err != nil {
			db.wal.Close()
			return err
		}
	}
	return db.wal.Close()
}
