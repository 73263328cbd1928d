// Package kitedb is an embedded multi-data-type key-value engine. It
// layers Redis-style semantics (strings, hashes, lists, sets, sorted
// sets) on an ordered key-value store with column families, snapshots,
// write batches and compaction filters. Each type lives in its own
// store under the database root; a logical delete only bumps a version
// in the type's meta record and lets compaction reclaim the orphaned
// sub-records lazily.
package kitedb

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitedb/kitedb/internal/engine"
)

// DataType names one of the five typed keyspaces.
type DataType int

const (
	TypeStrings DataType = iota
	TypeHashes
	TypeSets
	TypeLists
	TypeZSets
)

func (t DataType) String() string {
	switch t {
	case TypeStrings:
		return "strings"
	case TypeHashes:
		return "hashes"
	case TypeSets:
		return "sets"
	case TypeLists:
		return "lists"
	case TypeZSets:
		return "zsets"
	default:
		return "unknown"
	}
}

// scanTagOrder is the order in which Scan advances through the types;
// scanTagOf maps a data type to its cursor tag.
var scanTagOrder = []DataType{TypeStrings, TypeHashes, TypeSets, TypeLists, TypeZSets}

func scanTagOf(t DataType) byte {
	switch t {
	case TypeStrings:
		return 'k'
	case TypeHashes:
		return 'h'
	case TypeSets:
		return 's'
	case TypeLists:
		return 'l'
	default:
		return 'z'
	}
}

// cursorsStoreMax bounds the facade's SCAN cursor LRU.
const cursorsStoreMax = 5000

// DB is an open KiteDB database: five independent type stores plus the
// cross-type SCAN cursor store. It is safe for concurrent use by
// multiple goroutines.
type DB struct {
	strings *engine.Strings
	hashes  *engine.Hashes
	sets    *engine.Sets
	lists   *engine.Lists
	zsets   *engine.ZSets

	logger    *zap.Logger
	startTime time.Time

	totalReads  atomic.Int64
	totalWrites atomic.Int64

	cursorsMu sync.Mutex
	cursors   *lru.Cache
}

// Open opens or creates the database at path. The five type stores live
// in subdirectories of path and open in parallel; the first failure
// aborts the open.
func Open(opts *Options, path string) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	kvOpts := opts.kvOptions()

	cursors, err := lru.New(cursorsStoreMax)
	if err != nil {
		return nil, fmt.Errorf("kitedb: cursor store: %w", err)
	}
	db := &DB{
		logger:    logger,
		startTime: time.Now(),
		cursors:   cursors,
	}

	var g errgroup.Group
	g.Go(func() (err error) {
		db.strings, err = engine.OpenStrings(filepath.Join(path, TypeStrings.String()), kvOpts)
		return err
	})
	g.Go(func() (err error) {
		db.hashes, err = engine.OpenHashes(filepath.Join(path, TypeHashes.String()), kvOpts)
		return err
	})
	g.Go(func() (err error) {
		db.sets, err = engine.OpenSets(filepath.Join(path, TypeSets.String()), kvOpts)
		return err
	})
	g.Go(func() (err error) {
		db.lists, err = engine.OpenLists(filepath.Join(path, TypeLists.String()), kvOpts)
		return err
	})
	g.Go(func() (err error) {
		db.zsets, err = engine.OpenZSets(filepath.Join(path, TypeZSets.String()), kvOpts)
		return err
	})
	if err := g.Wait(); err != nil {
		db.closeOpened()
		return nil, err
	}

	logger.Info("kitedb: database open", zap.String("path", path))
	return db, nil
}

func (db *DB) closeOpened() {
	if db.strings != nil {
		db.strings.Close()
	}
	if db.hashes != nil {
		db.hashes.Close()
	}
	if db.sets != nil {
		db.sets.Close()
	}
	if db.lists != nil {
		db.lists.Close()
	}
	if db.zsets != nil {
		db.zsets.Close()
	}
}

// Close closes every type store. The first error is returned but all
// stores are closed regardless.
func (db *DB) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{db.strings, db.hashes, db.sets, db.lists, db.zsets} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	db.logger.Info("kitedb: database closed")
	return first
}

// Compact synchronously runs the compaction filters over every column
// family of every type store.
func (db *DB) Compact() error {
	for _, c := range []interface{ CompactRange() error }{db.strings, db.hashes, db.sets, db.lists, db.zsets} {
		if err := c.CompactRange(); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports cumulative command counts since Open.
type Stats struct {
	TotalCommands int64
	TotalReads    int64
	TotalWrites   int64
	StartTime     time.Time
}

// Stats returns a snapshot of the command counters.
func (db *DB) Stats() Stats {
	reads := db.totalReads.Load()
	writes := db.totalWrites.Load()
	return Stats{
		TotalCommands: reads + writes,
		TotalReads:    reads,
		TotalWrites:   writes,
		StartTime:     db.startTime,
	}
}
