// Package engine implements the five type handlers that project Redis
// semantics onto the ordered kv store: strings, hashes, sets, lists and
// sorted sets. Each handler owns an independent store under
// <root>/<type>, its column families, lock manager and scan cursor
// cache. The facade in the root package multiplexes commands across
// handlers.
package engine

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/internal/kv/memkv"
	"github.com/kitedb/kitedb/internal/lockmgr"
	"github.com/kitedb/kitedb/internal/match"
	"github.com/kitedb/kitedb/status"
)

// scanCursorsMax bounds each handler's scan-cursor LRU.
const scanCursorsMax = 5000

// base carries what every type handler needs: the open store, its
// column family handles, the per-key lock manager and the scan cursor
// cache.
type base struct {
	db      kv.DB
	handles []kv.ColumnFamilyHandle
	lock    *lockmgr.LockMgr
	wopts   kv.WriteOptions
	logger  *zap.Logger

	cursorsMu sync.Mutex
	cursors   *lru.Cache
}

func openBase(path string, opts kv.Options, descs []kv.ColumnFamilyDescriptor) (*base, error) {
	db, handles, err := memkv.Open(path, opts, descs)
	if err != nil {
		return nil, err
	}
	cursors, err := lru.New(scanCursorsMax)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: scan cursor cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &base{
		db:      db,
		handles: handles,
		lock:    lockmgr.New(),
		logger:  logger,
		cursors: cursors,
	}, nil
}

func (b *base) metaCF() kv.ColumnFamilyHandle { return b.handles[0] }

// Close closes the handler's store.
func (b *base) Close() error { return b.db.Close() }

// CompactRange synchronously compacts every column family of the
// handler's store.
func (b *base) CompactRange() error {
	for _, h := range b.handles {
		if err := b.db.CompactRange(h, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func nowSeconds() int64 { return time.Now().Unix() }

// ----------------------------------------------------------------------
// Scope guards
// ----------------------------------------------------------------------

// snapshotGuard pins reads to one consistent view of the store and
// guarantees the snapshot is released on every exit path. It is the
// only sanctioned way to acquire a snapshot.
type snapshotGuard struct {
	db   kv.DB
	snap kv.Snapshot
}

func (b *base) newSnapshotGuard() *snapshotGuard {
	return &snapshotGuard{db: b.db, snap: b.db.GetSnapshot()}
}

// ReadOptions returns read options bound to the guarded snapshot.
func (g *snapshotGuard) ReadOptions() kv.ReadOptions {
	return kv.ReadOptions{Snapshot: g.snap}
}

// Release frees the snapshot. Safe to call more than once.
func (g *snapshotGuard) Release() {
	if g.snap != nil {
		g.db.ReleaseSnapshot(g.snap)
		g.snap = nil
	}
}

// lockKey and lockKeys wrap the lock manager acquire/release; callers
// must defer the returned release function.
func (b *base) lockKey(key []byte) func() { return b.lock.Lock(string(key)) }

func (b *base) lockKeys(keys []string) func() { return b.lock.MultiLock(keys) }

// ----------------------------------------------------------------------
// Scan cursor store (per handler)
// ----------------------------------------------------------------------

func scanPointKey(key, pattern string, cursor int64) string {
	return fmt.Sprintf("%s_%s_%d", key, pattern, cursor)
}

// scanStartPoint looks up the resume member stored for (key, pattern,
// cursor). Reads promote the entry.
func (b *base) scanStartPoint(key, pattern string, cursor int64) (string, bool) {
	b.cursorsMu.Lock()
	defer b.cursorsMu.Unlock()
	v, ok := b.cursors.Get(scanPointKey(key, pattern, cursor))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// storeScanNextPoint records where the next call with cursor should
// resume.
func (b *base) storeScanNextPoint(key, pattern string, cursor int64, next string) {
	b.cursorsMu.Lock()
	defer b.cursorsMu.Unlock()
	b.cursors.Add(scanPointKey(key, pattern, cursor), next)
}

// ----------------------------------------------------------------------
// Shared iteration helpers
// ----------------------------------------------------------------------

// sameKeyVersion reports whether the sub-record key raw belongs to
// (userKey, version). Works for every sub-record layout because they
// share the length-prefixed (user_key, version) header.
func sameKeyVersion(raw, userKey []byte, version uint32) bool {
	uk, v, _, err := codec.DecodeDataKey(raw)
	if err != nil {
		return false
	}
	return v == version && bytes.Equal(uk, userKey)
}

// matchKey applies the scan glob to a user key. The "*" fast path skips
// the matcher entirely.
func matchKey(pattern string, key []byte) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return match.StringMatch(pattern, string(key))
}

func ioWrap(context string, err error) error {
	if err == nil {
		return nil
	}
	return status.IOError(context, err)
}
