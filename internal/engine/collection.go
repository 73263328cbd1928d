package engine

import (
	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

// Shared meta machinery for the count-carrying collection types
// (hashes, sets, zsets). Lists carry extra index state and implement
// their own variants in lists.go.

// getCollectionMeta fetches and decodes the meta record without any
// staleness interpretation.
func (b *base) getCollectionMeta(ro kv.ReadOptions, key string) (codec.CollectionMeta, error) {
	raw, err := b.db.Get(ro, b.metaCF(), []byte(key))
	if err != nil {
		if err == kv.ErrNotFound {
			return codec.CollectionMeta{}, status.NotFound("")
		}
		return codec.CollectionMeta{}, ioWrap("get meta", err)
	}
	return codec.DecodeCollectionMeta(raw)
}

// liveCollectionMeta is getCollectionMeta plus the read-path liveness
// rules: stale metas and empty metas both read as NotFound.
func (b *base) liveCollectionMeta(ro kv.ReadOptions, key string) (codec.CollectionMeta, error) {
	meta, err := b.getCollectionMeta(ro, key)
	if err != nil {
		return codec.CollectionMeta{}, err
	}
	if meta.IsStale(nowSeconds()) {
		return codec.CollectionMeta{}, status.NotFound("Stale")
	}
	if meta.Count == 0 {
		return codec.CollectionMeta{}, status.NotFound("")
	}
	return meta, nil
}

func (b *base) putCollectionMeta(key string, meta codec.CollectionMeta) error {
	return ioWrap("put meta", b.db.Put(b.wopts, b.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta)))
}

// collectionExpire sets a relative TTL. A non-positive TTL deletes the
// key logically.
func (b *base) collectionExpire(key string, ttl int64) error {
	unlock := b.lockKey([]byte(key))
	defer unlock()

	meta, err := b.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if ttl > 0 {
		meta.Timestamp = uint32(nowSeconds() + ttl)
		return b.putCollectionMeta(key, meta)
	}
	return b.putCollectionMeta(key, meta.Initialize(nowSeconds()))
}

// collectionExpireat sets an absolute expiration timestamp.
func (b *base) collectionExpireat(key string, timestamp int64) error {
	unlock := b.lockKey([]byte(key))
	defer unlock()

	meta, err := b.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if timestamp <= 0 {
		return b.putCollectionMeta(key, meta.Initialize(nowSeconds()))
	}
	meta.Timestamp = uint32(timestamp)
	return b.putCollectionMeta(key, meta)
}

// collectionPersist clears the expiration timestamp.
func (b *base) collectionPersist(key string) error {
	unlock := b.lockKey([]byte(key))
	defer unlock()

	meta, err := b.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if meta.Timestamp == 0 {
		return status.NotFound("no associated timeout")
	}
	meta.Timestamp = 0
	return b.putCollectionMeta(key, meta)
}

// collectionTTL returns the remaining seconds, or -1 when there is no
// expiry. Absent and stale keys return NotFound.
func (b *base) collectionTTL(key string) (int64, error) {
	meta, err := b.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		return 0, err
	}
	if meta.Timestamp == 0 {
		return -1, nil
	}
	return int64(meta.Timestamp) - nowSeconds(), nil
}

// collectionDel logically deletes the key: count and timestamp go to
// zero and the version is bumped, orphaning every sub-record.
func (b *base) collectionDel(key string) error {
	unlock := b.lockKey([]byte(key))
	defer unlock()

	meta, err := b.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	return b.putCollectionMeta(key, meta.Initialize(nowSeconds()))
}

// ----------------------------------------------------------------------
// Meta-CF scans shared by the facade Scan and the maintenance helpers
// ----------------------------------------------------------------------

// liveFunc decides whether a meta value represents a live user key.
type liveFunc func(value []byte, nowSeconds int64) bool

func collectionMetaLive(value []byte, now int64) bool {
	m, err := codec.DecodeCollectionMeta(value)
	if err != nil {
		return false
	}
	return !m.IsStale(now) && m.Count > 0
}

func listsMetaLive(value []byte, now int64) bool {
	m, err := codec.DecodeListsMeta(value)
	if err != nil {
		return false
	}
	return !m.IsStale(now) && m.Count > 0
}

func stringsValueLive(value []byte, now int64) bool {
	v, err := codec.DecodeStringsValue(value)
	if err != nil {
		return false
	}
	return !v.IsStale(now)
}

// scanRange walks the meta column family from startKey over at most
// count live user keys, collecting those that match pattern; every live
// key visited spends budget, matching or not. It reports the unused
// budget, the resume key and whether the keyspace was exhausted.
func (b *base) scanRange(isLive liveFunc, startKey, pattern string, count int64) (keys []string, remaining int64, nextKey string, finished bool, err error) {
	guard := b.newSnapshotGuard()
	defer guard.Release()

	now := nowSeconds()
	it := b.db.NewIterator(guard.ReadOptions(), b.metaCF())
	defer it.Close()

	remaining = count
	for it.Seek([]byte(startKey)); it.Valid(); it.Next() {
		if remaining <= 0 {
			return keys, 0, string(it.Key()), false, nil
		}
		if !isLive(it.Value(), now) {
			continue
		}
		if matchKey(pattern, it.Key()) {
			keys = append(keys, string(it.Key()))
		}
		remaining--
	}
	return keys, remaining, "", true, nil
}

// scanKeys lists every live user key matching pattern.
func (b *base) scanKeys(isLive liveFunc, pattern string) ([]string, error) {
	guard := b.newSnapshotGuard()
	defer guard.Release()

	now := nowSeconds()
	it := b.db.NewIterator(guard.ReadOptions(), b.metaCF())
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if isLive(it.Value(), now) && matchKey(pattern, it.Key()) {
			keys = append(keys, string(it.Key()))
		}
	}
	return keys, nil
}

// scanKeyNum counts live user keys.
func (b *base) scanKeyNum(isLive liveFunc) (uint64, error) {
	guard := b.newSnapshotGuard()
	defer guard.Release()

	now := nowSeconds()
	it := b.db.NewIterator(guard.ReadOptions(), b.metaCF())
	defer it.Close()

	var n uint64
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if isLive(it.Value(), now) {
			n++
		}
	}
	return n, nil
}
