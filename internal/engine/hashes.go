package engine

import (
	"math"
	"strconv"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

// Hashes keeps the per-key meta (count, version, timestamp) in the
// default column family and one record per field in the field column
// family, keyed by (user_key, version, field).
type Hashes struct {
	*base
	fieldCF kv.ColumnFamilyHandle
}

// OpenHashes opens the hashes store under path.
func OpenHashes(path string, opts kv.Options) (*Hashes, error) {
	fieldFilter := newDataFilter("kitedb.HashesFieldFilter", decodeCollectionMetaState)
	descs := []kv.ColumnFamilyDescriptor{
		{Name: kv.DefaultColumnFamilyName, Options: kv.ColumnFamilyOptions{
			CompactionFilter: newCollectionMetaFilter("kitedb.HashesMetaFilter"),
		}},
		{Name: "field", Options: kv.ColumnFamilyOptions{
			CompactionFilter: fieldFilter,
		}},
	}
	b, err := openBase(path, opts, descs)
	if err != nil {
		return nil, err
	}
	h := &Hashes{base: b, fieldCF: b.handles[1]}
	fieldFilter.publish(b.db, b.metaCF())
	return h, nil
}

func (h *Hashes) fieldKey(key string, version uint32, field string) []byte {
	return codec.EncodeDataKey([]byte(key), version, []byte(field))
}

// HSet stores field=value. Returns 1 when the field is new, 0 when an
// existing field was overwritten.
func (h *Hashes) HSet(key, field string, value []byte) (int32, error) {
	unlock := h.lockKey([]byte(key))
	defer unlock()

	meta, err := h.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := h.db.NewWriteBatch()
	switch {
	case status.IsNotFound(err) || (err == nil && meta.IsStale(now)):
		meta = meta.Initialize(now)
		meta.Count = 1
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), value)
		if err := h.db.Write(h.wopts, batch); err != nil {
			return 0, ioWrap("hset", err)
		}
		return 1, nil
	case err != nil:
		return 0, err
	}

	_, getErr := h.db.Get(kv.ReadOptions{}, h.fieldCF, h.fieldKey(key, meta.Version, field))
	added := int32(0)
	if getErr == kv.ErrNotFound {
		added = 1
		meta.Count++
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	} else if getErr != nil {
		return 0, ioWrap("hset", getErr)
	}
	batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), value)
	if err := h.db.Write(h.wopts, batch); err != nil {
		return 0, ioWrap("hset", err)
	}
	return added, nil
}

// HSetnx stores field=value only when the field does not exist.
func (h *Hashes) HSetnx(key, field string, value []byte) (int32, error) {
	unlock := h.lockKey([]byte(key))
	defer unlock()

	meta, err := h.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := h.db.NewWriteBatch()
	if status.IsNotFound(err) || (err == nil && meta.IsStale(now)) {
		meta = meta.Initialize(now)
		meta.Count = 1
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), value)
		if err := h.db.Write(h.wopts, batch); err != nil {
			return 0, ioWrap("hsetnx", err)
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	_, getErr := h.db.Get(kv.ReadOptions{}, h.fieldCF, h.fieldKey(key, meta.Version, field))
	if getErr == nil {
		return 0, nil
	}
	if getErr != kv.ErrNotFound {
		return 0, ioWrap("hsetnx", getErr)
	}
	meta.Count++
	batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), value)
	if err := h.db.Write(h.wopts, batch); err != nil {
		return 0, ioWrap("hsetnx", err)
	}
	return 1, nil
}

// HGet returns the field's value.
func (h *Hashes) HGet(key, field string) ([]byte, error) {
	guard := h.newSnapshotGuard()
	defer guard.Release()

	meta, err := h.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	value, err := h.db.Get(guard.ReadOptions(), h.fieldCF, h.fieldKey(key, meta.Version, field))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, status.NotFound("")
		}
		return nil, ioWrap("hget", err)
	}
	return value, nil
}

// HExists reports whether the field exists.
func (h *Hashes) HExists(key, field string) error {
	_, err := h.HGet(key, field)
	return err
}

// HStrlen returns the length of the field's value; 0 when absent.
func (h *Hashes) HStrlen(key, field string) (int32, error) {
	value, err := h.HGet(key, field)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return int32(len(value)), nil
}

// HLen returns the number of fields.
func (h *Hashes) HLen(key string) (int32, error) {
	meta, err := h.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return int32(meta.Count), nil
}

// FieldValue pairs a hash field with its value.
type FieldValue struct {
	Field string
	Value []byte
}

// HMSet stores every pair in one atomic batch, deduplicating fields
// (last write wins).
func (h *Hashes) HMSet(key string, fvs []FieldValue) error {
	// Dedupe keeping the final occurrence.
	dedup := make([]FieldValue, 0, len(fvs))
	last := make(map[string]int, len(fvs))
	for _, fv := range fvs {
		if i, ok := last[fv.Field]; ok {
			dedup[i] = fv
			continue
		}
		last[fv.Field] = len(dedup)
		dedup = append(dedup, fv)
	}

	unlock := h.lockKey([]byte(key))
	defer unlock()

	meta, err := h.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := h.db.NewWriteBatch()
	if status.IsNotFound(err) || (err == nil && meta.IsStale(now)) {
		meta = meta.Initialize(now)
		meta.Count = uint32(len(dedup))
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		for _, fv := range dedup {
			batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, fv.Field), fv.Value)
		}
		return ioWrap("hmset", h.db.Write(h.wopts, batch))
	}
	if err != nil {
		return err
	}

	added := uint32(0)
	for _, fv := range dedup {
		_, getErr := h.db.Get(kv.ReadOptions{}, h.fieldCF, h.fieldKey(key, meta.Version, fv.Field))
		if getErr == kv.ErrNotFound {
			added++
		} else if getErr != nil {
			return ioWrap("hmset", getErr)
		}
		batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, fv.Field), fv.Value)
	}
	if added > 0 {
		meta.Count += added
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	}
	return ioWrap("hmset", h.db.Write(h.wopts, batch))
}

// HMGet returns one entry per requested field, nil for missing fields.
// The key itself being absent or stale is NotFound.
func (h *Hashes) HMGet(key string, fields []string) ([][]byte, error) {
	guard := h.newSnapshotGuard()
	defer guard.Release()

	meta, err := h.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, len(fields))
	for i, field := range fields {
		value, getErr := h.db.Get(guard.ReadOptions(), h.fieldCF, h.fieldKey(key, meta.Version, field))
		if getErr == kv.ErrNotFound {
			continue
		}
		if getErr != nil {
			return nil, ioWrap("hmget", getErr)
		}
		values[i] = value
	}
	return values, nil
}

// HGetall returns every field/value pair, ordered by field bytes.
func (h *Hashes) HGetall(key string) ([]FieldValue, error) {
	guard := h.newSnapshotGuard()
	defer guard.Release()

	meta, err := h.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	prefix := codec.DataKeyPrefix([]byte(key), meta.Version)
	it := h.db.NewIterator(guard.ReadOptions(), h.fieldCF)
	defer it.Close()

	var fvs []FieldValue
	for it.Seek(prefix); it.Valid(); it.Next() {
		if !sameKeyVersion(it.Key(), []byte(key), meta.Version) {
			break
		}
		_, _, field, err := codec.DecodeDataKey(it.Key())
		if err != nil {
			return nil, err
		}
		fvs = append(fvs, FieldValue{
			Field: string(field),
			Value: append([]byte(nil), it.Value()...),
		})
	}
	return fvs, nil
}

// HKeys returns every field name.
func (h *Hashes) HKeys(key string) ([]string, error) {
	fvs, err := h.HGetall(key)
	if err != nil {
		return nil, err
	}
	fields := make([]string, len(fvs))
	for i, fv := range fvs {
		fields[i] = fv.Field
	}
	return fields, nil
}

// HVals returns every field value.
func (h *Hashes) HVals(key string) ([][]byte, error) {
	fvs, err := h.HGetall(key)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, len(fvs))
	for i, fv := range fvs {
		values[i] = fv.Value
	}
	return values, nil
}

// HDel removes fields in one atomic batch and returns how many were
// actually removed. An emptied hash keeps its meta until compaction.
func (h *Hashes) HDel(key string, fields []string) (int32, error) {
	unlock := h.lockKey([]byte(key))
	defer unlock()

	meta, err := h.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	seen := make(map[string]struct{}, len(fields))
	batch := h.db.NewWriteBatch()
	removed := int32(0)
	for _, field := range fields {
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		_, getErr := h.db.Get(kv.ReadOptions{}, h.fieldCF, h.fieldKey(key, meta.Version, field))
		if getErr == kv.ErrNotFound {
			continue
		}
		if getErr != nil {
			return 0, ioWrap("hdel", getErr)
		}
		batch.Delete(h.fieldCF, h.fieldKey(key, meta.Version, field))
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	meta.Count -= uint32(removed)
	batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	if err := h.db.Write(h.wopts, batch); err != nil {
		return 0, ioWrap("hdel", err)
	}
	return removed, nil
}

// HIncrby adds delta to the integer stored at field. Same parse and
// overflow rules as the strings Incrby.
func (h *Hashes) HIncrby(key, field string, delta int64) (int64, error) {
	unlock := h.lockKey([]byte(key))
	defer unlock()

	meta, err := h.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := h.db.NewWriteBatch()
	if status.IsNotFound(err) || (err == nil && meta.IsStale(now)) {
		meta = meta.Initialize(now)
		meta.Count = 1
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), []byte(strconv.FormatInt(delta, 10)))
		if err := h.db.Write(h.wopts, batch); err != nil {
			return 0, ioWrap("hincrby", err)
		}
		return delta, nil
	}
	if err != nil {
		return 0, err
	}

	raw, getErr := h.db.Get(kv.ReadOptions{}, h.fieldCF, h.fieldKey(key, meta.Version, field))
	if getErr == kv.ErrNotFound {
		meta.Count++
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), []byte(strconv.FormatInt(delta, 10)))
		if err := h.db.Write(h.wopts, batch); err != nil {
			return 0, ioWrap("hincrby", err)
		}
		return delta, nil
	}
	if getErr != nil {
		return 0, ioWrap("hincrby", getErr)
	}
	old, parseErr := strconv.ParseInt(string(raw), 10, 64)
	if parseErr != nil {
		return 0, status.Corruption("hash value is not an integer")
	}
	if (delta > 0 && old > math.MaxInt64-delta) || (delta < 0 && old < math.MinInt64-delta) {
		return 0, status.InvalidArgument("increment or decrement would overflow")
	}
	result := old + delta
	batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), []byte(strconv.FormatInt(result, 10)))
	if err := h.db.Write(h.wopts, batch); err != nil {
		return 0, ioWrap("hincrby", err)
	}
	return result, nil
}

// HIncrbyfloat adds a float delta to the field. Same rules as the
// strings Incrbyfloat.
func (h *Hashes) HIncrbyfloat(key, field string, delta float64) ([]byte, error) {
	unlock := h.lockKey([]byte(key))
	defer unlock()

	meta, err := h.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := h.db.NewWriteBatch()
	fresh := status.IsNotFound(err) || (err == nil && meta.IsStale(now))
	if err != nil && !status.IsNotFound(err) {
		return nil, err
	}

	old := 0.0
	if fresh {
		meta = meta.Initialize(now)
		meta.Count = 1
		batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	} else {
		raw, getErr := h.db.Get(kv.ReadOptions{}, h.fieldCF, h.fieldKey(key, meta.Version, field))
		if getErr == kv.ErrNotFound {
			meta.Count++
			batch.Put(h.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		} else if getErr != nil {
			return nil, ioWrap("hincrbyfloat", getErr)
		} else {
			old, err = strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return nil, status.Corruption("hash value is not a valid float")
			}
		}
	}
	result := old + delta
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, status.InvalidArgument("increment would produce NaN or Infinity")
	}
	out := []byte(strconv.FormatFloat(result, 'f', -1, 64))
	batch.Put(h.fieldCF, h.fieldKey(key, meta.Version, field), out)
	if err := h.db.Write(h.wopts, batch); err != nil {
		return nil, ioWrap("hincrbyfloat", err)
	}
	return out, nil
}

// HScan iterates fields under a cursor, returning at most count
// records per call. An unknown cursor restarts from the beginning.
func (h *Hashes) HScan(key string, cursor int64, pattern string, count int64) ([]FieldValue, int64, error) {
	if count <= 0 {
		return nil, 0, status.InvalidArgument("count must be positive")
	}
	guard := h.newSnapshotGuard()
	defer guard.Release()

	meta, err := h.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, 0, err
	}

	startField := ""
	if cursor != 0 {
		if point, ok := h.scanStartPoint(key, pattern, cursor); ok {
			startField = point
		} else {
			cursor = 0
		}
	}

	it := h.db.NewIterator(guard.ReadOptions(), h.fieldCF)
	defer it.Close()

	var fvs []FieldValue
	visited := int64(0)
	for it.Seek(codec.EncodeDataKey([]byte(key), meta.Version, []byte(startField))); it.Valid(); it.Next() {
		if !sameKeyVersion(it.Key(), []byte(key), meta.Version) {
			break
		}
		if visited >= count {
			_, _, field, err := codec.DecodeDataKey(it.Key())
			if err != nil {
				return nil, 0, err
			}
			nextCursor := cursor + count
			h.storeScanNextPoint(key, pattern, nextCursor, string(field))
			return fvs, nextCursor, nil
		}
		visited++
		_, _, field, err := codec.DecodeDataKey(it.Key())
		if err != nil {
			return nil, 0, err
		}
		if matchKey(pattern, field) {
			fvs = append(fvs, FieldValue{Field: string(field), Value: append([]byte(nil), it.Value()...)})
		}
	}
	return fvs, 0, nil
}

// Expire, Expireat, Persist, TTL and Del share the collection meta
// machinery.

func (h *Hashes) Expire(key string, ttl int64) error      { return h.collectionExpire(key, ttl) }
func (h *Hashes) Expireat(key string, ts int64) error     { return h.collectionExpireat(key, ts) }
func (h *Hashes) Persist(key string) error                { return h.collectionPersist(key) }
func (h *Hashes) TTL(key string) (int64, error)           { return h.collectionTTL(key) }
func (h *Hashes) Del(key string) error                    { return h.collectionDel(key) }
func (h *Hashes) ScanKeys(pattern string) ([]string, error) {
	return h.scanKeys(collectionMetaLive, pattern)
}
func (h *Hashes) ScanKeyNum() (uint64, error) { return h.scanKeyNum(collectionMetaLive) }

// ScanRange supports the facade's cross-type Scan.
func (h *Hashes) ScanRange(startKey, pattern string, count int64) ([]string, int64, string, bool, error) {
	return h.scanRange(collectionMetaLive, startKey, pattern, count)
}
