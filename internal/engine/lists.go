package engine

import (
	"bytes"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

// Lists store one node per element at a sparse 64-bit index in the node
// column family. The meta tracks count plus the exclusive index bounds:
// the first element sits at LeftIndex+1, the last at RightIndex-1, and
// count == RightIndex-LeftIndex-1. LPush claims LeftIndex and moves it
// left; RPush claims RightIndex and moves it right. The node column
// family is ordered by the ListsDataKeyComparator so iteration follows
// numeric index order.
type Lists struct {
	*base
	nodeCF kv.ColumnFamilyHandle
}

// OpenLists opens the lists store under path.
func OpenLists(path string, opts kv.Options) (*Lists, error) {
	nodeFilter := newDataFilter("kitedb.ListsNodeFilter", decodeListsMetaState)
	descs := []kv.ColumnFamilyDescriptor{
		{Name: kv.DefaultColumnFamilyName, Options: kv.ColumnFamilyOptions{
			CompactionFilter: newListsMetaFilter(),
		}},
		{Name: "node", Options: kv.ColumnFamilyOptions{
			Comparator:       codec.ListsDataKeyComparator{},
			CompactionFilter: nodeFilter,
		}},
	}
	b, err := openBase(path, opts, descs)
	if err != nil {
		return nil, err
	}
	l := &Lists{base: b, nodeCF: b.handles[1]}
	nodeFilter.publish(b.db, b.metaCF())
	return l, nil
}

func (l *Lists) nodeKey(key string, version uint32, index uint64) []byte {
	return codec.EncodeListsDataKey([]byte(key), version, index)
}

func (l *Lists) getMeta(ro kv.ReadOptions, key string) (codec.ListsMeta, error) {
	raw, err := l.db.Get(ro, l.metaCF(), []byte(key))
	if err != nil {
		if err == kv.ErrNotFound {
			return codec.ListsMeta{}, status.NotFound("")
		}
		return codec.ListsMeta{}, ioWrap("get meta", err)
	}
	return codec.DecodeListsMeta(raw)
}

// liveMeta applies the read-path liveness rules: stale and empty lists
// both read as NotFound.
func (l *Lists) liveMeta(ro kv.ReadOptions, key string) (codec.ListsMeta, error) {
	meta, err := l.getMeta(ro, key)
	if err != nil {
		return codec.ListsMeta{}, err
	}
	if meta.IsStale(nowSeconds()) {
		return codec.ListsMeta{}, status.NotFound("Stale")
	}
	if meta.Count == 0 {
		return codec.ListsMeta{}, status.NotFound("")
	}
	return meta, nil
}

func (l *Lists) putMeta(batch kv.WriteBatch, key string, meta codec.ListsMeta) {
	batch.Put(l.metaCF(), []byte(key), codec.EncodeListsMeta(meta))
}

func (l *Lists) getNode(ro kv.ReadOptions, key string, version uint32, index uint64) ([]byte, error) {
	value, err := l.db.Get(ro, l.nodeCF, l.nodeKey(key, version, index))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, status.NotFound("")
		}
		return nil, ioWrap("get node", err)
	}
	return value, nil
}

// push appends values on one side under the key's lock. create selects
// whether an absent or stale key is initialized (Push) or rejected
// (Pushx).
func (l *Lists) push(key string, values [][]byte, left, create bool) (uint64, error) {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.getMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	fresh := status.IsNotFound(err) || (err == nil && meta.IsStale(now))
	if err != nil && !status.IsNotFound(err) {
		return 0, err
	}
	if fresh {
		if !create {
			return 0, status.NotFound("")
		}
		meta = meta.Initialize(now)
	} else if !create && meta.Count == 0 {
		return 0, status.NotFound("")
	}

	batch := l.db.NewWriteBatch()
	for _, value := range values {
		if left {
			batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, meta.LeftIndex), value)
			meta.LeftIndex--
		} else {
			batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, meta.RightIndex), value)
			meta.RightIndex++
		}
		meta.Count++
	}
	l.putMeta(batch, key, meta)
	if err := l.db.Write(l.wopts, batch); err != nil {
		return 0, ioWrap("push", err)
	}
	return meta.Count, nil
}

// LPush prepends values one at a time and returns the new length.
func (l *Lists) LPush(key string, values [][]byte) (uint64, error) {
	return l.push(key, values, true, true)
}

// RPush appends values and returns the new length.
func (l *Lists) RPush(key string, values [][]byte) (uint64, error) {
	return l.push(key, values, false, true)
}

// LPushx prepends only when the list already exists and is non-empty.
func (l *Lists) LPushx(key string, value []byte) (uint64, error) {
	return l.push(key, [][]byte{value}, true, false)
}

// RPushx appends only when the list already exists and is non-empty.
func (l *Lists) RPushx(key string, value []byte) (uint64, error) {
	return l.push(key, [][]byte{value}, false, false)
}

func (l *Lists) pop(key string, left bool) ([]byte, error) {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return nil, err
	}
	var index uint64
	if left {
		index = meta.LeftIndex + 1
	} else {
		index = meta.RightIndex - 1
	}
	value, err := l.getNode(kv.ReadOptions{}, key, meta.Version, index)
	if err != nil {
		return nil, err
	}
	batch := l.db.NewWriteBatch()
	batch.Delete(l.nodeCF, l.nodeKey(key, meta.Version, index))
	if left {
		meta.LeftIndex++
	} else {
		meta.RightIndex--
	}
	meta.Count--
	l.putMeta(batch, key, meta)
	if err := l.db.Write(l.wopts, batch); err != nil {
		return nil, ioWrap("pop", err)
	}
	return value, nil
}

// LPop removes and returns the first element.
func (l *Lists) LPop(key string) ([]byte, error) { return l.pop(key, true) }

// RPop removes and returns the last element.
func (l *Lists) RPop(key string) ([]byte, error) { return l.pop(key, false) }

// LLen returns the list length; 0 for absent keys.
func (l *Lists) LLen(key string) (uint64, error) {
	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Count, nil
}

// position resolves a possibly-negative logical index to its node index
// (LeftIndex+1+offset); ok is false when the offset falls outside
// [0, count).
func position(meta codec.ListsMeta, i int64) (uint64, bool) {
	pos := i
	if pos < 0 {
		pos = int64(meta.Count) + pos
	}
	if pos < 0 || uint64(pos) >= meta.Count {
		return 0, false
	}
	return meta.LeftIndex + 1 + uint64(pos), true
}

// LIndex returns the element at logical index i; negative indices count
// from the right.
func (l *Lists) LIndex(key string, i int64) ([]byte, error) {
	guard := l.newSnapshotGuard()
	defer guard.Release()

	meta, err := l.liveMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	index, ok := position(meta, i)
	if !ok {
		return nil, status.NotFound("")
	}
	return l.getNode(guard.ReadOptions(), key, meta.Version, index)
}

// LRange returns the elements between the clamped logical bounds,
// possibly empty.
func (l *Lists) LRange(key string, start, stop int64) ([][]byte, error) {
	guard := l.newSnapshotGuard()
	defer guard.Release()

	meta, err := l.liveMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	count := int64(meta.Count)
	if start < 0 {
		start = count + start
	}
	if stop < 0 {
		stop = count + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= count {
		stop = count - 1
	}
	if start > stop || start >= count {
		return nil, nil
	}

	first := meta.LeftIndex + 1 + uint64(start)
	last := meta.LeftIndex + 1 + uint64(stop)
	it := l.db.NewIterator(guard.ReadOptions(), l.nodeCF)
	defer it.Close()

	var out [][]byte
	for it.Seek(l.nodeKey(key, meta.Version, first)); it.Valid(); it.Next() {
		_, version, index, err := codec.DecodeListsDataKey(it.Key())
		if err != nil || version != meta.Version || index > last {
			break
		}
		uk, _, _, _ := codec.DecodeDataKey(it.Key())
		if !bytes.Equal(uk, []byte(key)) {
			break
		}
		out = append(out, append([]byte(nil), it.Value()...))
	}
	return out, nil
}

// LSet replaces the element at logical index i. Out-of-range indices
// are Corruption.
func (l *Lists) LSet(key string, i int64, value []byte) error {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	index, ok := position(meta, i)
	if !ok {
		return status.Corruption("index out of range")
	}
	return ioWrap("lset", l.db.Put(l.wopts, l.nodeCF, l.nodeKey(key, meta.Version, index), value))
}

// LInsert inserts value before or after the first occurrence of pivot,
// shifting whichever half of the list is smaller. Returns the new
// length, or -1 when the pivot is absent.
func (l *Lists) LInsert(key string, before bool, pivot, value []byte) (int64, error) {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return 0, err
	}
	first := meta.LeftIndex + 1
	last := meta.RightIndex - 1

	// Locate the pivot.
	pivotIndex := uint64(0)
	found := false
	it := l.db.NewIterator(kv.ReadOptions{}, l.nodeCF)
	for it.Seek(l.nodeKey(key, meta.Version, first)); it.Valid(); it.Next() {
		uk, version, index, err := codec.DecodeListsDataKey(it.Key())
		if err != nil || version != meta.Version || !bytes.Equal(uk, []byte(key)) || index > last {
			break
		}
		if bytes.Equal(it.Value(), pivot) {
			pivotIndex, found = index, true
			break
		}
	}
	it.Close()
	if !found {
		return -1, nil
	}

	mid := meta.LeftIndex + (meta.RightIndex-meta.LeftIndex)/2
	batch := l.db.NewWriteBatch()
	if pivotIndex <= mid {
		// Shift the prefix one slot left; the freed slot receives the
		// new value.
		target := pivotIndex
		if before {
			target = pivotIndex - 1
		}
		for idx := first; idx <= target; idx++ {
			v, err := l.getNode(kv.ReadOptions{}, key, meta.Version, idx)
			if err != nil {
				return 0, err
			}
			batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, idx-1), v)
		}
		batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, target), value)
		meta.LeftIndex--
	} else {
		// Shift the suffix one slot right.
		target := pivotIndex + 1
		if before {
			target = pivotIndex
		}
		for idx := last; idx >= target; idx-- {
			v, err := l.getNode(kv.ReadOptions{}, key, meta.Version, idx)
			if err != nil {
				return 0, err
			}
			batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, idx+1), v)
		}
		batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, target), value)
		meta.RightIndex++
	}
	meta.Count++
	l.putMeta(batch, key, meta)
	if err := l.db.Write(l.wopts, batch); err != nil {
		return 0, ioWrap("linsert", err)
	}
	return int64(meta.Count), nil
}

// LRem removes up to count occurrences of value (forward when count >
// 0, backward when count < 0, all when 0), then collapses the survivors
// so the list is contiguous again, rewriting whichever side needs fewer
// moves. Returns the number removed.
func (l *Lists) LRem(key string, count int64, value []byte) (int64, error) {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	first := meta.LeftIndex + 1
	last := meta.RightIndex - 1

	// Snapshot the node values in index order.
	type node struct {
		index uint64
		value []byte
	}
	nodes := make([]node, 0, meta.Count)
	it := l.db.NewIterator(kv.ReadOptions{}, l.nodeCF)
	for it.Seek(l.nodeKey(key, meta.Version, first)); it.Valid(); it.Next() {
		uk, version, index, err := codec.DecodeListsDataKey(it.Key())
		if err != nil || version != meta.Version || !bytes.Equal(uk, []byte(key)) || index > last {
			break
		}
		nodes = append(nodes, node{index: index, value: append([]byte(nil), it.Value()...)})
	}
	it.Close()

	// Mark up to |count| matches in the requested direction.
	limit := count
	if limit < 0 {
		limit = -limit
	}
	removed := make(map[uint64]struct{})
	if count >= 0 {
		for _, n := range nodes {
			if count > 0 && int64(len(removed)) >= limit {
				break
			}
			if bytes.Equal(n.value, value) {
				removed[n.index] = struct{}{}
			}
		}
	} else {
		for i := len(nodes) - 1; i >= 0; i-- {
			if int64(len(removed)) >= limit {
				break
			}
			if bytes.Equal(nodes[i].value, value) {
				removed[nodes[i].index] = struct{}{}
			}
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	var firstRemoved, lastRemoved uint64
	firstSet := false
	for _, n := range nodes {
		if _, ok := removed[n.index]; ok {
			if !firstSet {
				firstRemoved, firstSet = n.index, true
			}
			lastRemoved = n.index
		}
	}
	r := uint64(len(removed))

	batch := l.db.NewWriteBatch()
	if firstRemoved-first <= last-lastRemoved {
		// Rewrite the left part shifted right by r; vacate the head.
		write := lastRemoved
		for i := len(nodes) - 1; i >= 0; i-- {
			n := nodes[i]
			if n.index > lastRemoved {
				continue
			}
			if _, gone := removed[n.index]; gone {
				continue
			}
			batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, write), n.value)
			write--
		}
		for idx := first; idx < first+r; idx++ {
			batch.Delete(l.nodeCF, l.nodeKey(key, meta.Version, idx))
		}
		meta.LeftIndex += r
	} else {
		// Rewrite the right part shifted left by r; vacate the tail.
		write := firstRemoved
		for _, n := range nodes {
			if n.index < firstRemoved {
				continue
			}
			if _, gone := removed[n.index]; gone {
				continue
			}
			batch.Put(l.nodeCF, l.nodeKey(key, meta.Version, write), n.value)
			write++
		}
		for idx := last - r + 1; idx <= last; idx++ {
			batch.Delete(l.nodeCF, l.nodeKey(key, meta.Version, idx))
		}
		meta.RightIndex -= r
	}
	meta.Count -= r
	l.putMeta(batch, key, meta)
	if err := l.db.Write(l.wopts, batch); err != nil {
		return 0, ioWrap("lrem", err)
	}
	return int64(r), nil
}

// LTrim keeps only the elements in the clamped logical range
// [start, stop]; an empty result reinitializes the list.
func (l *Lists) LTrim(key string, start, stop int64) error {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	count := int64(meta.Count)
	if start < 0 {
		start = count + start
	}
	if stop < 0 {
		stop = count + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= count {
		stop = count - 1
	}

	batch := l.db.NewWriteBatch()
	first := meta.LeftIndex + 1
	last := meta.RightIndex - 1
	if start > stop || start >= count {
		// Everything trimmed away.
		for idx := first; idx <= last; idx++ {
			batch.Delete(l.nodeCF, l.nodeKey(key, meta.Version, idx))
		}
		l.putMeta(batch, key, meta.Initialize(nowSeconds()))
		return ioWrap("ltrim", l.db.Write(l.wopts, batch))
	}

	newFirst := meta.LeftIndex + 1 + uint64(start)
	newLast := meta.LeftIndex + 1 + uint64(stop)
	for idx := first; idx < newFirst; idx++ {
		batch.Delete(l.nodeCF, l.nodeKey(key, meta.Version, idx))
	}
	for idx := newLast + 1; idx <= last; idx++ {
		batch.Delete(l.nodeCF, l.nodeKey(key, meta.Version, idx))
	}
	meta.LeftIndex = newFirst - 1
	meta.RightIndex = newLast + 1
	meta.Count = uint64(stop - start + 1)
	l.putMeta(batch, key, meta)
	return ioWrap("ltrim", l.db.Write(l.wopts, batch))
}

// RPoplpush pops the tail of src and pushes it onto the head of dst in
// one atomic batch. The moved element is returned only after the write
// commits.
func (l *Lists) RPoplpush(src, dst string) ([]byte, error) {
	if src == dst {
		unlock := l.lockKey([]byte(src))
		defer unlock()

		meta, err := l.liveMeta(kv.ReadOptions{}, src)
		if err != nil {
			return nil, err
		}
		tail := meta.RightIndex - 1
		value, err := l.getNode(kv.ReadOptions{}, src, meta.Version, tail)
		if err != nil {
			return nil, err
		}
		batch := l.db.NewWriteBatch()
		batch.Delete(l.nodeCF, l.nodeKey(src, meta.Version, tail))
		batch.Put(l.nodeCF, l.nodeKey(src, meta.Version, meta.LeftIndex), value)
		meta.LeftIndex--
		meta.RightIndex--
		l.putMeta(batch, src, meta)
		if err := l.db.Write(l.wopts, batch); err != nil {
			return nil, ioWrap("rpoplpush", err)
		}
		return value, nil
	}

	unlock := l.lockKeys([]string{src, dst})
	defer unlock()

	srcMeta, err := l.liveMeta(kv.ReadOptions{}, src)
	if err != nil {
		return nil, err
	}
	tail := srcMeta.RightIndex - 1
	value, err := l.getNode(kv.ReadOptions{}, src, srcMeta.Version, tail)
	if err != nil {
		return nil, err
	}

	batch := l.db.NewWriteBatch()
	batch.Delete(l.nodeCF, l.nodeKey(src, srcMeta.Version, tail))
	srcMeta.RightIndex--
	srcMeta.Count--
	l.putMeta(batch, src, srcMeta)

	dstMeta, err := l.getMeta(kv.ReadOptions{}, dst)
	now := nowSeconds()
	if status.IsNotFound(err) || (err == nil && dstMeta.IsStale(now)) {
		dstMeta = dstMeta.Initialize(now)
	} else if err != nil {
		return nil, err
	}
	batch.Put(l.nodeCF, l.nodeKey(dst, dstMeta.Version, dstMeta.LeftIndex), value)
	dstMeta.LeftIndex--
	dstMeta.Count++
	l.putMeta(batch, dst, dstMeta)

	if err := l.db.Write(l.wopts, batch); err != nil {
		return nil, ioWrap("rpoplpush", err)
	}
	return value, nil
}

// ----------------------------------------------------------------------
// Keys commands
// ----------------------------------------------------------------------

// Expire sets a relative TTL; a non-positive TTL deletes the list.
func (l *Lists) Expire(key string, ttl int64) error {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	batch := l.db.NewWriteBatch()
	if ttl > 0 {
		meta.Timestamp = uint32(nowSeconds() + ttl)
		l.putMeta(batch, key, meta)
	} else {
		l.putMeta(batch, key, meta.Initialize(nowSeconds()))
	}
	return ioWrap("expire", l.db.Write(l.wopts, batch))
}

// Expireat sets an absolute expiration timestamp.
func (l *Lists) Expireat(key string, timestamp int64) error {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	batch := l.db.NewWriteBatch()
	if timestamp <= 0 {
		l.putMeta(batch, key, meta.Initialize(nowSeconds()))
	} else {
		meta.Timestamp = uint32(timestamp)
		l.putMeta(batch, key, meta)
	}
	return ioWrap("expireat", l.db.Write(l.wopts, batch))
}

// Persist clears the expiration timestamp.
func (l *Lists) Persist(key string) error {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if meta.Timestamp == 0 {
		return status.NotFound("no associated timeout")
	}
	meta.Timestamp = 0
	batch := l.db.NewWriteBatch()
	l.putMeta(batch, key, meta)
	return ioWrap("persist", l.db.Write(l.wopts, batch))
}

// TTL returns the remaining seconds, or -1 when there is no expiry.
func (l *Lists) TTL(key string) (int64, error) {
	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return 0, err
	}
	if meta.Timestamp == 0 {
		return -1, nil
	}
	return int64(meta.Timestamp) - nowSeconds(), nil
}

// Del logically deletes the list: count back to zero, indices reset,
// version bumped so the nodes are orphaned for the compaction filter.
func (l *Lists) Del(key string) error {
	unlock := l.lockKey([]byte(key))
	defer unlock()

	meta, err := l.liveMeta(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	batch := l.db.NewWriteBatch()
	l.putMeta(batch, key, meta.Initialize(nowSeconds()))
	return ioWrap("del", l.db.Write(l.wopts, batch))
}

func (l *Lists) ScanKeys(pattern string) ([]string, error) {
	return l.scanKeys(listsMetaLive, pattern)
}
func (l *Lists) ScanKeyNum() (uint64, error) { return l.scanKeyNum(listsMetaLive) }

// ScanRange supports the facade's cross-type Scan.
func (l *Lists) ScanRange(startKey, pattern string, count int64) ([]string, int64, string, bool, error) {
	return l.scanRange(listsMetaLive, startKey, pattern, count)
}
