package engine

import (
	"math/rand"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

// Sets keeps the per-key meta in the default column family and one
// empty-valued record per member in the member column family, keyed by
// (user_key, version, member).
type Sets struct {
	*base
	memberCF kv.ColumnFamilyHandle
}

// spopMaxWindow bounds the random window SPop draws from.
const spopMaxWindow = 50

// OpenSets opens the sets store under path.
func OpenSets(path string, opts kv.Options) (*Sets, error) {
	memberFilter := newDataFilter("kitedb.SetsMemberFilter", decodeCollectionMetaState)
	descs := []kv.ColumnFamilyDescriptor{
		{Name: kv.DefaultColumnFamilyName, Options: kv.ColumnFamilyOptions{
			CompactionFilter: newCollectionMetaFilter("kitedb.SetsMetaFilter"),
		}},
		{Name: "member", Options: kv.ColumnFamilyOptions{
			CompactionFilter: memberFilter,
		}},
	}
	b, err := openBase(path, opts, descs)
	if err != nil {
		return nil, err
	}
	s := &Sets{base: b, memberCF: b.handles[1]}
	memberFilter.publish(b.db, b.metaCF())
	return s, nil
}

func (s *Sets) memberKey(key string, version uint32, member string) []byte {
	return codec.EncodeDataKey([]byte(key), version, []byte(member))
}

func dedupeMembers(members []string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// SAdd inserts the distinct members that are not yet present and
// returns how many were added. A stale key is re-initialized first.
func (s *Sets) SAdd(key string, members []string) (int32, error) {
	members = dedupeMembers(members)

	unlock := s.lockKey([]byte(key))
	defer unlock()

	meta, err := s.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := s.db.NewWriteBatch()
	if status.IsNotFound(err) || (err == nil && meta.IsStale(now)) {
		meta = meta.Initialize(now)
		meta.Count = uint32(len(members))
		batch.Put(s.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		for _, m := range members {
			batch.Put(s.memberCF, s.memberKey(key, meta.Version, m), nil)
		}
		if err := s.db.Write(s.wopts, batch); err != nil {
			return 0, ioWrap("sadd", err)
		}
		return int32(len(members)), nil
	}
	if err != nil {
		return 0, err
	}

	added := int32(0)
	for _, m := range members {
		_, getErr := s.db.Get(kv.ReadOptions{}, s.memberCF, s.memberKey(key, meta.Version, m))
		if getErr == kv.ErrNotFound {
			added++
			batch.Put(s.memberCF, s.memberKey(key, meta.Version, m), nil)
		} else if getErr != nil {
			return 0, ioWrap("sadd", getErr)
		}
	}
	if added == 0 {
		return 0, nil
	}
	meta.Count += uint32(added)
	batch.Put(s.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	if err := s.db.Write(s.wopts, batch); err != nil {
		return 0, ioWrap("sadd", err)
	}
	return added, nil
}

// SRem removes members and returns how many were actually present.
func (s *Sets) SRem(key string, members []string) (int32, error) {
	members = dedupeMembers(members)

	unlock := s.lockKey([]byte(key))
	defer unlock()

	meta, err := s.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	batch := s.db.NewWriteBatch()
	removed := int32(0)
	for _, m := range members {
		_, getErr := s.db.Get(kv.ReadOptions{}, s.memberCF, s.memberKey(key, meta.Version, m))
		if getErr == kv.ErrNotFound {
			continue
		}
		if getErr != nil {
			return 0, ioWrap("srem", getErr)
		}
		batch.Delete(s.memberCF, s.memberKey(key, meta.Version, m))
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	meta.Count -= uint32(removed)
	batch.Put(s.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	if err := s.db.Write(s.wopts, batch); err != nil {
		return 0, ioWrap("srem", err)
	}
	return removed, nil
}

// SCard returns the cardinality; 0 for absent keys.
func (s *Sets) SCard(key string) (int32, error) {
	meta, err := s.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return int32(meta.Count), nil
}

// SIsmember reports membership.
func (s *Sets) SIsmember(key, member string) (bool, error) {
	guard := s.newSnapshotGuard()
	defer guard.Release()

	meta, err := s.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		if status.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	_, getErr := s.db.Get(guard.ReadOptions(), s.memberCF, s.memberKey(key, meta.Version, member))
	if getErr == kv.ErrNotFound {
		return false, nil
	}
	if getErr != nil {
		return false, ioWrap("sismember", getErr)
	}
	return true, nil
}

// membersWithin collects every member of (key, version) under ro.
func (s *Sets) membersWithin(ro kv.ReadOptions, key string, version uint32) ([]string, error) {
	it := s.db.NewIterator(ro, s.memberCF)
	defer it.Close()

	var members []string
	for it.Seek(codec.DataKeyPrefix([]byte(key), version)); it.Valid(); it.Next() {
		if !sameKeyVersion(it.Key(), []byte(key), version) {
			break
		}
		_, _, member, err := codec.DecodeDataKey(it.Key())
		if err != nil {
			return nil, err
		}
		members = append(members, string(member))
	}
	return members, nil
}

// SMembers returns every member, ordered by member bytes.
func (s *Sets) SMembers(key string) ([]string, error) {
	guard := s.newSnapshotGuard()
	defer guard.Release()

	meta, err := s.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	return s.membersWithin(guard.ReadOptions(), key, meta.Version)
}

// SPop removes and returns one member chosen by a uniform pseudo-random
// index within the first min(size, 50) members.
func (s *Sets) SPop(key string) (string, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	meta, err := s.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		return "", err
	}
	window := int(meta.Count)
	if window > spopMaxWindow {
		window = spopMaxWindow
	}
	target := rand.Intn(window)

	it := s.db.NewIterator(kv.ReadOptions{}, s.memberCF)
	defer it.Close()
	idx := 0
	for it.Seek(codec.DataKeyPrefix([]byte(key), meta.Version)); it.Valid(); it.Next() {
		if !sameKeyVersion(it.Key(), []byte(key), meta.Version) {
			break
		}
		if idx == target {
			_, _, member, err := codec.DecodeDataKey(it.Key())
			if err != nil {
				return "", err
			}
			popped := string(member)
			batch := s.db.NewWriteBatch()
			batch.Delete(s.memberCF, s.memberKey(key, meta.Version, popped))
			meta.Count--
			batch.Put(s.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
			if err := s.db.Write(s.wopts, batch); err != nil {
				return "", ioWrap("spop", err)
			}
			return popped, nil
		}
		idx++
	}
	return "", status.Corruption("set shorter than meta count")
}

// SRandmember returns count random members: distinct when count >= 0
// (at most the cardinality), with replacement when count < 0. The
// result is shuffled.
func (s *Sets) SRandmember(key string, count int32) ([]string, error) {
	if count == 0 {
		return nil, nil
	}
	guard := s.newSnapshotGuard()
	defer guard.Release()

	meta, err := s.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	members, err := s.membersWithin(guard.ReadOptions(), key, meta.Version)
	if err != nil {
		return nil, err
	}

	var out []string
	if count < 0 {
		for i := int32(0); i < -count; i++ {
			out = append(out, members[rand.Intn(len(members))])
		}
	} else {
		n := int(count)
		if n > len(members) {
			n = len(members)
		}
		picked := rand.Perm(len(members))[:n]
		for _, i := range picked {
			out = append(out, members[i])
		}
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// SMove moves member from src to dst atomically. Returns 1 when the
// member was moved, 0 when it was not in src.
func (s *Sets) SMove(src, dst, member string) (int32, error) {
	if src == dst {
		ok, err := s.SIsmember(src, member)
		if err != nil {
			return 0, err
		}
		if ok {
			return 1, nil
		}
		return 0, nil
	}

	unlock := s.lockKeys([]string{src, dst})
	defer unlock()

	srcMeta, err := s.liveCollectionMeta(kv.ReadOptions{}, src)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	_, getErr := s.db.Get(kv.ReadOptions{}, s.memberCF, s.memberKey(src, srcMeta.Version, member))
	if getErr == kv.ErrNotFound {
		return 0, nil
	}
	if getErr != nil {
		return 0, ioWrap("smove", getErr)
	}

	batch := s.db.NewWriteBatch()
	batch.Delete(s.memberCF, s.memberKey(src, srcMeta.Version, member))
	srcMeta.Count--
	batch.Put(s.metaCF(), []byte(src), codec.EncodeCollectionMeta(srcMeta))

	dstMeta, err := s.getCollectionMeta(kv.ReadOptions{}, dst)
	now := nowSeconds()
	if status.IsNotFound(err) || (err == nil && dstMeta.IsStale(now)) {
		dstMeta = dstMeta.Initialize(now)
		dstMeta.Count = 1
		batch.Put(s.metaCF(), []byte(dst), codec.EncodeCollectionMeta(dstMeta))
		batch.Put(s.memberCF, s.memberKey(dst, dstMeta.Version, member), nil)
	} else if err != nil {
		return 0, err
	} else {
		_, getErr := s.db.Get(kv.ReadOptions{}, s.memberCF, s.memberKey(dst, dstMeta.Version, member))
		if getErr == kv.ErrNotFound {
			dstMeta.Count++
			batch.Put(s.metaCF(), []byte(dst), codec.EncodeCollectionMeta(dstMeta))
			batch.Put(s.memberCF, s.memberKey(dst, dstMeta.Version, member), nil)
		} else if getErr != nil {
			return 0, ioWrap("smove", getErr)
		}
	}
	if err := s.db.Write(s.wopts, batch); err != nil {
		return 0, ioWrap("smove", err)
	}
	return 1, nil
}

// liveMembersOrNil returns the members of key, nil when the key is
// absent, stale or empty.
func (s *Sets) liveMembersOrNil(ro kv.ReadOptions, key string) ([]string, bool, error) {
	meta, err := s.liveCollectionMeta(ro, key)
	if err != nil {
		if status.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	members, err := s.membersWithin(ro, key, meta.Version)
	if err != nil {
		return nil, false, err
	}
	return members, true, nil
}

// SDiff returns the members of the first set that are in none of the
// remaining live sets.
func (s *Sets) SDiff(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, status.InvalidArgument("SDIFF requires at least one key")
	}
	guard := s.newSnapshotGuard()
	defer guard.Release()
	return s.diffWithin(guard.ReadOptions(), keys)
}

func (s *Sets) diffWithin(ro kv.ReadOptions, keys []string) ([]string, error) {
	first, live, err := s.liveMembersOrNil(ro, keys[0])
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, nil
	}
	exclude := make(map[string]struct{})
	for _, key := range keys[1:] {
		members, _, err := s.liveMembersOrNil(ro, key)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			exclude[m] = struct{}{}
		}
	}
	var out []string
	for _, m := range first {
		if _, ok := exclude[m]; !ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// SInter returns the members present in every input; empty when any
// input is absent, stale or empty.
func (s *Sets) SInter(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, status.InvalidArgument("SINTER requires at least one key")
	}
	guard := s.newSnapshotGuard()
	defer guard.Release()
	return s.interWithin(guard.ReadOptions(), keys)
}

func (s *Sets) interWithin(ro kv.ReadOptions, keys []string) ([]string, error) {
	sets := make([]map[string]struct{}, 0, len(keys)-1)
	for _, key := range keys[1:] {
		members, live, err := s.liveMembersOrNil(ro, key)
		if err != nil {
			return nil, err
		}
		if !live {
			return nil, nil
		}
		set := make(map[string]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		sets = append(sets, set)
	}
	first, live, err := s.liveMembersOrNil(ro, keys[0])
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, nil
	}
	var out []string
	for _, m := range first {
		keep := true
		for _, set := range sets {
			if _, ok := set[m]; !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, m)
		}
	}
	return out, nil
}

// SUnion returns the deduplicated members of every live input.
func (s *Sets) SUnion(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, status.InvalidArgument("SUNION requires at least one key")
	}
	guard := s.newSnapshotGuard()
	defer guard.Release()
	return s.unionWithin(guard.ReadOptions(), keys)
}

func (s *Sets) unionWithin(ro kv.ReadOptions, keys []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, key := range keys {
		members, _, err := s.liveMembersOrNil(ro, key)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// storeResult overwrites dst with members under a fresh version in one
// atomic batch and returns the stored cardinality.
func (s *Sets) storeResult(dst string, members []string) (int32, error) {
	unlock := s.lockKey([]byte(dst))
	defer unlock()

	meta, err := s.getCollectionMeta(kv.ReadOptions{}, dst)
	if err != nil && !status.IsNotFound(err) {
		return 0, err
	}
	meta = meta.Initialize(nowSeconds())
	meta.Count = uint32(len(members))

	batch := s.db.NewWriteBatch()
	batch.Put(s.metaCF(), []byte(dst), codec.EncodeCollectionMeta(meta))
	for _, m := range members {
		batch.Put(s.memberCF, s.memberKey(dst, meta.Version, m), nil)
	}
	if err := s.db.Write(s.wopts, batch); err != nil {
		return 0, ioWrap("store", err)
	}
	return int32(len(members)), nil
}

// SDiffstore stores the SDiff result at dst.
func (s *Sets) SDiffstore(dst string, keys []string) (int32, error) {
	if len(keys) == 0 {
		return 0, status.InvalidArgument("SDIFFSTORE requires at least one key")
	}
	guard := s.newSnapshotGuard()
	members, err := s.diffWithin(guard.ReadOptions(), keys)
	guard.Release()
	if err != nil {
		return 0, err
	}
	return s.storeResult(dst, members)
}

// SInterstore stores the SInter result at dst.
func (s *Sets) SInterstore(dst string, keys []string) (int32, error) {
	if len(keys) == 0 {
		return 0, status.InvalidArgument("SINTERSTORE requires at least one key")
	}
	guard := s.newSnapshotGuard()
	members, err := s.interWithin(guard.ReadOptions(), keys)
	guard.Release()
	if err != nil {
		return 0, err
	}
	return s.storeResult(dst, members)
}

// SUnionstore stores the SUnion result at dst.
func (s *Sets) SUnionstore(dst string, keys []string) (int32, error) {
	if len(keys) == 0 {
		return 0, status.InvalidArgument("SUNIONSTORE requires at least one key")
	}
	guard := s.newSnapshotGuard()
	members, err := s.unionWithin(guard.ReadOptions(), keys)
	guard.Release()
	if err != nil {
		return 0, err
	}
	return s.storeResult(dst, members)
}

// SScan iterates members under a cursor, returning at most count
// records per call. An unknown cursor restarts from the beginning.
func (s *Sets) SScan(key string, cursor int64, pattern string, count int64) ([]string, int64, error) {
	if count <= 0 {
		return nil, 0, status.InvalidArgument("count must be positive")
	}
	guard := s.newSnapshotGuard()
	defer guard.Release()

	meta, err := s.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, 0, err
	}

	startMember := ""
	if cursor != 0 {
		if point, ok := s.scanStartPoint(key, pattern, cursor); ok {
			startMember = point
		} else {
			cursor = 0
		}
	}

	it := s.db.NewIterator(guard.ReadOptions(), s.memberCF)
	defer it.Close()

	var members []string
	visited := int64(0)
	for it.Seek(codec.EncodeDataKey([]byte(key), meta.Version, []byte(startMember))); it.Valid(); it.Next() {
		if !sameKeyVersion(it.Key(), []byte(key), meta.Version) {
			break
		}
		_, _, member, err := codec.DecodeDataKey(it.Key())
		if err != nil {
			return nil, 0, err
		}
		if visited >= count {
			nextCursor := cursor + count
			s.storeScanNextPoint(key, pattern, nextCursor, string(member))
			return members, nextCursor, nil
		}
		visited++
		if matchKey(pattern, member) {
			members = append(members, string(member))
		}
	}
	return members, 0, nil
}

func (s *Sets) Expire(key string, ttl int64) error  { return s.collectionExpire(key, ttl) }
func (s *Sets) Expireat(key string, ts int64) error { return s.collectionExpireat(key, ts) }
func (s *Sets) Persist(key string) error            { return s.collectionPersist(key) }
func (s *Sets) TTL(key string) (int64, error)       { return s.collectionTTL(key) }
func (s *Sets) Del(key string) error                { return s.collectionDel(key) }
func (s *Sets) ScanKeys(pattern string) ([]string, error) {
	return s.scanKeys(collectionMetaLive, pattern)
}
func (s *Sets) ScanKeyNum() (uint64, error) { return s.scanKeyNum(collectionMetaLive) }

// ScanRange supports the facade's cross-type Scan.
func (s *Sets) ScanRange(startKey, pattern string, count int64) ([]string, int64, string, bool, error) {
	return s.scanRange(collectionMetaLive, startKey, pattern, count)
}
