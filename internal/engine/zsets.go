package engine

import (
	"bytes"
	"math"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

// ZSets keep two sub-column-families per key: the data CF maps
// (user_key, version, member) to the score bits for O(1) score lookup,
// and the score CF holds empty-valued (user_key, version, score,
// member) keys ordered by the ZSetsScoreKeyComparator for range-by-
// score iteration. Every mutation keeps the two in lockstep inside one
// batch.
type ZSets struct {
	*base
	dataCF  kv.ColumnFamilyHandle
	scoreCF kv.ColumnFamilyHandle
}

// ScoreMember pairs a member with its score.
type ScoreMember struct {
	Score  float64
	Member string
}

// Aggregate selects how ZUnionstore and ZInterstore combine scores.
type Aggregate int

const (
	AggregateSum Aggregate = iota
	AggregateMin
	AggregateMax
)

func (a Aggregate) apply(x, y float64) float64 {
	switch a {
	case AggregateMin:
		return math.Min(x, y)
	case AggregateMax:
		return math.Max(x, y)
	default:
		return x + y
	}
}

// OpenZSets opens the sorted-sets store under path.
func OpenZSets(path string, opts kv.Options) (*ZSets, error) {
	dataFilter := newDataFilter("kitedb.ZSetsDataFilter", decodeCollectionMetaState)
	scoreFilter := newDataFilter("kitedb.ZSetsScoreFilter", decodeCollectionMetaState)
	descs := []kv.ColumnFamilyDescriptor{
		{Name: kv.DefaultColumnFamilyName, Options: kv.ColumnFamilyOptions{
			CompactionFilter: newCollectionMetaFilter("kitedb.ZSetsMetaFilter"),
		}},
		{Name: "data", Options: kv.ColumnFamilyOptions{
			CompactionFilter: dataFilter,
		}},
		{Name: "score", Options: kv.ColumnFamilyOptions{
			Comparator:       codec.ZSetsScoreKeyComparator{},
			CompactionFilter: scoreFilter,
		}},
	}
	b, err := openBase(path, opts, descs)
	if err != nil {
		return nil, err
	}
	z := &ZSets{base: b, dataCF: b.handles[1], scoreCF: b.handles[2]}
	dataFilter.publish(b.db, b.metaCF())
	scoreFilter.publish(b.db, b.metaCF())
	return z, nil
}

func (z *ZSets) dataKey(key string, version uint32, member string) []byte {
	return codec.EncodeDataKey([]byte(key), version, []byte(member))
}

func (z *ZSets) scoreKey(key string, version uint32, score float64, member string) []byte {
	return codec.EncodeZSetsScoreKey([]byte(key), version, score, []byte(member))
}

// memberScore reads the member's score from the data CF.
func (z *ZSets) memberScore(ro kv.ReadOptions, key string, version uint32, member string) (float64, error) {
	raw, err := z.db.Get(ro, z.dataCF, z.dataKey(key, version, member))
	if err != nil {
		if err == kv.ErrNotFound {
			return 0, status.NotFound("")
		}
		return 0, ioWrap("zscore", err)
	}
	return codec.DecodeScore(raw)
}

func dedupeScoreMembers(sms []ScoreMember) []ScoreMember {
	out := make([]ScoreMember, 0, len(sms))
	last := make(map[string]int, len(sms))
	for _, sm := range sms {
		if i, ok := last[sm.Member]; ok {
			out[i] = sm
			continue
		}
		last[sm.Member] = len(out)
		out = append(out, sm)
	}
	return out
}

// ZAdd inserts or updates members and returns the number of newly
// added ones. Duplicated input members collapse to the last occurrence.
func (z *ZSets) ZAdd(key string, sms []ScoreMember) (int32, error) {
	for _, sm := range sms {
		if math.IsNaN(sm.Score) {
			return 0, status.InvalidArgument("score is not a number")
		}
	}
	sms = dedupeScoreMembers(sms)

	unlock := z.lockKey([]byte(key))
	defer unlock()

	meta, err := z.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := z.db.NewWriteBatch()
	if status.IsNotFound(err) || (err == nil && meta.IsStale(now)) {
		meta = meta.Initialize(now)
		meta.Count = uint32(len(sms))
		batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		for _, sm := range sms {
			batch.Put(z.dataCF, z.dataKey(key, meta.Version, sm.Member), codec.EncodeScore(sm.Score))
			batch.Put(z.scoreCF, z.scoreKey(key, meta.Version, sm.Score, sm.Member), nil)
		}
		if err := z.db.Write(z.wopts, batch); err != nil {
			return 0, ioWrap("zadd", err)
		}
		return int32(len(sms)), nil
	}
	if err != nil {
		return 0, err
	}

	added := int32(0)
	for _, sm := range sms {
		old, getErr := z.memberScore(kv.ReadOptions{}, key, meta.Version, sm.Member)
		if getErr == nil {
			if old == sm.Score {
				continue
			}
			batch.Delete(z.scoreCF, z.scoreKey(key, meta.Version, old, sm.Member))
		} else if status.IsNotFound(getErr) {
			added++
		} else {
			return 0, getErr
		}
		batch.Put(z.dataCF, z.dataKey(key, meta.Version, sm.Member), codec.EncodeScore(sm.Score))
		batch.Put(z.scoreCF, z.scoreKey(key, meta.Version, sm.Score, sm.Member), nil)
	}
	if added > 0 {
		meta.Count += uint32(added)
		batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	}
	if batch.Count() == 0 {
		return 0, nil
	}
	if err := z.db.Write(z.wopts, batch); err != nil {
		return 0, ioWrap("zadd", err)
	}
	return added, nil
}

// ZIncrby adds delta to the member's score, creating the member at
// delta when absent. Returns the new score.
func (z *ZSets) ZIncrby(key, member string, delta float64) (float64, error) {
	unlock := z.lockKey([]byte(key))
	defer unlock()

	meta, err := z.getCollectionMeta(kv.ReadOptions{}, key)
	now := nowSeconds()
	batch := z.db.NewWriteBatch()
	if status.IsNotFound(err) || (err == nil && meta.IsStale(now)) {
		meta = meta.Initialize(now)
		meta.Count = 1
		batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
		batch.Put(z.dataCF, z.dataKey(key, meta.Version, member), codec.EncodeScore(delta))
		batch.Put(z.scoreCF, z.scoreKey(key, meta.Version, delta, member), nil)
		if err := z.db.Write(z.wopts, batch); err != nil {
			return 0, ioWrap("zincrby", err)
		}
		return delta, nil
	}
	if err != nil {
		return 0, err
	}

	newScore := delta
	old, getErr := z.memberScore(kv.ReadOptions{}, key, meta.Version, member)
	if getErr == nil {
		newScore = old + delta
		if math.IsNaN(newScore) {
			return 0, status.InvalidArgument("resulting score is not a number")
		}
		batch.Delete(z.scoreCF, z.scoreKey(key, meta.Version, old, member))
	} else if status.IsNotFound(getErr) {
		meta.Count++
		batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	} else {
		return 0, getErr
	}
	batch.Put(z.dataCF, z.dataKey(key, meta.Version, member), codec.EncodeScore(newScore))
	batch.Put(z.scoreCF, z.scoreKey(key, meta.Version, newScore, member), nil)
	if err := z.db.Write(z.wopts, batch); err != nil {
		return 0, ioWrap("zincrby", err)
	}
	return newScore, nil
}

// ZScore returns the member's score.
func (z *ZSets) ZScore(key, member string) (float64, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return 0, err
	}
	return z.memberScore(guard.ReadOptions(), key, meta.Version, member)
}

// ZCard returns the cardinality; 0 for absent keys.
func (z *ZSets) ZCard(key string) (int32, error) {
	meta, err := z.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return int32(meta.Count), nil
}

// scoreEntries walks the score CF of (key, version) in ascending
// (score, member) order.
func (z *ZSets) scoreEntries(ro kv.ReadOptions, key string, version uint32) ([]ScoreMember, error) {
	it := z.db.NewIterator(ro, z.scoreCF)
	defer it.Close()

	var out []ScoreMember
	for it.Seek(codec.DataKeyPrefix([]byte(key), version)); it.Valid(); it.Next() {
		uk, v, score, member, err := codec.DecodeZSetsScoreKey(it.Key())
		if err != nil || v != version || !bytes.Equal(uk, []byte(key)) {
			break
		}
		out = append(out, ScoreMember{Score: score, Member: string(member)})
	}
	return out, nil
}

// ZCount returns the number of members with scores inside the bounds.
func (z *ZSets) ZCount(key string, min, max float64, leftClose, rightClose bool) (int32, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	it := z.db.NewIterator(guard.ReadOptions(), z.scoreCF)
	defer it.Close()

	count := int32(0)
	for it.Seek(codec.DataKeyPrefix([]byte(key), meta.Version)); it.Valid(); it.Next() {
		uk, v, score, _, err := codec.DecodeZSetsScoreKey(it.Key())
		if err != nil || v != meta.Version || !bytes.Equal(uk, []byte(key)) {
			break
		}
		if score > max || (!rightClose && score == max) {
			break
		}
		if score < min || (!leftClose && score == min) {
			continue
		}
		count++
	}
	return count, nil
}

func sliceByRank(n int64, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

// ZRange returns the slice [start, stop] in ascending score order with
// negative-from-end semantics.
func (z *ZSets) ZRange(key string, start, stop int64) ([]ScoreMember, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	entries, err := z.scoreEntries(guard.ReadOptions(), key, meta.Version)
	if err != nil {
		return nil, err
	}
	s, e, ok := sliceByRank(int64(len(entries)), start, stop)
	if !ok {
		return nil, nil
	}
	return entries[s : e+1], nil
}

// ZRevrange is ZRange in descending score order.
func (z *ZSets) ZRevrange(key string, start, stop int64) ([]ScoreMember, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	entries, err := z.scoreEntries(guard.ReadOptions(), key, meta.Version)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	s, e, ok := sliceByRank(int64(len(entries)), start, stop)
	if !ok {
		return nil, nil
	}
	return entries[s : e+1], nil
}

func inScoreRange(score, min, max float64, leftClose, rightClose bool) bool {
	if score < min || (!leftClose && score == min) {
		return false
	}
	if score > max || (!rightClose && score == max) {
		return false
	}
	return true
}

// ZRangebyscore returns members with scores inside the bounds in
// ascending order.
func (z *ZSets) ZRangebyscore(key string, min, max float64, leftClose, rightClose bool) ([]ScoreMember, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, err
	}
	it := z.db.NewIterator(guard.ReadOptions(), z.scoreCF)
	defer it.Close()

	var out []ScoreMember
	for it.Seek(codec.DataKeyPrefix([]byte(key), meta.Version)); it.Valid(); it.Next() {
		uk, v, score, member, err := codec.DecodeZSetsScoreKey(it.Key())
		if err != nil || v != meta.Version || !bytes.Equal(uk, []byte(key)) {
			break
		}
		if score > max || (!rightClose && score == max) {
			break
		}
		if inScoreRange(score, min, max, leftClose, rightClose) {
			out = append(out, ScoreMember{Score: score, Member: string(member)})
		}
	}
	return out, nil
}

// ZRevrangebyscore is ZRangebyscore in descending order.
func (z *ZSets) ZRevrangebyscore(key string, min, max float64, leftClose, rightClose bool) ([]ScoreMember, error) {
	out, err := z.ZRangebyscore(key, min, max, leftClose, rightClose)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Lex sentinels for the by-lex family.
const (
	LexMinSentinel = "-"
	LexMaxSentinel = "+"
)

func inLexRange(member, min, max string, leftClose, rightClose bool) bool {
	if min != LexMinSentinel {
		c := bytes.Compare([]byte(member), []byte(min))
		if c < 0 || (c == 0 && !leftClose) {
			return false
		}
	}
	if max != LexMaxSentinel {
		c := bytes.Compare([]byte(member), []byte(max))
		if c > 0 || (c == 0 && !rightClose) {
			return false
		}
	}
	return true
}

// lexEntries walks the data CF of (key, version) in member order.
func (z *ZSets) lexEntries(ro kv.ReadOptions, key string, version uint32) ([]string, error) {
	it := z.db.NewIterator(ro, z.dataCF)
	defer it.Close()

	var out []string
	for it.Seek(codec.DataKeyPrefix([]byte(key), version)); it.Valid(); it.Next() {
		if !sameKeyVersion(it.Key(), []byte(key), version) {
			break
		}
		_, _, member, err := codec.DecodeDataKey(it.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, string(member))
	}
	return out, nil
}

// ZRangebylex returns members inside the lexicographic bounds; "-" and
// "+" are the unbounded sentinels.
func (z *ZSets) ZRangebylex(key, min, max string, leftClose, rightClose bool) ([]string, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		if status.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	members, err := z.lexEntries(guard.ReadOptions(), key, meta.Version)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range members {
		if inLexRange(m, min, max, leftClose, rightClose) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ZLexcount counts members inside the lexicographic bounds.
func (z *ZSets) ZLexcount(key, min, max string, leftClose, rightClose bool) (int32, error) {
	members, err := z.ZRangebylex(key, min, max, leftClose, rightClose)
	if err != nil {
		return 0, err
	}
	return int32(len(members)), nil
}

// ZRemrangebylex removes members inside the lexicographic bounds from
// both column families atomically.
func (z *ZSets) ZRemrangebylex(key, min, max string, leftClose, rightClose bool) (int32, error) {
	unlock := z.lockKey([]byte(key))
	defer unlock()

	meta, err := z.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	members, err := z.lexEntries(kv.ReadOptions{}, key, meta.Version)
	if err != nil {
		return 0, err
	}
	batch := z.db.NewWriteBatch()
	removed := int32(0)
	for _, m := range members {
		if !inLexRange(m, min, max, leftClose, rightClose) {
			continue
		}
		score, err := z.memberScore(kv.ReadOptions{}, key, meta.Version, m)
		if err != nil {
			return 0, err
		}
		batch.Delete(z.dataCF, z.dataKey(key, meta.Version, m))
		batch.Delete(z.scoreCF, z.scoreKey(key, meta.Version, score, m))
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	meta.Count -= uint32(removed)
	batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	if err := z.db.Write(z.wopts, batch); err != nil {
		return 0, ioWrap("zremrangebylex", err)
	}
	return removed, nil
}

// ZRank returns the member's 0-based ascending rank.
func (z *ZSets) ZRank(key, member string) (int32, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return 0, err
	}
	entries, err := z.scoreEntries(guard.ReadOptions(), key, meta.Version)
	if err != nil {
		return 0, err
	}
	for i, sm := range entries {
		if sm.Member == member {
			return int32(i), nil
		}
	}
	return 0, status.NotFound("")
}

// ZRevrank returns the member's 0-based descending rank.
func (z *ZSets) ZRevrank(key, member string) (int32, error) {
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return 0, err
	}
	entries, err := z.scoreEntries(guard.ReadOptions(), key, meta.Version)
	if err != nil {
		return 0, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Member == member {
			return int32(len(entries) - 1 - i), nil
		}
	}
	return 0, status.NotFound("")
}

// ZRem removes members from both column families and returns how many
// were present.
func (z *ZSets) ZRem(key string, members []string) (int32, error) {
	unlock := z.lockKey([]byte(key))
	defer unlock()

	meta, err := z.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	batch := z.db.NewWriteBatch()
	removed := int32(0)
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		score, getErr := z.memberScore(kv.ReadOptions{}, key, meta.Version, m)
		if status.IsNotFound(getErr) {
			continue
		}
		if getErr != nil {
			return 0, getErr
		}
		batch.Delete(z.dataCF, z.dataKey(key, meta.Version, m))
		batch.Delete(z.scoreCF, z.scoreKey(key, meta.Version, score, m))
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	meta.Count -= uint32(removed)
	batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	if err := z.db.Write(z.wopts, batch); err != nil {
		return 0, ioWrap("zrem", err)
	}
	return removed, nil
}

func (z *ZSets) removeEntries(key string, meta codec.CollectionMeta, doomed []ScoreMember) (int32, error) {
	if len(doomed) == 0 {
		return 0, nil
	}
	batch := z.db.NewWriteBatch()
	for _, sm := range doomed {
		batch.Delete(z.dataCF, z.dataKey(key, meta.Version, sm.Member))
		batch.Delete(z.scoreCF, z.scoreKey(key, meta.Version, sm.Score, sm.Member))
	}
	meta.Count -= uint32(len(doomed))
	batch.Put(z.metaCF(), []byte(key), codec.EncodeCollectionMeta(meta))
	if err := z.db.Write(z.wopts, batch); err != nil {
		return 0, ioWrap("zremrange", err)
	}
	return int32(len(doomed)), nil
}

// ZRemrangebyrank removes the slice [start, stop] by ascending rank.
func (z *ZSets) ZRemrangebyrank(key string, start, stop int64) (int32, error) {
	unlock := z.lockKey([]byte(key))
	defer unlock()

	meta, err := z.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	entries, err := z.scoreEntries(kv.ReadOptions{}, key, meta.Version)
	if err != nil {
		return 0, err
	}
	s, e, ok := sliceByRank(int64(len(entries)), start, stop)
	if !ok {
		return 0, nil
	}
	return z.removeEntries(key, meta, entries[s:e+1])
}

// ZRemrangebyscore removes members with scores inside the bounds.
func (z *ZSets) ZRemrangebyscore(key string, min, max float64, leftClose, rightClose bool) (int32, error) {
	unlock := z.lockKey([]byte(key))
	defer unlock()

	meta, err := z.liveCollectionMeta(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	entries, err := z.scoreEntries(kv.ReadOptions{}, key, meta.Version)
	if err != nil {
		return 0, err
	}
	var doomed []ScoreMember
	for _, sm := range entries {
		if inScoreRange(sm.Score, min, max, leftClose, rightClose) {
			doomed = append(doomed, sm)
		}
	}
	return z.removeEntries(key, meta, doomed)
}

// liveScoresOrNil returns member->score for a live input, nil when the
// input is absent, stale or empty.
func (z *ZSets) liveScoresOrNil(ro kv.ReadOptions, key string) ([]ScoreMember, bool, error) {
	meta, err := z.liveCollectionMeta(ro, key)
	if err != nil {
		if status.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	entries, err := z.scoreEntries(ro, key, meta.Version)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// storeResult overwrites dst with the aggregated members under a fresh
// version and returns the stored cardinality.
func (z *ZSets) storeResult(dst string, sms []ScoreMember) (int32, error) {
	unlock := z.lockKey([]byte(dst))
	defer unlock()

	meta, err := z.getCollectionMeta(kv.ReadOptions{}, dst)
	if err != nil && !status.IsNotFound(err) {
		return 0, err
	}
	meta = meta.Initialize(nowSeconds())
	meta.Count = uint32(len(sms))

	batch := z.db.NewWriteBatch()
	batch.Put(z.metaCF(), []byte(dst), codec.EncodeCollectionMeta(meta))
	for _, sm := range sms {
		batch.Put(z.dataCF, z.dataKey(dst, meta.Version, sm.Member), codec.EncodeScore(sm.Score))
		batch.Put(z.scoreCF, z.scoreKey(dst, meta.Version, sm.Score, sm.Member), nil)
	}
	if err := z.db.Write(z.wopts, batch); err != nil {
		return 0, ioWrap("zstore", err)
	}
	return int32(len(sms)), nil
}

func weightAt(weights []float64, i int) float64 {
	if i < len(weights) {
		return weights[i]
	}
	return 1
}

// ZUnionstore aggregates every live input into dst with per-input
// weights and the chosen aggregate. Returns the stored cardinality.
func (z *ZSets) ZUnionstore(dst string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	if len(keys) == 0 {
		return 0, status.InvalidArgument("ZUNIONSTORE requires at least one key")
	}
	guard := z.newSnapshotGuard()

	acc := make(map[string]float64)
	var order []string
	for i, key := range keys {
		entries, live, err := z.liveScoresOrNil(guard.ReadOptions(), key)
		if err != nil {
			guard.Release()
			return 0, err
		}
		if !live {
			continue
		}
		w := weightAt(weights, i)
		for _, sm := range entries {
			weighted := sm.Score * w
			if cur, ok := acc[sm.Member]; ok {
				acc[sm.Member] = agg.apply(cur, weighted)
			} else {
				acc[sm.Member] = weighted
				order = append(order, sm.Member)
			}
		}
	}
	guard.Release()

	sms := make([]ScoreMember, 0, len(order))
	for _, m := range order {
		sms = append(sms, ScoreMember{Score: acc[m], Member: m})
	}
	return z.storeResult(dst, sms)
}

// ZInterstore intersects every input into dst; any dead input makes the
// result empty.
func (z *ZSets) ZInterstore(dst string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	if len(keys) == 0 {
		return 0, status.InvalidArgument("ZINTERSTORE requires at least one key")
	}
	guard := z.newSnapshotGuard()

	inputs := make([]map[string]float64, len(keys))
	allLive := true
	var first []ScoreMember
	for i, key := range keys {
		entries, live, err := z.liveScoresOrNil(guard.ReadOptions(), key)
		if err != nil {
			guard.Release()
			return 0, err
		}
		if !live {
			allLive = false
			break
		}
		if i == 0 {
			first = entries
		}
		scores := make(map[string]float64, len(entries))
		for _, sm := range entries {
			scores[sm.Member] = sm.Score
		}
		inputs[i] = scores
	}
	guard.Release()

	var sms []ScoreMember
	if allLive {
		for _, sm := range first {
			agged := sm.Score * weightAt(weights, 0)
			keep := true
			for i := 1; i < len(inputs); i++ {
				score, ok := inputs[i][sm.Member]
				if !ok {
					keep = false
					break
				}
				agged = agg.apply(agged, score*weightAt(weights, i))
			}
			if keep {
				sms = append(sms, ScoreMember{Score: agged, Member: sm.Member})
			}
		}
	}
	return z.storeResult(dst, sms)
}

// ZScan iterates members under a cursor, returning at most count
// records per call. An unknown cursor restarts from the beginning.
func (z *ZSets) ZScan(key string, cursor int64, pattern string, count int64) ([]ScoreMember, int64, error) {
	if count <= 0 {
		return nil, 0, status.InvalidArgument("count must be positive")
	}
	guard := z.newSnapshotGuard()
	defer guard.Release()

	meta, err := z.liveCollectionMeta(guard.ReadOptions(), key)
	if err != nil {
		return nil, 0, err
	}

	startMember := ""
	if cursor != 0 {
		if point, ok := z.scanStartPoint(key, pattern, cursor); ok {
			startMember = point
		} else {
			cursor = 0
		}
	}

	it := z.db.NewIterator(guard.ReadOptions(), z.dataCF)
	defer it.Close()

	var out []ScoreMember
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
			z.storeScanNextPoint(key, pattern, nextCursor, string(member))
			return out, nextCursor, nil
		}
		visited++
		if matchKey(pattern, member) {
			score, err := codec.DecodeScore(it.Value())
			if err != nil {
				return nil, 0, err
			}
			out = append(out, ScoreMember{Score: score, Member: string(member)})
		}
	}
	return out, 0, nil
}

func (z *ZSets) Expire(key string, ttl int64) error  { return z.collectionExpire(key, ttl) }
func (z *ZSets) Expireat(key string, ts int64) error { return z.collectionExpireat(key, ts) }
func (z *ZSets) Persist(key string) error            { return z.collectionPersist(key) }
func (z *ZSets) TTL(key string) (int64, error)       { return z.collectionTTL(key) }
func (z *ZSets) Del(key string) error                { return z.collectionDel(key) }
func (z *ZSets) ScanKeys(pattern string) ([]string, error) {
	return z.scanKeys(collectionMetaLive, pattern)
}
func (z *ZSets) ScanKeyNum() (uint64, error) { return z.scanKeyNum(collectionMetaLive) }

// ScanRange supports the facade's cross-type Scan.
func (z *ZSets) ScanRange(startKey, pattern string, count int64) ([]string, int64, string, bool, error) {
	return z.scanRange(collectionMetaLive, startKey, pattern, count)
}
