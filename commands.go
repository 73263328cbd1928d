package kitedb

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"

	"github.com/kitedb/kitedb/internal/engine"
)

// Re-exported command argument types.
type (
	// KeyValue pairs a key with a value for MSet and MSetnx.
	KeyValue = engine.KeyValue
	// FieldValue pairs a hash field with its value.
	FieldValue = engine.FieldValue
	// ScoreMember pairs a sorted-set member with its score.
	ScoreMember = engine.ScoreMember
	// Aggregate selects the ZUnionstore / ZInterstore combiner.
	Aggregate = engine.Aggregate
	// BitOpKind selects the BitOp operator.
	BitOpKind = engine.BitOpKind
)

const (
	AggregateSum = engine.AggregateSum
	AggregateMin = engine.AggregateMin
	AggregateMax = engine.AggregateMax

	BitOpAnd = engine.BitOpAnd
	BitOpOr  = engine.BitOpOr
	BitOpXor = engine.BitOpXor
	BitOpNot = engine.BitOpNot
)

func (db *DB) recordRead(t DataType) {
	db.totalReads.Add(1)
	metrics.GetOrCreateCounter(fmt.Sprintf(`kitedb_commands_total{type=%q,kind="read"}`, t.String())).Inc()
}

func (db *DB) recordWrite(t DataType) {
	db.totalWrites.Add(1)
	metrics.GetOrCreateCounter(fmt.Sprintf(`kitedb_commands_total{type=%q,kind="write"}`, t.String())).Inc()
}

// ----------------------------------------------------------------------
// Strings commands
// ----------------------------------------------------------------------

func (db *DB) Set(key string, value []byte) error {
	db.recordWrite(TypeStrings)
	return db.strings.Set(key, value)
}

func (db *DB) Get(key string) ([]byte, error) {
	db.recordRead(TypeStrings)
	return db.strings.Get(key)
}

func (db *DB) GetSet(key string, value []byte) ([]byte, error) {
	db.recordWrite(TypeStrings)
	return db.strings.GetSet(key, value)
}

func (db *DB) Setex(key string, value []byte, ttl int64) error {
	db.recordWrite(TypeStrings)
	return db.strings.Setex(key, value, ttl)
}

func (db *DB) Setnx(key string, value []byte) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Setnx(key, value)
}

func (db *DB) Setvx(key string, expected, value []byte, ttl int64) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Setvx(key, expected, value, ttl)
}

func (db *DB) Delvx(key string, expected []byte) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Delvx(key, expected)
}

func (db *DB) MSet(kvs []KeyValue) error {
	db.recordWrite(TypeStrings)
	return db.strings.MSet(kvs)
}

func (db *DB) MSetnx(kvs []KeyValue) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.MSetnx(kvs)
}

func (db *DB) MGet(keys []string) ([][]byte, error) {
	db.recordRead(TypeStrings)
	return db.strings.MGet(keys)
}

func (db *DB) Append(key string, value []byte) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Append(key, value)
}

func (db *DB) Setrange(key string, offset int64, value []byte) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Setrange(key, offset, value)
}

func (db *DB) Getrange(key string, start, end int64) ([]byte, error) {
	db.recordRead(TypeStrings)
	return db.strings.Getrange(key, start, end)
}

func (db *DB) Strlen(key string) (int32, error) {
	db.recordRead(TypeStrings)
	return db.strings.Strlen(key)
}

func (db *DB) Incrby(key string, delta int64) (int64, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Incrby(key, delta)
}

func (db *DB) Decrby(key string, delta int64) (int64, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Decrby(key, delta)
}

func (db *DB) Incrbyfloat(key string, delta float64) ([]byte, error) {
	db.recordWrite(TypeStrings)
	return db.strings.Incrbyfloat(key, delta)
}

func (db *DB) BitCount(key string, start, end int64, haveRange bool) (int32, error) {
	db.recordRead(TypeStrings)
	return db.strings.BitCount(key, start, end, haveRange)
}

func (db *DB) BitOp(op BitOpKind, dest string, srcs []string) (int64, error) {
	db.recordWrite(TypeStrings)
	return db.strings.BitOp(op, dest, srcs)
}

func (db *DB) GetBit(key string, offset int64) (int32, error) {
	db.recordRead(TypeStrings)
	return db.strings.GetBit(key, offset)
}

func (db *DB) SetBit(key string, offset int64, on int32) (int32, error) {
	db.recordWrite(TypeStrings)
	return db.strings.SetBit(key, offset, on)
}

func (db *DB) BitPos(key string, bit int32, start, end int64, haveRange bool) (int64, error) {
	db.recordRead(TypeStrings)
	return db.strings.BitPos(key, bit, start, end, haveRange)
}

// ----------------------------------------------------------------------
// Hashes commands
// ----------------------------------------------------------------------

func (db *DB) HSet(key, field string, value []byte) (int32, error) {
	db.recordWrite(TypeHashes)
	return db.hashes.HSet(key, field, value)
}

func (db *DB) HSetnx(key, field string, value []byte) (int32, error) {
	db.recordWrite(TypeHashes)
	return db.hashes.HSetnx(key, field, value)
}

func (db *DB) HGet(key, field string) ([]byte, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HGet(key, field)
}

func (db *DB) HExists(key, field string) error {
	db.recordRead(TypeHashes)
	return db.hashes.HExists(key, field)
}

func (db *DB) HStrlen(key, field string) (int32, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HStrlen(key, field)
}

func (db *DB) HLen(key string) (int32, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HLen(key)
}

func (db *DB) HMSet(key string, fvs []FieldValue) error {
	db.recordWrite(TypeHashes)
	return db.hashes.HMSet(key, fvs)
}

func (db *DB) HMGet(key string, fields []string) ([][]byte, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HMGet(key, fields)
}

func (db *DB) HGetall(key string) ([]FieldValue, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HGetall(key)
}

func (db *DB) HKeys(key string) ([]string, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HKeys(key)
}

func (db *DB) HVals(key string) ([][]byte, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HVals(key)
}

func (db *DB) HDel(key string, fields []string) (int32, error) {
	db.recordWrite(TypeHashes)
	return db.hashes.HDel(key, fields)
}

func (db *DB) HIncrby(key, field string, delta int64) (int64, error) {
	db.recordWrite(TypeHashes)
	return db.hashes.HIncrby(key, field, delta)
}

func (db *DB) HIncrbyfloat(key, field string, delta float64) ([]byte, error) {
	db.recordWrite(TypeHashes)
	return db.hashes.HIncrbyfloat(key, field, delta)
}

func (db *DB) HScan(key string, cursor int64, pattern string, count int64) ([]FieldValue, int64, error) {
	db.recordRead(TypeHashes)
	return db.hashes.HScan(key, cursor, pattern, count)
}

// ----------------------------------------------------------------------
// Sets commands
// ----------------------------------------------------------------------

func (db *DB) SAdd(key string, members []string) (int32, error) {
	db.recordWrite(TypeSets)
	return db.sets.SAdd(key, members)
}

func (db *DB) SRem(key string, members []string) (int32, error) {
	db.recordWrite(TypeSets)
	return db.sets.SRem(key, members)
}

func (db *DB) SCard(key string) (int32, error) {
	db.recordRead(TypeSets)
	return db.sets.SCard(key)
}

func (db *DB) SIsmember(key, member string) (bool, error) {
	db.recordRead(TypeSets)
	return db.sets.SIsmember(key, member)
}

func (db *DB) SMembers(key string) ([]string, error) {
	db.recordRead(TypeSets)
	return db.sets.SMembers(key)
}

func (db *DB) SPop(key string) (string, error) {
	db.recordWrite(TypeSets)
	return db.sets.SPop(key)
}

func (db *DB) SRandmember(key string, count int32) ([]string, error) {
	db.recordRead(TypeSets)
	return db.sets.SRandmember(key, count)
}

func (db *DB) SMove(src, dst, member string) (int32, error) {
	db.recordWrite(TypeSets)
	return db.sets.SMove(src, dst, member)
}

func (db *DB) SDiff(keys []string) ([]string, error) {
	db.recordRead(TypeSets)
	return db.sets.SDiff(keys)
}

func (db *DB) SDiffstore(dst string, keys []string) (int32, error) {
	db.recordWrite(TypeSets)
	return db.sets.SDiffstore(dst, keys)
}

func (db *DB) SInter(keys []string) ([]string, error) {
	db.recordRead(TypeSets)
	return db.sets.SInter(keys)
}

func (db *DB) SInterstore(dst string, keys []string) (int32, error) {
	db.recordWrite(TypeSets)
	return db.sets.SInterstore(dst, keys)
}

func (db *DB) SUnion(keys []string) ([]string, error) {
	db.recordRead(TypeSets)
	return db.sets.SUnion(keys)
}

func (db *DB) SUnionstore(dst string, keys []string) (int32, error) {
	db.recordWrite(TypeSets)
	return db.sets.SUnionstore(dst, keys)
}

func (db *DB) SScan(key string, cursor int64, pattern string, count int64) ([]string, int64, error) {
	db.recordRead(TypeSets)
	return db.sets.SScan(key, cursor, pattern, count)
}

// ----------------------------------------------------------------------
// Lists commands
// ----------------------------------------------------------------------

func (db *DB) LPush(key string, values [][]byte) (uint64, error) {
	db.recordWrite(TypeLists)
	return db.lists.LPush(key, values)
}

func (db *DB) RPush(key string, values [][]byte) (uint64, error) {
	db.recordWrite(TypeLists)
	return db.lists.RPush(key, values)
}

func (db *DB) LPushx(key string, value []byte) (uint64, error) {
	db.recordWrite(TypeLists)
	return db.lists.LPushx(key, value)
}

func (db *DB) RPushx(key string, value []byte) (uint64, error) {
	db.recordWrite(TypeLists)
	return db.lists.RPushx(key, value)
}

func (db *DB) LPop(key string) ([]byte, error) {
	db.recordWrite(TypeLists)
	return db.lists.LPop(key)
}

func (db *DB) RPop(key string) ([]byte, error) {
	db.recordWrite(TypeLists)
	return db.lists.RPop(key)
}

func (db *DB) LLen(key string) (uint64, error) {
	db.recordRead(TypeLists)
	return db.lists.LLen(key)
}

func (db *DB) LIndex(key string, index int64) ([]byte, error) {
	db.recordRead(TypeLists)
	return db.lists.LIndex(key, index)
}

func (db *DB) LRange(key string, start, stop int64) ([][]byte, error) {
	db.recordRead(TypeLists)
	return db.lists.LRange(key, start, stop)
}

func (db *DB) LSet(key string, index int64, value []byte) error {
	db.recordWrite(TypeLists)
	return db.lists.LSet(key, index, value)
}

func (db *DB) LInsert(key string, before bool, pivot, value []byte) (int64, error) {
	db.recordWrite(TypeLists)
	return db.lists.LInsert(key, before, pivot, value)
}

func (db *DB) LRem(key string, count int64, value []byte) (int64, error) {
	db.recordWrite(TypeLists)
	return db.lists.LRem(key, count, value)
}

func (db *DB) LTrim(key string, start, stop int64) error {
	db.recordWrite(TypeLists)
	return db.lists.LTrim(key, start, stop)
}

func (db *DB) RPoplpush(src, dst string) ([]byte, error) {
	db.recordWrite(TypeLists)
	return db.lists.RPoplpush(src, dst)
}

// ----------------------------------------------------------------------
// ZSets commands
// ----------------------------------------------------------------------

func (db *DB) ZAdd(key string, sms []ScoreMember) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZAdd(key, sms)
}

func (db *DB) ZIncrby(key, member string, delta float64) (float64, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZIncrby(key, member, delta)
}

func (db *DB) ZScore(key, member string) (float64, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZScore(key, member)
}

func (db *DB) ZCard(key string) (int32, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZCard(key)
}

func (db *DB) ZCount(key string, min, max float64, leftClose, rightClose bool) (int32, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZCount(key, min, max, leftClose, rightClose)
}

func (db *DB) ZRange(key string, start, stop int64) ([]ScoreMember, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRange(key, start, stop)
}

func (db *DB) ZRevrange(key string, start, stop int64) ([]ScoreMember, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRevrange(key, start, stop)
}

func (db *DB) ZRangebyscore(key string, min, max float64, leftClose, rightClose bool) ([]ScoreMember, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRangebyscore(key, min, max, leftClose, rightClose)
}

func (db *DB) ZRevrangebyscore(key string, min, max float64, leftClose, rightClose bool) ([]ScoreMember, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRevrangebyscore(key, min, max, leftClose, rightClose)
}

func (db *DB) ZRangebylex(key, min, max string, leftClose, rightClose bool) ([]string, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRangebylex(key, min, max, leftClose, rightClose)
}

func (db *DB) ZLexcount(key, min, max string, leftClose, rightClose bool) (int32, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZLexcount(key, min, max, leftClose, rightClose)
}

func (db *DB) ZRemrangebylex(key, min, max string, leftClose, rightClose bool) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZRemrangebylex(key, min, max, leftClose, rightClose)
}

func (db *DB) ZRank(key, member string) (int32, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRank(key, member)
}

func (db *DB) ZRevrank(key, member string) (int32, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZRevrank(key, member)
}

func (db *DB) ZRem(key string, members []string) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZRem(key, members)
}

func (db *DB) ZRemrangebyrank(key string, start, stop int64) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZRemrangebyrank(key, start, stop)
}

func (db *DB) ZRemrangebyscore(key string, min, max float64, leftClose, rightClose bool) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZRemrangebyscore(key, min, max, leftClose, rightClose)
}

func (db *DB) ZUnionstore(dst string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZUnionstore(dst, keys, weights, agg)
}

func (db *DB) ZInterstore(dst string, keys []string, weights []float64, agg Aggregate) (int32, error) {
	db.recordWrite(TypeZSets)
	return db.zsets.ZInterstore(dst, keys, weights, agg)
}

func (db *DB) ZScan(key string, cursor int64, pattern string, count int64) ([]ScoreMember, int64, error) {
	db.recordRead(TypeZSets)
	return db.zsets.ZScan(key, cursor, pattern, count)
}
