package engine

import (
	"bytes"
	"math"
	"math/bits"
	"strconv"

	"github.com/kitedb/kitedb/internal/codec"
	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

// Strings stores each user key as one record in the default column
// family: the raw value with a trailing 4-byte expiration timestamp.
type Strings struct {
	*base
}

// OpenStrings opens the strings store under path.
func OpenStrings(path string, opts kv.Options) (*Strings, error) {
	descs := []kv.ColumnFamilyDescriptor{
		{Name: kv.DefaultColumnFamilyName, Options: kv.ColumnFamilyOptions{
			CompactionFilter: stringsFilter{},
		}},
	}
	b, err := openBase(path, opts, descs)
	if err != nil {
		return nil, err
	}
	return &Strings{base: b}, nil
}

// getLive fetches and decodes a live value; absent and stale records
// both come back NotFound.
func (s *Strings) getLive(ro kv.ReadOptions, key string) (codec.StringsValue, error) {
	raw, err := s.db.Get(ro, s.metaCF(), []byte(key))
	if err != nil {
		if err == kv.ErrNotFound {
			return codec.StringsValue{}, status.NotFound("")
		}
		return codec.StringsValue{}, ioWrap("get", err)
	}
	v, err := codec.DecodeStringsValue(raw)
	if err != nil {
		return codec.StringsValue{}, err
	}
	if v.IsStale(nowSeconds()) {
		return codec.StringsValue{}, status.NotFound("Stale")
	}
	return v, nil
}

func (s *Strings) put(key string, value []byte, timestamp uint32) error {
	return ioWrap("put", s.db.Put(s.wopts, s.metaCF(), []byte(key), codec.EncodeStringsValue(value, timestamp)))
}

// Set stores value without expiration.
func (s *Strings) Set(key string, value []byte) error {
	unlock := s.lockKey([]byte(key))
	defer unlock()
	return s.put(key, value, 0)
}

// Get returns the live value.
func (s *Strings) Get(key string) ([]byte, error) {
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.Value...), nil
}

// GetSet stores value and returns the previous live value (nil when
// there was none).
func (s *Strings) GetSet(key string, value []byte) ([]byte, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	var old []byte
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err == nil {
		old = append([]byte(nil), v.Value...)
	} else if !status.IsNotFound(err) {
		return nil, err
	}
	if err := s.put(key, value, 0); err != nil {
		return nil, err
	}
	return old, nil
}

// Setex stores value with a relative TTL; ttl must be positive.
func (s *Strings) Setex(key string, value []byte, ttl int64) error {
	if ttl <= 0 {
		return status.InvalidArgument("invalid expire time")
	}
	unlock := s.lockKey([]byte(key))
	defer unlock()
	return s.put(key, value, uint32(nowSeconds()+ttl))
}

// Setnx stores value only when no live value exists. Returns 1 when the
// value was written.
func (s *Strings) Setnx(key string, value []byte) (int32, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	_, err := s.getLive(kv.ReadOptions{}, key)
	if err == nil {
		return 0, nil
	}
	if !status.IsNotFound(err) {
		return 0, err
	}
	if err := s.put(key, value, 0); err != nil {
		return 0, err
	}
	return 1, nil
}

// Setvx compares the live value against expected and swaps in value on
// a match. Returns 1 on match-and-set, 0 when absent or stale, -1 on a
// mismatch. A positive ttl re-arms expiration; zero clears it.
func (s *Strings) Setvx(key string, expected, value []byte, ttl int64) (int32, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if !bytes.Equal(v.Value, expected) {
		return -1, nil
	}
	timestamp := uint32(0)
	if ttl > 0 {
		timestamp = uint32(nowSeconds() + ttl)
	}
	if err := s.put(key, value, timestamp); err != nil {
		return 0, err
	}
	return 1, nil
}

// Delvx deletes the key only when the live value equals expected. Same
// return convention as Setvx.
func (s *Strings) Delvx(key string, expected []byte) (int32, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if !bytes.Equal(v.Value, expected) {
		return -1, nil
	}
	if err := s.db.Delete(s.wopts, s.metaCF(), []byte(key)); err != nil {
		return 0, ioWrap("delete", err)
	}
	return 1, nil
}

// KeyValue pairs a key with a value for the batched string commands.
type KeyValue struct {
	Key   string
	Value []byte
}

// MSet stores every pair in one atomic batch.
func (s *Strings) MSet(kvs []KeyValue) error {
	keys := make([]string, len(kvs))
	for i, kvp := range kvs {
		keys[i] = kvp.Key
	}
	unlock := s.lockKeys(keys)
	defer unlock()

	batch := s.db.NewWriteBatch()
	for _, kvp := range kvs {
		batch.Put(s.metaCF(), []byte(kvp.Key), codec.EncodeStringsValue(kvp.Value, 0))
	}
	return ioWrap("mset", s.db.Write(s.wopts, batch))
}

// MSetnx stores every pair atomically unless any target already has a
// live value, in which case nothing is written and 0 is returned.
func (s *Strings) MSetnx(kvs []KeyValue) (int32, error) {
	keys := make([]string, len(kvs))
	for i, kvp := range kvs {
		keys[i] = kvp.Key
	}
	unlock := s.lockKeys(keys)
	defer unlock()

	for _, kvp := range kvs {
		_, err := s.getLive(kv.ReadOptions{}, kvp.Key)
		if err == nil {
			return 0, nil
		}
		if !status.IsNotFound(err) {
			return 0, err
		}
	}
	batch := s.db.NewWriteBatch()
	for _, kvp := range kvs {
		batch.Put(s.metaCF(), []byte(kvp.Key), codec.EncodeStringsValue(kvp.Value, 0))
	}
	if err := s.db.Write(s.wopts, batch); err != nil {
		return 0, ioWrap("msetnx", err)
	}
	return 1, nil
}

// MGet looks up every key under one snapshot; absent or stale keys
// yield nil entries.
func (s *Strings) MGet(keys []string) ([][]byte, error) {
	guard := s.newSnapshotGuard()
	defer guard.Release()

	values := make([][]byte, len(keys))
	for i, key := range keys {
		v, err := s.getLive(guard.ReadOptions(), key)
		if err != nil {
			if status.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		values[i] = append([]byte(nil), v.Value...)
	}
	return values, nil
}

// Append concatenates value onto the live value, preserving its TTL;
// absent or stale keys behave like Set. Returns the new length.
func (s *Strings) Append(key string, value []byte) (int32, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if !status.IsNotFound(err) {
			return 0, err
		}
		if err := s.put(key, value, 0); err != nil {
			return 0, err
		}
		return int32(len(value)), nil
	}
	merged := make([]byte, 0, len(v.Value)+len(value))
	merged = append(merged, v.Value...)
	merged = append(merged, value...)
	if err := s.put(key, merged, v.Timestamp); err != nil {
		return 0, err
	}
	return int32(len(merged)), nil
}

// Setrange overwrites len(value) bytes starting at offset, growing the
// value with zero bytes as needed. Returns the new length.
func (s *Strings) Setrange(key string, offset int64, value []byte) (int32, error) {
	if offset < 0 {
		return 0, status.InvalidArgument("offset < 0")
	}
	unlock := s.lockKey([]byte(key))
	defer unlock()

	var old []byte
	var timestamp uint32
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err == nil {
		old, timestamp = v.Value, v.Timestamp
	} else if !status.IsNotFound(err) {
		return 0, err
	}
	needed := int(offset) + len(value)
	if needed < len(old) {
		needed = len(old)
	}
	merged := make([]byte, needed)
	copy(merged, old)
	copy(merged[offset:], value)
	if err := s.put(key, merged, timestamp); err != nil {
		return 0, err
	}
	return int32(len(merged)), nil
}

// Getrange returns the substring [start, end] with negative-from-end
// semantics; out-of-range returns empty.
func (s *Strings) Getrange(key string, start, end int64) ([]byte, error) {
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		return nil, err
	}
	n := int64(len(v.Value))
	if start < 0 {
		start = n + start
	}
	if end < 0 {
		end = n + end
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end || start >= n {
		return []byte{}, nil
	}
	return append([]byte(nil), v.Value[start:end+1]...), nil
}

// Strlen returns the live value's length; 0 for absent keys.
func (s *Strings) Strlen(key string) (int32, error) {
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return int32(len(v.Value)), nil
}

// Incrby adds delta to the integer stored at key, creating it at delta
// when absent. Non-integer values are Corruption; overflow is
// InvalidArgument.
func (s *Strings) Incrby(key string, delta int64) (int64, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if !status.IsNotFound(err) {
			return 0, err
		}
		if err := s.put(key, []byte(strconv.FormatInt(delta, 10)), 0); err != nil {
			return 0, err
		}
		return delta, nil
	}
	old, parseErr := strconv.ParseInt(string(v.Value), 10, 64)
	if parseErr != nil {
		return 0, status.Corruption("value is not an integer")
	}
	if (delta > 0 && old > math.MaxInt64-delta) || (delta < 0 && old < math.MinInt64-delta) {
		return 0, status.InvalidArgument("increment or decrement would overflow")
	}
	result := old + delta
	if err := s.put(key, []byte(strconv.FormatInt(result, 10)), v.Timestamp); err != nil {
		return 0, err
	}
	return result, nil
}

// Decrby subtracts delta; same rules as Incrby.
func (s *Strings) Decrby(key string, delta int64) (int64, error) {
	if delta == math.MinInt64 {
		return 0, status.InvalidArgument("increment or decrement would overflow")
	}
	return s.Incrby(key, -delta)
}

// Incrbyfloat adds a float delta. Non-float values are Corruption;
// non-finite results are InvalidArgument.
func (s *Strings) Incrbyfloat(key string, delta float64) ([]byte, error) {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	old := 0.0
	timestamp := uint32(0)
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err == nil {
		old, err = strconv.ParseFloat(string(v.Value), 64)
		if err != nil {
			return nil, status.Corruption("value is not a valid float")
		}
		timestamp = v.Timestamp
	} else if !status.IsNotFound(err) {
		return nil, err
	}
	result := old + delta
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, status.InvalidArgument("increment would produce NaN or Infinity")
	}
	out := []byte(strconv.FormatFloat(result, 'f', -1, 64))
	if err := s.put(key, out, timestamp); err != nil {
		return nil, err
	}
	return out, nil
}

func clampRange(n, start, end int64) (int64, int64) {
	if start < 0 {
		start = n + start
	}
	if end < 0 {
		end = n + end
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	return start, end
}

// BitCount counts set bits, optionally within the byte range
// [start, end] with negative-from-end semantics.
func (s *Strings) BitCount(key string, start, end int64, haveRange bool) (int32, error) {
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	value := v.Value
	if haveRange {
		start, end = clampRange(int64(len(value)), start, end)
		if start > end || len(value) == 0 {
			return 0, nil
		}
		value = value[start : end+1]
	}
	var n int32
	for _, b := range value {
		n += int32(bits.OnesCount8(b))
	}
	return n, nil
}

// BitOpKind selects the BitOp operator.
type BitOpKind int

const (
	BitOpAnd BitOpKind = iota
	BitOpOr
	BitOpXor
	BitOpNot
)

// BitOp applies op across the source values (zero-padding shorter ones)
// and stores the result at dest with no expiration. Returns the result
// length. NOT takes exactly one source.
func (s *Strings) BitOp(op BitOpKind, dest string, srcs []string) (int64, error) {
	if op == BitOpNot && len(srcs) != 1 {
		return 0, status.InvalidArgument("BITOP NOT must be called with a single source key")
	}
	if len(srcs) == 0 {
		return 0, status.InvalidArgument("BITOP requires at least one source key")
	}

	unlock := s.lockKey([]byte(dest))
	defer unlock()

	guard := s.newSnapshotGuard()
	values := make([][]byte, len(srcs))
	maxLen := 0
	for i, src := range srcs {
		v, err := s.getLive(guard.ReadOptions(), src)
		if err != nil {
			if !status.IsNotFound(err) {
				guard.Release()
				return 0, err
			}
			values[i] = nil
		} else {
			values[i] = v.Value
		}
		if len(values[i]) > maxLen {
			maxLen = len(values[i])
		}
	}
	guard.Release()

	result := make([]byte, maxLen)
	if op == BitOpNot {
		for i := range result {
			result[i] = ^byteAt(values[0], i)
		}
	} else {
		for i := range result {
			acc := byteAt(values[0], i)
			for _, v := range values[1:] {
				switch op {
				case BitOpAnd:
					acc &= byteAt(v, i)
				case BitOpOr:
					acc |= byteAt(v, i)
				case BitOpXor:
					acc ^= byteAt(v, i)
				}
			}
			result[i] = acc
		}
	}
	if err := s.put(dest, result, 0); err != nil {
		return 0, err
	}
	return int64(len(result)), nil
}

func byteAt(v []byte, i int) byte {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// GetBit returns the bit at offset; bits beyond the value are 0.
func (s *Strings) GetBit(key string, offset int64) (int32, error) {
	if offset < 0 {
		return 0, status.InvalidArgument("offset < 0")
	}
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	byteIdx := offset >> 3
	if byteIdx >= int64(len(v.Value)) {
		return 0, nil
	}
	if v.Value[byteIdx]&(1<<uint(7-offset&7)) != 0 {
		return 1, nil
	}
	return 0, nil
}

// SetBit sets or clears the bit at offset, growing the value with zero
// bytes as needed. Returns the previous bit.
func (s *Strings) SetBit(key string, offset int64, on int32) (int32, error) {
	if offset < 0 {
		return 0, status.InvalidArgument("offset < 0")
	}
	if on != 0 && on != 1 {
		return 0, status.InvalidArgument("bit must be 0 or 1")
	}
	unlock := s.lockKey([]byte(key))
	defer unlock()

	var value []byte
	var timestamp uint32
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err == nil {
		value, timestamp = append([]byte(nil), v.Value...), v.Timestamp
	} else if !status.IsNotFound(err) {
		return 0, err
	}
	byteIdx := int(offset >> 3)
	for len(value) <= byteIdx {
		value = append(value, 0)
	}
	mask := byte(1) << uint(7-offset&7)
	old := int32(0)
	if value[byteIdx]&mask != 0 {
		old = 1
	}
	if on == 1 {
		value[byteIdx] |= mask
	} else {
		value[byteIdx] &^= mask
	}
	if err := s.put(key, value, timestamp); err != nil {
		return 0, err
	}
	return old, nil
}

// BitPos returns the position of the first bit equal to bit within the
// byte range. With an implicit range and bit == 0 an all-ones value
// reports the first bit past the end; otherwise a miss is -1.
func (s *Strings) BitPos(key string, bit int32, start, end int64, haveRange bool) (int64, error) {
	if bit != 0 && bit != 1 {
		return 0, status.InvalidArgument("bit must be 0 or 1")
	}
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		if status.IsNotFound(err) {
			if bit == 0 {
				return 0, nil
			}
			return -1, nil
		}
		return 0, err
	}
	value := v.Value
	lo, hi := int64(0), int64(len(value))-1
	if haveRange {
		lo, hi = clampRange(int64(len(value)), start, end)
		if lo > hi || len(value) == 0 {
			return -1, nil
		}
	}
	for i := lo; i <= hi && i >= 0 && i < int64(len(value)); i++ {
		b := value[i]
		for j := 0; j < 8; j++ {
			cur := int32((b >> uint(7-j)) & 1)
			if cur == bit {
				return i*8 + int64(j), nil
			}
		}
	}
	if bit == 0 && !haveRange {
		return int64(len(value)) * 8, nil
	}
	return -1, nil
}

// Expire sets a relative TTL on a live value; non-positive TTL deletes
// the key.
func (s *Strings) Expire(key string, ttl int64) error {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return ioWrap("delete", s.db.Delete(s.wopts, s.metaCF(), []byte(key)))
	}
	return s.put(key, v.Value, uint32(nowSeconds()+ttl))
}

// Expireat sets an absolute expiration timestamp; a non-positive
// timestamp deletes the key.
func (s *Strings) Expireat(key string, timestamp int64) error {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if timestamp <= 0 {
		return ioWrap("delete", s.db.Delete(s.wopts, s.metaCF(), []byte(key)))
	}
	return s.put(key, v.Value, uint32(timestamp))
}

// Persist clears the expiration timestamp.
func (s *Strings) Persist(key string) error {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		return err
	}
	if v.Timestamp == 0 {
		return status.NotFound("no associated timeout")
	}
	return s.put(key, v.Value, 0)
}

// TTL returns the remaining seconds, or -1 when there is no expiry.
func (s *Strings) TTL(key string) (int64, error) {
	v, err := s.getLive(kv.ReadOptions{}, key)
	if err != nil {
		return 0, err
	}
	if v.Timestamp == 0 {
		return -1, nil
	}
	return int64(v.Timestamp) - nowSeconds(), nil
}

// Del removes the key; NotFound when there is no live value.
func (s *Strings) Del(key string) error {
	unlock := s.lockKey([]byte(key))
	defer unlock()

	if _, err := s.getLive(kv.ReadOptions{}, key); err != nil {
		return err
	}
	return ioWrap("delete", s.db.Delete(s.wopts, s.metaCF(), []byte(key)))
}

// ScanRange supports the facade's cross-type Scan.
func (s *Strings) ScanRange(startKey, pattern string, count int64) ([]string, int64, string, bool, error) {
	return s.scanRange(stringsValueLive, startKey, pattern, count)
}

// ScanKeys lists live keys matching pattern.
func (s *Strings) ScanKeys(pattern string) ([]string, error) {
	return s.scanKeys(stringsValueLive, pattern)
}

// ScanKeyNum counts live keys.
func (s *Strings) ScanKeyNum() (uint64, error) {
	return s.scanKeyNum(stringsValueLive)
}
