// Package codec implements the byte layouts shared by every type
// handler: inline string values, collection meta values, list meta
// values and the sub-record keys addressed by (user key, version).
//
// All integers are fixed-width little-endian except list node indices,
// which are big-endian so that lexicographic order on the encoded key
// matches numeric order on the index.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/kitedb/kitedb/status"
)

const (
	versionSize   = 4
	timestampSize = 4
	// collectionMetaSuffix is version+timestamp, appended to every meta payload.
	collectionMetaSuffix = versionSize + timestampSize
)

// UpdateVersion derives a fresh version from the previous one and the
// current wall clock. Versions never regress and never collide for a
// key whose operations are serialized by its record lock.
func UpdateVersion(old uint32, nowSeconds int64) uint32 {
	if old >= uint32(nowSeconds) {
		return old + 1
	}
	return uint32(nowSeconds)
}

// ----------------------------------------------------------------------
// Strings
// ----------------------------------------------------------------------

// StringsValue is the parsed form of a strings record: the raw user
// value followed by a 4-byte absolute expiration timestamp (0 = none).
type StringsValue struct {
	Value     []byte
	Timestamp uint32
}

// EncodeStringsValue appends the timestamp suffix to value.
func EncodeStringsValue(value []byte, timestamp uint32) []byte {
	buf := make([]byte, len(value)+timestampSize)
	copy(buf, value)
	binary.LittleEndian.PutUint32(buf[len(value):], timestamp)
	return buf
}

// DecodeStringsValue parses a strings record. The returned Value
// borrows from raw.
func DecodeStringsValue(raw []byte) (StringsValue, error) {
	if len(raw) < timestampSize {
		return StringsValue{}, status.Corruption("strings value too short")
	}
	return StringsValue{
		Value:     raw[:len(raw)-timestampSize],
		Timestamp: binary.LittleEndian.Uint32(raw[len(raw)-timestampSize:]),
	}, nil
}

// IsStale reports whether the record has expired as of nowSeconds.
func (v StringsValue) IsStale(nowSeconds int64) bool {
	return v.Timestamp != 0 && int64(v.Timestamp) <= nowSeconds
}

// ----------------------------------------------------------------------
// Collection meta (hashes, sets, zsets)
// ----------------------------------------------------------------------

// CollectionMeta is the meta record of the count-carrying collection
// types: count(u32) || version(u32) || timestamp(u32).
type CollectionMeta struct {
	Count     uint32
	Version   uint32
	Timestamp uint32
}

// EncodeCollectionMeta serializes m.
func EncodeCollectionMeta(m CollectionMeta) []byte {
	buf := make([]byte, 4+collectionMetaSuffix)
	binary.LittleEndian.PutUint32(buf[0:4], m.Count)
	binary.LittleEndian.PutUint32(buf[4:8], m.Version)
	binary.LittleEndian.PutUint32(buf[8:12], m.Timestamp)
	return buf
}

// DecodeCollectionMeta parses a collection meta record.
func DecodeCollectionMeta(raw []byte) (CollectionMeta, error) {
	if len(raw) < 4+collectionMetaSuffix {
		return CollectionMeta{}, status.Corruption("collection meta too short")
	}
	return CollectionMeta{
		Count:     binary.LittleEndian.Uint32(raw[0:4]),
		Version:   binary.LittleEndian.Uint32(raw[4:8]),
		Timestamp: binary.LittleEndian.Uint32(raw[8:12]),
	}, nil
}

// IsStale reports whether the meta has expired as of nowSeconds.
func (m CollectionMeta) IsStale(nowSeconds int64) bool {
	return m.Timestamp != 0 && int64(m.Timestamp) <= nowSeconds
}

// Initialize resets the meta for a fresh create or a revive after
// staleness: count 0, no expiry, bumped version.
func (m CollectionMeta) Initialize(nowSeconds int64) CollectionMeta {
	return CollectionMeta{
		Count:     0,
		Version:   UpdateVersion(m.Version, nowSeconds),
		Timestamp: 0,
	}
}

// ----------------------------------------------------------------------
// Lists meta
// ----------------------------------------------------------------------

// Fresh lists start with their index bounds adjacent in the middle of
// the u64 space so pushes in either direction cannot realistically
// overflow. The usable range (left, right) is exclusive on both ends:
// an empty list has right == left+1 and count == right-left-1 == 0.
const (
	ListsInitialLeftIndex  = uint64(1)<<63 - 1
	ListsInitialRightIndex = uint64(1) << 63
)

// ListsMeta is the list meta record:
// count(u64) || left_index(u64) || right_index(u64) || version(u32) || timestamp(u32).
// The usable node range is (LeftIndex, RightIndex), exclusive on both
// ends.
type ListsMeta struct {
	Count      uint64
	LeftIndex  uint64
	RightIndex uint64
	Version    uint32
	Timestamp  uint32
}

const listsMetaSize = 8*3 + collectionMetaSuffix

// EncodeListsMeta serializes m.
func EncodeListsMeta(m ListsMeta) []byte {
	buf := make([]byte, listsMetaSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.Count)
	binary.LittleEndian.PutUint64(buf[8:16], m.LeftIndex)
	binary.LittleEndian.PutUint64(buf[16:24], m.RightIndex)
	binary.LittleEndian.PutUint32(buf[24:28], m.Version)
	binary.LittleEndian.PutUint32(buf[28:32], m.Timestamp)
	return buf
}

// DecodeListsMeta parses a list meta record.
func DecodeListsMeta(raw []byte) (ListsMeta, error) {
	if len(raw) < listsMetaSize {
		return ListsMeta{}, status.Corruption("lists meta too short")
	}
	return ListsMeta{
		Count:      binary.LittleEndian.Uint64(raw[0:8]),
		LeftIndex:  binary.LittleEndian.Uint64(raw[8:16]),
		RightIndex: binary.LittleEndian.Uint64(raw[16:24]),
		Version:    binary.LittleEndian.Uint32(raw[24:28]),
		Timestamp:  binary.LittleEndian.Uint32(raw[28:32]),
	}, nil
}

// IsStale reports whether the meta has expired as of nowSeconds.
func (m ListsMeta) IsStale(nowSeconds int64) bool {
	return m.Timestamp != 0 && int64(m.Timestamp) <= nowSeconds
}

// Initialize resets the list meta for a fresh create or revive: empty,
// indices back at the middle of the space, bumped version.
func (m ListsMeta) Initialize(nowSeconds int64) ListsMeta {
	return ListsMeta{
		Count:      0,
		LeftIndex:  ListsInitialLeftIndex,
		RightIndex: ListsInitialRightIndex,
		Version:    UpdateVersion(m.Version, nowSeconds),
		Timestamp:  0,
	}
}

// ----------------------------------------------------------------------
// Sub-record keys
// ----------------------------------------------------------------------

// EncodeDataKey builds the common sub-record key shape used by hash
// fields, set members and zset data records:
// len(user_key)(u32) || user_key || version(u32) || suffix.
func EncodeDataKey(userKey []byte, version uint32, suffix []byte) []byte {
	buf := make([]byte, 4+len(userKey)+versionSize+len(suffix))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(userKey)))
	n := 4 + copy(buf[4:], userKey)
	binary.LittleEndian.PutUint32(buf[n:n+4], version)
	copy(buf[n+4:], suffix)
	return buf
}

// DataKeyPrefix is EncodeDataKey with an empty suffix: the prefix every
// live sub-record of (userKey, version) starts with.
func DataKeyPrefix(userKey []byte, version uint32) []byte {
	return EncodeDataKey(userKey, version, nil)
}

// DecodeDataKey splits a sub-record key back into its components. The
// returned slices borrow from raw.
func DecodeDataKey(raw []byte) (userKey []byte, version uint32, suffix []byte, err error) {
	if len(raw) < 4 {
		return nil, 0, nil, status.Corruption("data key too short")
	}
	keyLen := int(binary.LittleEndian.Uint32(raw[0:4]))
	if len(raw) < 4+keyLen+versionSize {
		return nil, 0, nil, status.Corruption("data key truncated")
	}
	userKey = raw[4 : 4+keyLen]
	version = binary.LittleEndian.Uint32(raw[4+keyLen : 4+keyLen+4])
	suffix = raw[4+keyLen+4:]
	return userKey, version, suffix, nil
}

// EncodeListsDataKey builds a list node key. The index is big-endian so
// bytewise order on the suffix matches numeric order on the index.
func EncodeListsDataKey(userKey []byte, version uint32, index uint64) []byte {
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], index)
	return EncodeDataKey(userKey, version, suffix[:])
}

// DecodeListsDataKey parses a list node key.
func DecodeListsDataKey(raw []byte) (userKey []byte, version uint32, index uint64, err error) {
	userKey, version, suffix, err := DecodeDataKey(raw)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(suffix) != 8 {
		return nil, 0, 0, status.Corruption("lists data key has no index")
	}
	return userKey, version, binary.BigEndian.Uint64(suffix), nil
}

// EncodeScore converts a score to its stored 8-byte form: the IEEE-754
// bit pattern, little-endian.
func EncodeScore(score float64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(score))
	return buf[:]
}

// DecodeScore reverses EncodeScore.
func DecodeScore(raw []byte) (float64, error) {
	if len(raw) != 8 {
		return 0, status.Corruption("score is not 8 bytes")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
}

// EncodeZSetsScoreKey builds a zset score-CF key:
// len(user_key)(u32) || user_key || version(u32) || score(8) || member.
func EncodeZSetsScoreKey(userKey []byte, version uint32, score float64, member []byte) []byte {
	suffix := make([]byte, 8+len(member))
	copy(suffix, EncodeScore(score))
	copy(suffix[8:], member)
	return EncodeDataKey(userKey, version, suffix)
}

// DecodeZSetsScoreKey parses a zset score-CF key.
func DecodeZSetsScoreKey(raw []byte) (userKey []byte, version uint32, score float64, member []byte, err error) {
	userKey, version, suffix, err := DecodeDataKey(raw)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	if len(suffix) < 8 {
		return nil, 0, 0, nil, status.Corruption("zsets score key has no score")
	}
	score, err = DecodeScore(suffix[:8])
	if err != nil {
		return nil, 0, 0, nil, err
	}
	return userKey, version, score, suffix[8:], nil
}
