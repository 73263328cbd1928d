package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

func testOptions() kv.Options {
	return kv.Options{CreateIfMissing: true}
}

func openTestStrings(t *testing.T) *Strings {
	t.Helper()
	s, err := OpenStrings(t.TempDir(), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStrings_SetGet(t *testing.T) {
	s := openTestStrings(t)

	require.NoError(t, s.Set("k", []byte("v")))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = s.Get("missing")
	assert.True(t, status.IsNotFound(err))
}

func TestStrings_SetexValidation(t *testing.T) {
	s := openTestStrings(t)

	assert.True(t, status.IsInvalidArgument(s.Setex("k", []byte("v"), 0)))
	assert.True(t, status.IsInvalidArgument(s.Setex("k", []byte("v"), -1)))

	require.NoError(t, s.Setex("k", []byte("v"), 100))
	ttl, err := s.TTL("k")
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(90))
}

func TestStrings_ExpiredReadsNotFoundAndRevives(t *testing.T) {
	s := openTestStrings(t)

	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Expireat("k", time.Now().Unix()-1))

	_, err := s.Get("k")
	assert.True(t, status.IsNotFound(err))

	require.NoError(t, s.Set("k", []byte("v2")))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStrings_Setnx(t *testing.T) {
	s := openTestStrings(t)

	n, err := s.Setnx("k", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	n, err = s.Setnx("k", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)

	got, _ := s.Get("k")
	assert.Equal(t, []byte("a"), got)
}

func TestStrings_SetvxDelvx(t *testing.T) {
	s := openTestStrings(t)

	n, err := s.Setvx("k", []byte("old"), []byte("new"), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), n, "absent key")

	require.NoError(t, s.Set("k", []byte("old")))
	n, err = s.Setvx("k", []byte("wrong"), []byte("new"), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), n, "mismatch")

	n, err = s.Setvx("k", []byte("old"), []byte("new"), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	got, _ := s.Get("k")
	assert.Equal(t, []byte("new"), got)

	n, err = s.Delvx("k", []byte("other"))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), n)

	n, err = s.Delvx("k", []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	_, err = s.Get("k")
	assert.True(t, status.IsNotFound(err))
}

func TestStrings_MSetMSetnxMGet(t *testing.T) {
	s := openTestStrings(t)

	require.NoError(t, s.MSet([]KeyValue{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}))

	n, err := s.MSetnx([]KeyValue{
		{Key: "b", Value: []byte("x")},
		{Key: "c", Value: []byte("3")},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), n, "existing target forbids the whole batch")
	_, err = s.Get("c")
	assert.True(t, status.IsNotFound(err))

	n, err = s.MSetnx([]KeyValue{{Key: "c", Value: []byte("3")}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	values, err := s.MGet([]string{"a", "missing", "c"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("1"), values[0])
	assert.Nil(t, values[1])
	assert.Equal(t, []byte("3"), values[2])
}

func TestStrings_AppendPreservesTTL(t *testing.T) {
	s := openTestStrings(t)

	n, err := s.Append("k", []byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)

	require.NoError(t, s.Setex("k", []byte("foo"), 100))
	n, err = s.Append("k", []byte("bar"))
	require.NoError(t, err)
	assert.Equal(t, int32(6), n)

	ttl, err := s.TTL("k")
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))
}

func TestStrings_IncrbyDecrby(t *testing.T) {
	s := openTestStrings(t)

	n, err := s.Incrby("n", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = s.Decrby("n", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.Set("s", []byte("abc")))
	_, err = s.Incrby("s", 1)
	assert.True(t, status.IsCorruption(err))

	require.NoError(t, s.Set("big", []byte("9223372036854775807")))
	_, err = s.Incrby("big", 1)
	assert.True(t, status.IsInvalidArgument(err))
}

func TestStrings_Incrbyfloat(t *testing.T) {
	s := openTestStrings(t)

	out, err := s.Incrbyfloat("f", 1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", string(out))

	out, err = s.Incrbyfloat("f", 2.25)
	require.NoError(t, err)
	assert.Equal(t, "3.75", string(out))

	require.NoError(t, s.Set("s", []byte("abc")))
	_, err = s.Incrbyfloat("s", 1)
	assert.True(t, status.IsCorruption(err))
}

func TestStrings_GetrangeStrlen(t *testing.T) {
	s := openTestStrings(t)
	require.NoError(t, s.Set("k", []byte("This is a string")))

	got, err := s.Getrange("k", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("This"), got)

	got, err = s.Getrange("k", -3, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("ing"), got)

	got, err = s.Getrange("k", 100, 200)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := s.Strlen("k")
	require.NoError(t, err)
	assert.Equal(t, int32(16), n)

	n, err = s.Strlen("missing")
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
}

func TestStrings_Setrange(t *testing.T) {
	s := openTestStrings(t)
	require.NoError(t, s.Set("k", []byte("Hello World")))

	n, err := s.Setrange("k", 6, []byte("Redis"))
	require.NoError(t, err)
	assert.Equal(t, int32(11), n)
	got, _ := s.Get("k")
	assert.Equal(t, []byte("Hello Redis"), got)

	n, err = s.Setrange("pad", 5, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int32(6), n)
	got, _ = s.Get("pad")
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 'x'}, got)

	_, err = s.Setrange("k", -1, []byte("x"))
	assert.True(t, status.IsInvalidArgument(err))
}

func TestStrings_Bits(t *testing.T) {
	s := openTestStrings(t)
	require.NoError(t, s.Set("k", []byte("foobar")))

	n, err := s.BitCount("k", 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int32(26), n)

	n, err = s.BitCount("k", 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int32(4), n)

	n, err = s.BitCount("k", 1, 1, true)
	require.NoError(t, err)
	assert.Equal(t, int32(6), n)

	n, err = s.BitCount("k", -2, -1, true)
	require.NoError(t, err)
	assert.Equal(t, int32(7), n)

	old, err := s.SetBit("bits", 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(0), old)
	bit, err := s.GetBit("bits", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), bit)
	bit, err = s.GetBit("bits", 100)
	require.NoError(t, err)
	assert.Equal(t, int32(0), bit)

	_, err = s.GetBit("bits", -1)
	assert.True(t, status.IsInvalidArgument(err))
}

func TestStrings_BitOp(t *testing.T) {
	s := openTestStrings(t)
	require.NoError(t, s.Set("a", []byte{0b11110000}))
	require.NoError(t, s.Set("b", []byte{0b10100101, 0xFF}))

	n, err := s.BitOp(BitOpAnd, "dest", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "result length is the longest source")
	got, _ := s.Get("dest")
	assert.Equal(t, []byte{0b10100000, 0}, got)

	_, err = s.BitOp(BitOpNot, "dest", []string{"a", "b"})
	assert.True(t, status.IsInvalidArgument(err))

	n, err = s.BitOp(BitOpNot, "dest", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, _ = s.Get("dest")
	assert.Equal(t, []byte{0b00001111}, got)
}

func TestStrings_BitPos(t *testing.T) {
	s := openTestStrings(t)
	require.NoError(t, s.Set("k", []byte{0x00, 0x0F}))

	pos, err := s.BitPos("k", 1, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)

	pos, err = s.BitPos("k", 0, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	require.NoError(t, s.Set("ones", []byte{0xFF}))
	pos, err = s.BitPos("ones", 0, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos, "implicit range and bit 0 report one past the end")

	pos, err = s.BitPos("ones", 0, 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pos, "explicit range reports a miss")
}

func TestStrings_PersistAndTTL(t *testing.T) {
	s := openTestStrings(t)

	require.NoError(t, s.Set("k", []byte("v")))
	ttl, err := s.TTL("k")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)

	err = s.Persist("k")
	assert.True(t, status.IsNotFound(err), "no timeout to persist")

	require.NoError(t, s.Expire("k", 100))
	require.NoError(t, s.Persist("k"))
	ttl, err = s.TTL("k")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)
}

func TestStrings_GetSet(t *testing.T) {
	s := openTestStrings(t)

	old, err := s.GetSet("k", []byte("1"))
	require.NoError(t, err)
	assert.Nil(t, old)

	old, err = s.GetSet("k", []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), old)
}

func TestStrings_IncrbyMinInt64Overflow(t *testing.T) {
	s := openTestStrings(t)
	_, err := s.Decrby("k", math.MinInt64)
	assert.True(t, status.IsInvalidArgument(err))
}
