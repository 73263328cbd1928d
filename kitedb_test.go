package kitedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitedb/kitedb/status"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DefaultOptions(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesTypeStores(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(DefaultOptions(), dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	for _, sub := range []string{"strings", "hashes", "sets", "lists", "zsets"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}
}

func TestOpen_MissingWithoutCreate(t *testing.T) {
	opts := DefaultOptions()
	opts.CreateIfMissing = false
	_, err := Open(opts, filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestDB_DelThenSetRevives(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("k", []byte("v")))
	n := db.Del([]string{"k"}, nil)
	assert.Equal(t, int64(1), n)

	_, err := db.Get("k")
	assert.True(t, status.IsNotFound(err))

	require.NoError(t, db.Set("k", []byte("v2")))
	got, err := db.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestDB_ExpirationRevive(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("k", []byte("v")))
	ret := db.Expireat("k", time.Now().Unix()-1, nil)
	assert.Equal(t, int32(1), ret)

	_, err := db.Get("k")
	assert.True(t, status.IsNotFound(err))

	require.NoError(t, db.Set("k", []byte("v2")))
	got, err := db.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestDB_ScanAcrossTypesWithCursor(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.MSet([]KeyValue{
		{Key: "SCAN_K1", Value: []byte("1")},
		{Key: "SCAN_K2", Value: []byte("2")},
		{Key: "SCAN_K3", Value: []byte("3")},
		{Key: "SCAN_K4", Value: []byte("4")},
		{Key: "SCAN_K5", Value: []byte("5")},
	}))

	keys, cursor, err := db.Scan(0, "SCAN*", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"SCAN_K1", "SCAN_K2", "SCAN_K3"}, keys)
	require.NotZero(t, cursor)

	keys, cursor, err = db.Scan(cursor, "SCAN*", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"SCAN_K4", "SCAN_K5"}, keys)
	assert.Zero(t, cursor, "exhausted iteration returns cursor 0")
}

func TestDB_ScanSpansTypes(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("s1", []byte("v")))
	_, err := db.HSet("h1", "f", []byte("v"))
	require.NoError(t, err)
	_, err = db.SAdd("m1", []string{"a"})
	require.NoError(t, err)
	_, err = db.LPush("l1", [][]byte{[]byte("a")})
	require.NoError(t, err)
	_, err = db.ZAdd("z1", []ScoreMember{{Score: 1, Member: "a"}})
	require.NoError(t, err)

	var all []string
	cursor := int64(0)
	for {
		keys, next, err := db.Scan(cursor, "*", 2)
		require.NoError(t, err)
		all = append(all, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.ElementsMatch(t, []string{"s1", "h1", "m1", "l1", "z1"}, all)
}

func TestDB_ScanUnknownCursorRestarts(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Set("a", []byte("1")))

	keys, cursor, err := db.Scan(99999, "*", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
	assert.Zero(t, cursor)
}

func TestDB_CrossTypeExpire(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("K", []byte("v")))
	_, err := db.HSet("K", "f", []byte("w"))
	require.NoError(t, err)

	ts := make(map[DataType]error)
	ret := db.Expire("K", 100, ts)
	assert.Equal(t, int32(2), ret)
	assert.NoError(t, ts[TypeStrings])
	assert.NoError(t, ts[TypeHashes])
	assert.True(t, status.IsNotFound(ts[TypeSets]))
	assert.True(t, status.IsNotFound(ts[TypeLists]))
	assert.True(t, status.IsNotFound(ts[TypeZSets]))
}

func TestDB_TTLPerType(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("k", []byte("v")))
	_, err := db.SAdd("k", []string{"m"})
	require.NoError(t, err)
	ret := db.Expire("k", 100, nil)
	assert.Equal(t, int32(2), ret)

	ttls := db.TTL("k", nil)
	assert.Greater(t, ttls[TypeStrings], int64(0))
	assert.Greater(t, ttls[TypeSets], int64(0))
	assert.Equal(t, int64(-2), ttls[TypeHashes], "absent type reports -2")

	require.NoError(t, db.Set("plain", []byte("v")))
	ttls = db.TTL("plain", nil)
	assert.Equal(t, int64(-1), ttls[TypeStrings], "no expiry reports -1")
}

func TestDB_DelCountsKeysNotTypes(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("both", []byte("v")))
	_, err := db.HSet("both", "f", []byte("w"))
	require.NoError(t, err)
	require.NoError(t, db.Set("only", []byte("v")))

	ts := make(map[DataType]error)
	n := db.Del([]string{"both", "only", "missing"}, ts)
	assert.Equal(t, int64(2), n)
}

func TestDB_Exists(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("a", []byte("v")))
	_, err := db.SAdd("b", []string{"m"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), db.Exists([]string{"a", "b", "c"}))
}

func TestDB_CompactReclaimsExpired(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("gone", []byte("v")))
	db.Expireat("gone", time.Now().Unix()-1, nil)
	require.NoError(t, db.Compact())

	keys, err := db.strings.ScanKeys("*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDB_Stats(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set("k", []byte("v")))
	_, err := db.Get("k")
	require.NoError(t, err)

	stats := db.Stats()
	assert.Equal(t, int64(1), stats.TotalWrites)
	assert.Equal(t, int64(1), stats.TotalReads)
	assert.Equal(t, int64(2), stats.TotalCommands)
}

func TestDB_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(DefaultOptions(), dir)
	require.NoError(t, err)
	require.NoError(t, db.Set("k", []byte("v")))
	_, err = db.HSet("h", "f", []byte("w"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(DefaultOptions(), dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	got, err = db2.HGet("h", "f")
	require.NoError(t, err)
	assert.Equal(t, []byte("w"), got)
}

func TestOptions_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kitedb.json")

	opts := DefaultOptions()
	opts.SyncWrites = true
	opts.WriteBufferSize = 1 << 20
	require.NoError(t, opts.Save(path))

	loaded, err := LoadOptions(path)
	require.NoError(t, err)
	assert.True(t, loaded.SyncWrites)
	assert.Equal(t, 1<<20, loaded.WriteBufferSize)

	fallback, err := LoadOptions(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().CompactionIntervalSeconds, fallback.CompactionIntervalSeconds)
}
