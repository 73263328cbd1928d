package memkv

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitedb/kitedb/internal/kv"
)

func defaultDescs() []kv.ColumnFamilyDescriptor {
	return []kv.ColumnFamilyDescriptor{
		{Name: kv.DefaultColumnFamilyName},
		{Name: "data"},
	}
}

func openTestDB(t *testing.T, path string) (*DB, []kv.ColumnFamilyHandle) {
	t.Helper()
	db, handles, err := Open(path, kv.Options{CreateIfMissing: true}, defaultDescs())
	require.NoError(t, err)
	return db, handles
}

func TestOpen_RequiresDefaultFirst(t *testing.T) {
	_, _, err := Open(t.TempDir(), kv.Options{CreateIfMissing: true},
		[]kv.ColumnFamilyDescriptor{{Name: "data"}})
	assert.Error(t, err)
}

func TestOpen_MissingWithoutCreate(t *testing.T) {
	_, _, err := Open(t.TempDir()+"/nope", kv.Options{}, defaultDescs())
	assert.Error(t, err)
}

func TestPutGetDelete(t *testing.T) {
	db, handles := openTestDB(t, t.TempDir())
	defer db.Close()

	require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], []byte("k"), []byte("v")))
	got, err := db.Get(kv.ReadOptions{}, handles[0], []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	// Column families are independent keyspaces.
	_, err = db.Get(kv.ReadOptions{}, handles[1], []byte("k"))
	assert.Equal(t, kv.ErrNotFound, err)

	require.NoError(t, db.Delete(kv.WriteOptions{}, handles[0], []byte("k")))
	_, err = db.Get(kv.ReadOptions{}, handles[0], []byte("k"))
	assert.Equal(t, kv.ErrNotFound, err)
}

func TestWriteBatch_AtomicAcrossCFs(t *testing.T) {
	db, handles := openTestDB(t, t.TempDir())
	defer db.Close()

	batch := db.NewWriteBatch()
	batch.Put(handles[0], []byte("meta"), []byte("m"))
	batch.Put(handles[1], []byte("sub1"), []byte("a"))
	batch.Put(handles[1], []byte("sub2"), []byte("b"))
	assert.Equal(t, 3, batch.Count())
	require.NoError(t, db.Write(kv.WriteOptions{}, batch))

	for _, tc := range []struct {
		cf  kv.ColumnFamilyHandle
		key string
	}{{handles[0], "meta"}, {handles[1], "sub1"}, {handles[1], "sub2"}} {
		_, err := db.Get(kv.ReadOptions{}, tc.cf, []byte(tc.key))
		assert.NoError(t, err, tc.key)
	}
}

func TestIterator_Order(t *testing.T) {
	db, handles := openTestDB(t, t.TempDir())
	defer db.Close()

	for _, k := range []string{"b", "a", "d", "c"} {
		require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], []byte(k), []byte(k)))
	}

	it := db.NewIterator(kv.ReadOptions{}, handles[0])
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)

	it.Seek([]byte("bb"))
	require.True(t, it.Valid())
	assert.Equal(t, "c", string(it.Key()))

	it.SeekToLast()
	require.True(t, it.Valid())
	assert.Equal(t, "d", string(it.Key()))
	it.Prev()
	require.True(t, it.Valid())
	assert.Equal(t, "c", string(it.Key()))
}

func TestSnapshot_Isolation(t *testing.T) {
	db, handles := openTestDB(t, t.TempDir())
	defer db.Close()

	require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], []byte("k"), []byte("old")))
	snap := db.GetSnapshot()
	defer db.ReleaseSnapshot(snap)

	require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], []byte("k"), []byte("new")))
	require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], []byte("k2"), []byte("x")))

	got, err := db.Get(kv.ReadOptions{Snapshot: snap}, handles[0], []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)
	_, err = db.Get(kv.ReadOptions{Snapshot: snap}, handles[0], []byte("k2"))
	assert.Equal(t, kv.ErrNotFound, err)

	got, err = db.Get(kv.ReadOptions{}, handles[0], []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestCustomComparator_Ordering(t *testing.T) {
	db, handles, err := Open(t.TempDir(), kv.Options{CreateIfMissing: true},
		[]kv.ColumnFamilyDescriptor{
			{Name: kv.DefaultColumnFamilyName},
			{Name: "rev", Options: kv.ColumnFamilyOptions{Comparator: reverseComparator{}}},
		})
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, db.Put(kv.WriteOptions{}, handles[1], []byte(k), nil))
	}
	it := db.NewIterator(kv.ReadOptions{}, handles[1])
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"c", "b", "a"}, keys)
}

type reverseComparator struct{}

func (reverseComparator) Name() string { return "memkv.test.ReverseComparator" }

func (reverseComparator) Compare(a, b []byte) int { return -bytes.Compare(a, b) }

func TestReopen_RecoversFromWAL(t *testing.T) {
	dir := t.TempDir()
	db, handles := openTestDB(t, dir)
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], key, []byte("v")))
	}
	require.NoError(t, db.Delete(kv.WriteOptions{}, handles[0], []byte("k05")))
	require.NoError(t, db.Close())

	db2, handles2 := openTestDB(t, dir)
	defer db2.Close()
	got, err := db2.Get(kv.ReadOptions{}, handles2[0], []byte("k03"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	_, err = db2.Get(kv.ReadOptions{}, handles2[0], []byte("k05"))
	assert.Equal(t, kv.ErrNotFound, err)
}

func TestReopen_FromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	opts := kv.Options{CreateIfMissing: true, CheckpointOnClose: true}
	db, handles, err := Open(dir, opts, defaultDescs())
	require.NoError(t, err)
	require.NoError(t, db.Put(kv.WriteOptions{}, handles[1], []byte("sub"), []byte("payload")))
	require.NoError(t, db.Close())

	db2, handles2, err := Open(dir, opts, defaultDescs())
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get(kv.ReadOptions{}, handles2[1], []byte("sub"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestReopen_ComparatorMismatch(t *testing.T) {
	dir := t.TempDir()
	db, _, err := Open(dir, kv.Options{CreateIfMissing: true},
		[]kv.ColumnFamilyDescriptor{
			{Name: kv.DefaultColumnFamilyName},
			{Name: "rev", Options: kv.ColumnFamilyOptions{Comparator: reverseComparator{}}},
		})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, _, err = Open(dir, kv.Options{CreateIfMissing: true},
		[]kv.ColumnFamilyDescriptor{
			{Name: kv.DefaultColumnFamilyName},
			{Name: "rev"},
		})
	assert.Error(t, err, "changing a comparator between opens must fail")
}

type dropAllFilter struct{}

func (dropAllFilter) Name() string { return "memkv.test.DropAllFilter" }
func (dropAllFilter) Filter(level int, key, value []byte) (kv.Decision, []byte) {
	return kv.DecisionDrop, nil
}

type rewriteFilter struct{}

func (rewriteFilter) Name() string { return "memkv.test.RewriteFilter" }
func (rewriteFilter) Filter(level int, key, value []byte) (kv.Decision, []byte) {
	return kv.DecisionRewrite, []byte("rewritten")
}

func TestCompactRange_AppliesFilter(t *testing.T) {
	db, handles, err := Open(t.TempDir(), kv.Options{CreateIfMissing: true},
		[]kv.ColumnFamilyDescriptor{
			{Name: kv.DefaultColumnFamilyName, Options: kv.ColumnFamilyOptions{CompactionFilter: dropAllFilter{}}},
			{Name: "data", Options: kv.ColumnFamilyOptions{CompactionFilter: rewriteFilter{}}},
		})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(kv.WriteOptions{}, handles[0], []byte("k"), []byte("v")))
	require.NoError(t, db.Put(kv.WriteOptions{}, handles[1], []byte("k"), []byte("v")))

	require.NoError(t, db.CompactRange(handles[0], nil, nil))
	require.NoError(t, db.CompactRange(handles[1], nil, nil))

	_, err = db.Get(kv.ReadOptions{}, handles[0], []byte("k"))
	assert.Equal(t, kv.ErrNotFound, err)

	got, err := db.Get(kv.ReadOptions{}, handles[1], []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("rewritten"), got)
}
