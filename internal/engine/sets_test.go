package engine

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

func openTestSets(t *testing.T) *Sets {
	t.Helper()
	s, err := OpenSets(t.TempDir(), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSets_AddRemCard(t *testing.T) {
	s := openTestSets(t)

	n, err := s.SAdd("S", []string{"a", "b", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), n, "input duplicates collapse")

	n, err = s.SAdd("S", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), n, "re-adding is a no-op")

	card, err := s.SCard("S")
	require.NoError(t, err)
	assert.Equal(t, int32(3), card)

	n, err = s.SRem("S", []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	card, err = s.SCard("S")
	require.NoError(t, err)
	assert.Equal(t, int32(2), card)
}

func TestSets_IsmemberMembers(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("S", []string{"b", "a"})
	require.NoError(t, err)

	ok, err := s.SIsmember("S", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SIsmember("S", "z")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.SIsmember("missing", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := s.SMembers("S")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members, "member order is bytewise")
}

func TestSets_Pop(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("S", []string{"a", "b", "c"})
	require.NoError(t, err)

	popped := map[string]bool{}
	for i := 0; i < 3; i++ {
		m, err := s.SPop("S")
		require.NoError(t, err)
		assert.False(t, popped[m], "SPop must not repeat")
		popped[m] = true
	}
	_, err = s.SPop("S")
	assert.True(t, status.IsNotFound(err))
}

func TestSets_Randmember(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("S", []string{"a", "b", "c"})
	require.NoError(t, err)

	members, err := s.SRandmember("S", 2)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.NotEqual(t, members[0], members[1])

	members, err = s.SRandmember("S", 10)
	require.NoError(t, err)
	assert.Len(t, members, 3, "positive count caps at cardinality")

	members, err = s.SRandmember("S", -7)
	require.NoError(t, err)
	assert.Len(t, members, 7, "negative count samples with replacement")
}

func TestSets_Move(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("src", []string{"a", "b"})
	require.NoError(t, err)
	_, err = s.SAdd("dst", []string{"b"})
	require.NoError(t, err)

	n, err := s.SMove("src", "dst", "a")
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	n, err = s.SMove("src", "dst", "missing")
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)

	srcMembers, _ := s.SMembers("src")
	assert.Equal(t, []string{"b"}, srcMembers)
	dstMembers, _ := s.SMembers("dst")
	assert.Equal(t, []string{"a", "b"}, dstMembers)

	// Moving an existing member into a set that already has it only
	// removes it from src.
	n, err = s.SMove("src", "dst", "b")
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	card, _ := s.SCard("dst")
	assert.Equal(t, int32(2), card)
}

func TestSets_Algebra(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("A", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	_, err = s.SAdd("B", []string{"c"})
	require.NoError(t, err)
	_, err = s.SAdd("C", []string{"a", "c", "e"})
	require.NoError(t, err)

	diff, err := s.SDiff([]string{"A", "B", "C"})
	require.NoError(t, err)
	sort.Strings(diff)
	assert.Equal(t, []string{"b", "d"}, diff)

	inter, err := s.SInter([]string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, inter)

	inter, err = s.SInter([]string{"A", "missing"})
	require.NoError(t, err)
	assert.Empty(t, inter, "a dead input empties the intersection")

	union, err := s.SUnion([]string{"A", "B", "C", "missing"})
	require.NoError(t, err)
	sort.Strings(union)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, union)
}

func TestSets_AlgebraStore(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("A", []string{"a", "b"})
	require.NoError(t, err)
	_, err = s.SAdd("B", []string{"b", "c"})
	require.NoError(t, err)
	_, err = s.SAdd("D", []string{"x", "y", "z"})
	require.NoError(t, err)

	n, err := s.SUnionstore("D", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)
	members, _ := s.SMembers("D")
	assert.Equal(t, []string{"a", "b", "c"}, members, "destination is overwritten")

	n, err = s.SInterstore("D", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	members, _ = s.SMembers("D")
	assert.Equal(t, []string{"b"}, members)

	n, err = s.SDiffstore("D", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	members, _ = s.SMembers("D")
	assert.Equal(t, []string{"a"}, members)
}

func TestSets_SScan(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("S", []string{"m1", "m2", "m3", "m4", "m5", "n1"})
	require.NoError(t, err)

	var all []string
	cursor := int64(0)
	for {
		members, next, err := s.SScan("S", cursor, "m*", 2)
		require.NoError(t, err)
		all = append(all, members...)
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(all)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, all)
}

func TestSets_ExpireStaleCreate(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("S", []string{"a"})
	require.NoError(t, err)
	require.NoError(t, s.Expireat("S", time.Now().Unix()-1))

	card, err := s.SCard("S")
	require.NoError(t, err)
	assert.Equal(t, int32(0), card)

	n, err := s.SAdd("S", []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), n, "stale key re-initializes as a fresh set")

	members, _ := s.SMembers("S")
	assert.Equal(t, []string{"b", "c"}, members)
}

func TestSets_DelThenRecreate_CompactionReclaims(t *testing.T) {
	s := openTestSets(t)

	_, err := s.SAdd("S", []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, s.Del("S"))

	_, err = s.SAdd("S", []string{"z"})
	require.NoError(t, err)
	members, _ := s.SMembers("S")
	assert.Equal(t, []string{"z"}, members, "old-version members are unreachable")

	// Compaction physically drops the orphaned members.
	require.NoError(t, s.CompactRange())

	it := s.db.NewIterator(kv.ReadOptions{}, s.memberCF)
	defer it.Close()
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		n++
	}
	assert.Equal(t, 1, n, "only the live member survives compaction")
}
