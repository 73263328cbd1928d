package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitedb/kitedb/internal/kv"
	"github.com/kitedb/kitedb/status"
)

func openTestZSets(t *testing.T) *ZSets {
	t.Helper()
	z, err := OpenZSets(t.TempDir(), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { z.Close() })
	return z
}

func members(sms []ScoreMember) []string {
	out := make([]string, len(sms))
	for i, sm := range sms {
		out[i] = sm.Member
	}
	return out
}

func TestZSets_AddScoreCard(t *testing.T) {
	z := openTestZSets(t)

	n, err := z.ZAdd("Z", []ScoreMember{{Score: 1, Member: "a"}, {Score: 2, Member: "b"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), n)

	score, err := z.ZScore("Z", "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	// Re-adding the same (score, member) is a no-op.
	n, err = z.ZAdd("Z", []ScoreMember{{Score: 1, Member: "a"}})
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
	card, err := z.ZCard("Z")
	require.NoError(t, err)
	assert.Equal(t, int32(2), card)

	// Updating a score keeps the cardinality and moves the score key.
	n, err = z.ZAdd("Z", []ScoreMember{{Score: 10, Member: "a"}})
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
	score, err = z.ZScore("Z", "a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, score)

	got, err := z.ZRange("Z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, members(got))
}

func TestZSets_DataAndScoreStayPaired(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{{Score: 3, Member: "x"}, {Score: 1, Member: "y"}})
	require.NoError(t, err)
	_, err = z.ZAdd("Z", []ScoreMember{{Score: 5, Member: "x"}})
	require.NoError(t, err)
	_, err = z.ZRem("Z", []string{"y"})
	require.NoError(t, err)

	meta, err := z.liveCollectionMeta(kv.ReadOptions{}, "Z")
	require.NoError(t, err)

	lex, err := z.lexEntries(kv.ReadOptions{}, "Z", meta.Version)
	require.NoError(t, err)
	scored, err := z.scoreEntries(kv.ReadOptions{}, "Z", meta.Version)
	require.NoError(t, err)
	assert.Equal(t, len(lex), len(scored), "every data entry has exactly one score entry")
	assert.Equal(t, int(meta.Count), len(lex))
}

func TestZSets_Incrby(t *testing.T) {
	z := openTestZSets(t)

	score, err := z.ZIncrby("Z", "m", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, score)

	score, err = z.ZIncrby("Z", "m", -1)
	require.NoError(t, err)
	assert.Equal(t, 1.5, score)

	card, _ := z.ZCard("Z")
	assert.Equal(t, int32(1), card)
}

func TestZSets_Count(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{
		{Score: 1, Member: "a"}, {Score: 2, Member: "b"}, {Score: 3, Member: "c"},
	})
	require.NoError(t, err)

	n, err := z.ZCount("Z", 1, 3, true, true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)

	n, err = z.ZCount("Z", 1, 3, false, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n, "open bounds exclude the endpoints")

	n, err = z.ZCount("missing", 0, 10, true, true)
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
}

func TestZSets_RangeRevrange(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{
		{Score: 3, Member: "c"}, {Score: 1, Member: "a"}, {Score: 2, Member: "b"},
	})
	require.NoError(t, err)

	got, err := z.ZRange("Z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members(got))

	got, err = z.ZRange("Z", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, members(got))

	got, err = z.ZRevrange("Z", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, members(got))

	got, err = z.ZRange("Z", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestZSets_Rangebyscore(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{
		{Score: -1, Member: "neg"}, {Score: 0, Member: "zero"},
		{Score: 1, Member: "one"}, {Score: 2, Member: "two"},
	})
	require.NoError(t, err)

	got, err := z.ZRangebyscore("Z", 0, 2, true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"zero", "one", "two"}, members(got))

	got, err = z.ZRangebyscore("Z", 0, 2, false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, members(got))

	got, err = z.ZRevrangebyscore("Z", -1, 1, true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "zero", "neg"}, members(got))
}

func TestZSets_RankRevrank(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{
		{Score: 1, Member: "a"}, {Score: 2, Member: "b"}, {Score: 3, Member: "c"},
	})
	require.NoError(t, err)

	rank, err := z.ZRank("Z", "a")
	require.NoError(t, err)
	assert.Equal(t, int32(0), rank)

	rank, err = z.ZRevrank("Z", "a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), rank)

	_, err = z.ZRank("Z", "missing")
	assert.True(t, status.IsNotFound(err))
}

func TestZSets_Lex(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{
		{Score: 0, Member: "a"}, {Score: 0, Member: "b"},
		{Score: 0, Member: "c"}, {Score: 0, Member: "d"},
	})
	require.NoError(t, err)

	got, err := z.ZRangebylex("Z", "-", "+", true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)

	got, err = z.ZRangebylex("Z", "b", "d", true, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	n, err := z.ZLexcount("Z", "a", "c", false, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), n)

	removed, err := z.ZRemrangebylex("Z", "b", "c", true, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), removed)
	got, err = z.ZRangebylex("Z", "-", "+", true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, got)
}

func TestZSets_RemRanges(t *testing.T) {
	z := openTestZSets(t)

	seed := func() {
		_, err := z.ZAdd("Z", []ScoreMember{
			{Score: 1, Member: "a"}, {Score: 2, Member: "b"},
			{Score: 3, Member: "c"}, {Score: 4, Member: "d"},
		})
		require.NoError(t, err)
	}

	seed()
	n, err := z.ZRem("Z", []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	n, err = z.ZRemrangebyrank("Z", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	got, _ := z.ZRange("Z", 0, -1)
	assert.Equal(t, []string{"c", "d"}, members(got))

	n, err = z.ZRemrangebyscore("Z", 3, 4, true, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	got, _ = z.ZRange("Z", 0, -1)
	assert.Equal(t, []string{"d"}, members(got))
}

func TestZSets_UnionstoreScenario(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("A", []ScoreMember{{Score: 1, Member: "x"}, {Score: 2, Member: "y"}})
	require.NoError(t, err)
	_, err = z.ZAdd("B", []ScoreMember{{Score: 10, Member: "y"}, {Score: 20, Member: "z"}})
	require.NoError(t, err)

	n, err := z.ZUnionstore("D", []string{"A", "B"}, []float64{2, 3}, AggregateSum)
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)

	score, err := z.ZScore("D", "x")
	require.NoError(t, err)
	assert.Equal(t, 2.0, score)
	score, err = z.ZScore("D", "y")
	require.NoError(t, err)
	assert.Equal(t, 34.0, score)
	score, err = z.ZScore("D", "z")
	require.NoError(t, err)
	assert.Equal(t, 60.0, score)
}

func TestZSets_UnionstoreAggregates(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("A", []ScoreMember{{Score: 5, Member: "m"}})
	require.NoError(t, err)
	_, err = z.ZAdd("B", []ScoreMember{{Score: 3, Member: "m"}})
	require.NoError(t, err)

	_, err = z.ZUnionstore("D", []string{"A", "B"}, nil, AggregateMin)
	require.NoError(t, err)
	score, _ := z.ZScore("D", "m")
	assert.Equal(t, 3.0, score)

	_, err = z.ZUnionstore("D", []string{"A", "B"}, nil, AggregateMax)
	require.NoError(t, err)
	score, _ = z.ZScore("D", "m")
	assert.Equal(t, 5.0, score)
}

func TestZSets_Interstore(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("A", []ScoreMember{{Score: 1, Member: "x"}, {Score: 2, Member: "y"}})
	require.NoError(t, err)
	_, err = z.ZAdd("B", []ScoreMember{{Score: 10, Member: "y"}})
	require.NoError(t, err)

	n, err := z.ZInterstore("D", []string{"A", "B"}, nil, AggregateSum)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	score, err := z.ZScore("D", "y")
	require.NoError(t, err)
	assert.Equal(t, 12.0, score)

	// A dead input empties the intersection.
	n, err = z.ZInterstore("D", []string{"A", "missing"}, nil, AggregateSum)
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)
	card, _ := z.ZCard("D")
	assert.Equal(t, int32(0), card)
}

func TestZSets_ZScan(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{
		{Score: 1, Member: "m1"}, {Score: 2, Member: "m2"},
		{Score: 3, Member: "m3"}, {Score: 4, Member: "n1"},
	})
	require.NoError(t, err)

	var all []string
	cursor := int64(0)
	for {
		sms, next, err := z.ZScan("Z", cursor, "m*", 2)
		require.NoError(t, err)
		all = append(all, members(sms)...)
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, all)
}

func TestZSets_ExpireRevive(t *testing.T) {
	z := openTestZSets(t)

	_, err := z.ZAdd("Z", []ScoreMember{{Score: 1, Member: "a"}})
	require.NoError(t, err)
	require.NoError(t, z.Expireat("Z", time.Now().Unix()-1))

	_, err = z.ZScore("Z", "a")
	assert.True(t, status.IsNotFound(err))

	n, err := z.ZAdd("Z", []ScoreMember{{Score: 9, Member: "b"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
	got, _ := z.ZRange("Z", 0, -1)
	assert.Equal(t, []string{"b"}, members(got))
}
