package clique

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agenthands/powermatch/internal/core/model"
)

func recs(ids ...string) []model.Record {
	out := make([]model.Record, len(ids))
	for i, id := range ids {
		out[i] = model.Record{SourceID: "S", RecordID: id, CapacityMW: 1}
	}
	return out
}

// both returns a reciprocal judgment pair.
func both(a, b string) []model.MatchLink {
	return []model.MatchLink{
		{SourceA: "S", RecordA: a, SourceB: "S", RecordB: b, Score: 1},
		{SourceA: "S", RecordA: b, SourceB: "S", RecordB: a, Score: 1},
	}
}

func links(pairs ...[]model.MatchLink) []model.MatchLink {
	var out []model.MatchLink
	for _, p := range pairs {
		out = append(out, p...)
	}
	return out
}

func assertPartition(t *testing.T, records []model.Record, g model.Grouping) {
	t.Helper()
	seen := make(map[string]int)
	for _, grp := range g.Groups {
		for _, m := range grp.Members {
			seen[m]++
			assert.Equal(t, grp.ID, g.Assignments[m])
		}
	}
	require.Len(t, seen, len(records))
	for _, r := range records {
		assert.Equal(t, 1, seen[r.RecordID], "record %s", r.RecordID)
	}
}

func TestGroup_ReciprocalPair(t *testing.T) {
	records := recs("a", "b")
	res := NewGrouper(zaptest.NewLogger(t)).Group("S", records, both("a", "b"))

	require.Len(t, res.Grouping.Groups, 1)
	assert.Equal(t, []string{"a", "b"}, res.Grouping.Groups[0].Members)
	assertPartition(t, records, res.Grouping)
}

func TestGroup_OneSidedJudgmentIgnored(t *testing.T) {
	records := recs("a", "b")
	judgments := []model.MatchLink{{SourceA: "S", RecordA: "a", SourceB: "S", RecordB: "b", Score: 0.99}}
	res := NewGrouper(nil).Group("S", records, judgments)

	assert.Len(t, res.Grouping.Groups, 2)
	assertPartition(t, records, res.Grouping)
}

func TestGroup_ChainIsNotMerged(t *testing.T) {
	// a-b-c chain without a-c: two maximal cliques {a,b} and {b,c}; connected components would merge all three.
	records := recs("a", "b", "c")
	res := NewGrouper(nil).Group("S", records, links(both("a", "b"), both("b", "c")))

	assert.Equal(t, 2, res.Cliques)
	assert.Equal(t, 1, res.Components)
	require.Len(t, res.Grouping.Groups, 2)
	assert.Equal(t, []string{"a", "b"}, res.Grouping.Groups[0].Members)
	assert.Equal(t, []string{"c"}, res.Grouping.Groups[1].Members)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, model.KindAmbiguousClique, res.Issues[0].Kind)
	assert.Equal(t, "b", res.Issues[0].RecordID)
	assertPartition(t, records, res.Grouping)
}

func TestGroup_LargerCliqueWins(t *testing.T) {
	// {a,b,c,d} is a 4-clique; d-e is a weak extra edge.
	records := recs("e", "a", "b", "c", "d")
	res := NewGrouper(nil).Group("S", records, links(
		both("a", "b"), both("a", "c"), both("a", "d"),
		both("b", "c"), both("b", "d"), both("c", "d"),
		both("d", "e"),
	))

	require.Len(t, res.Grouping.Groups, 2)
	// Groups are numbered by first member in input order: e comes first.
	assert.Equal(t, []string{"e"}, res.Grouping.Groups[0].Members)
	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Grouping.Groups[1].Members)
	assertPartition(t, records, res.Grouping)
}

func TestGroup_UnknownRecordDropped(t *testing.T) {
	records := recs("a", "b")
	res := NewGrouper(nil).Group("S", records, links(both("a", "b"), both("a", "zz")))

	require.Len(t, res.Grouping.Groups, 1)
	require.Len(t, res.Issues, 2)
	for _, is := range res.Issues {
		assert.Equal(t, model.KindDroppedEdge, is.Kind)
		assert.Equal(t, "zz", is.RecordID)
	}
}

func TestGroup_SelfLoopsAndIsolated(t *testing.T) {
	records := recs("a", "b", "c")
	res := NewGrouper(nil).Group("S", records, both("a", "a"))

	assert.Len(t, res.Grouping.Groups, 3)
	assert.Empty(t, res.Issues)
	assertPartition(t, records, res.Grouping)
}

func TestGroup_Deterministic(t *testing.T) {
	records := recs("p", "q", "r", "s", "t", "u")
	judgments := links(
		both("p", "q"), both("q", "r"), both("p", "r"),
		both("r", "s"), both("s", "t"), both("t", "r"),
		both("u", "p"),
	)
	first := NewGrouper(nil).Group("S", records, judgments)
	for i := 0; i < 20; i++ {
		again := NewGrouper(nil).Group("S", records, judgments)
		assert.Equal(t, first.Grouping, again.Grouping)
		assert.Equal(t, first.Issues, again.Issues)
	}
	assertPartition(t, records, first.Grouping)
}

func TestMaximalCliques(t *testing.T) {
	g := newGraph(6)
	// Two triangles joined by a bridge 2-3.
	for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 0}, {2, 3}, {3, 4}, {4, 5}, {5, 3}} {
		g.addEdge(e[0], e[1])
	}
	g.finalize()

	cliques := g.maximalCliques()
	assert.ElementsMatch(t, [][]int{{0, 1, 2}, {2, 3}, {3, 4, 5}}, cliques)
	assert.Len(t, g.components(), 1)
}

func TestSingletons(t *testing.T) {
	records := recs("x", "y")
	g := Singletons("S", records)
	assert.Len(t, g.Groups, 2)
	assertPartition(t, records, g)
}
