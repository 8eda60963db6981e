package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agenthands/powermatch/internal/cache"
	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/model"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		{Name: "A", ReliabilityScore: 7},
		{Name: "B", ReliabilityScore: 5, FullyIncluded: true},
		{Name: "C", ReliabilityScore: 3},
	}
	return cfg
}

func testDatasets() []model.Dataset {
	return []model.Dataset{
		{Source: "B", Records: []model.Record{
			{RecordID: "b1", Name: "Alpha", Country: "DE", Fueltype: model.FueltypeOther, CapacityMW: 140, DateIn: model.IntPtr(1975)},
			{RecordID: "b2", Name: "Gamma", Country: "DE", Fueltype: "Wind", CapacityMW: 20},
		}},
		{Source: "A", Records: []model.Record{
			{RecordID: "a1", Name: "Alpha", Country: "DE", Fueltype: "Hard Coal", CapacityMW: 100, DateIn: model.IntPtr(1980)},
			{RecordID: "a2", Name: "alpha", Country: "DE", Fueltype: "Hard Coal", CapacityMW: 50},
			{RecordID: "a3", Name: "Beta", Country: "FR", Fueltype: "Nuclear", CapacityMW: 900},
			{RecordID: "a4", Name: "Broken", Country: "FR", CapacityMW: 0},
		}},
		{Source: "C", Records: []model.Record{
			{RecordID: "c1", Name: "Beta", Country: "FR", Fueltype: "Nuclear", CapacityMW: 910},
		}},
	}
}

func newTestMatcher(t *testing.T, cfg *config.Config, o *MockOracle, c cache.Store) *Matcher {
	m := NewMatcher(cfg, o, c, zaptest.NewLogger(t))
	n := 0
	m.IDGenerator = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return m
}

func TestMatcherRun(t *testing.T) {
	o := &MockOracle{}
	m := newTestMatcher(t, testConfig(), o, nil)

	res, err := m.Run(context.Background(), testDatasets())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, []string{"A", "B", "C"}, res.Sources)
	assert.Equal(t, []model.CombinedMatchRow{{IDs: []string{"a1", "b1", ""}}, {IDs: []string{"a3", "", "c1"}}}, res.Combined)

	require.Len(t, res.Plants, 3)
	alpha := res.Plants[0]
	assert.Equal(t, 0, alpha.ID)
	assert.Equal(t, "Alpha", alpha.Name)
	assert.Equal(t, "Hard Coal", alpha.Fueltype)
	assert.Equal(t, 150.0, alpha.CapacityMW)
	assert.Equal(t, 1975, *alpha.DateIn)
	assert.Equal(t, map[string][]string{"A": {"a1", "a2"}, "B": {"b1"}}, alpha.ProjectID)

	assert.Equal(t, "Beta", res.Plants[1].Name)
	assert.Equal(t, 900.0, res.Plants[1].CapacityMW)

	// B is fully included, so its unmatched unit becomes a plant of its own.
	assert.Equal(t, 2, res.Plants[2].ID)
	assert.Equal(t, "Gamma", res.Plants[2].Name)

	d := res.Diagnostics
	assert.Equal(t, 7, d.Stats.InputRecords)
	assert.Equal(t, 6, d.Stats.ValidRecords)
	assert.Equal(t, 5, d.Stats.UnitRecords)
	assert.Equal(t, 1, d.Stats.ExtendedPlants)
	assert.Equal(t, 3, d.Stats.Plants)
	assert.Equal(t, 1, d.Count(model.KindDroppedRecord))
	assert.Equal(t, 4, d.Count(model.KindEmptyPartition))

	require.Len(t, res.Groupings, 3)
	assert.Equal(t, []string{"a1", "a2"}, res.Groupings[0].Groups[0].Members)
}

func TestMatcherDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Matching.MaxConcurrency = 8

	first, err := newTestMatcher(t, cfg, &MockOracle{}, nil).Run(context.Background(), testDatasets())
	require.NoError(t, err)
	second, err := newTestMatcher(t, cfg, &MockOracle{}, nil).Run(context.Background(), testDatasets())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMatcherUsesCache(t *testing.T) {
	c := cache.NewMemoryStore()
	first := &MockOracle{}
	_, err := newTestMatcher(t, testConfig(), first, c).Run(context.Background(), testDatasets())
	require.NoError(t, err)
	assert.Positive(t, first.LinkCalls)

	second := &MockOracle{}
	res, err := newTestMatcher(t, testConfig(), second, c).Run(context.Background(), testDatasets())
	require.NoError(t, err)
	assert.Zero(t, second.LinkCalls)
	assert.Zero(t, second.DedupCalls)
	assert.Equal(t, 3, res.Diagnostics.Stats.CachedPairs)
	assert.Len(t, res.Plants, 3)
}

func TestMatcherRerunAfterInputChange(t *testing.T) {
	c := cache.NewMemoryStore()
	_, err := newTestMatcher(t, testConfig(), &MockOracle{}, c).Run(context.Background(), testDatasets())
	require.NoError(t, err)

	// Drop a1 so that A's Alpha unit is now a2 alone.
	datasets := testDatasets()
	for i, d := range datasets {
		if d.Source == "A" {
			datasets[i].Records = d.Records[1:]
		}
	}

	o := &MockOracle{}
	res, err := newTestMatcher(t, testConfig(), o, c).Run(context.Background(), datasets)
	require.NoError(t, err)
	assert.Positive(t, o.LinkCalls)
	assert.Equal(t, 1, res.Diagnostics.Stats.CachedPairs)

	require.Len(t, res.Plants, 3)
	assert.Equal(t, map[string][]string{"A": {"a2"}, "B": {"b1"}}, res.Plants[0].ProjectID)
	assert.Zero(t, res.Diagnostics.Count(model.KindStaleCache))
}

func TestMatcherCacheKeyedBySettings(t *testing.T) {
	c := cache.NewMemoryStore()
	_, err := newTestMatcher(t, testConfig(), &MockOracle{}, c).Run(context.Background(), testDatasets())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Oracle.Threshold = 0.5
	o := &MockOracle{}
	res, err := newTestMatcher(t, cfg, o, c).Run(context.Background(), testDatasets())
	require.NoError(t, err)
	assert.Positive(t, o.DedupCalls)
	assert.Positive(t, o.LinkCalls)
	assert.Zero(t, res.Diagnostics.Stats.CachedPairs)
}

func TestGroupsKey(t *testing.T) {
	records := []model.Record{{RecordID: "r1", Name: "X", Country: "DE", CapacityMW: 1}}
	base, err := GroupsKey("A", records, "rule|0.85", nil)
	require.NoError(t, err)
	assert.Regexp(t, `^groups/A/[0-9a-f]{16}$`, base)

	same, err := GroupsKey("A", records, "rule|0.85", []string{})
	require.NoError(t, err)
	assert.Equal(t, base, same)

	for _, other := range []func() (string, error){
		func() (string, error) { return GroupsKey("A", records, "rule|0.9", nil) },
		func() (string, error) { return GroupsKey("A", records, "rule|0.85", []string{"DE"}) },
		func() (string, error) {
			return GroupsKey("A", []model.Record{{RecordID: "r2", Name: "X", Country: "DE", CapacityMW: 1}}, "rule|0.85", nil)
		},
	} {
		key, err := other()
		require.NoError(t, err)
		assert.NotEqual(t, base, key)
	}

	trimmed, err := GroupsKey("A", records, "rule|0.85", []string{" DE"})
	require.NoError(t, err)
	spaced, err := GroupsKey("A", records, "rule|0.85", []string{"DE "})
	require.NoError(t, err)
	assert.Equal(t, trimmed, spaced)
}

func TestMatcherCachedOnlyMiss(t *testing.T) {
	cfg := testConfig()
	cfg.Run.CachedOnly = true

	_, err := newTestMatcher(t, cfg, &MockOracle{}, cache.NewMemoryStore()).Run(context.Background(), testDatasets())
	assert.ErrorIs(t, err, model.ErrCacheMiss)
}

func TestMatcherOracleDown(t *testing.T) {
	o := &MockOracle{Err: model.ErrOracleUnavailable}
	res, err := newTestMatcher(t, testConfig(), o, nil).Run(context.Background(), testDatasets())

	require.NoError(t, err)
	assert.Empty(t, res.Combined)
	assert.Positive(t, res.Diagnostics.Count(model.KindSkippedPartition))
	// Only the fully included source survives as single-source plants.
	assert.Len(t, res.Plants, 2)
}

func TestMatcherAggregatedUnitsSkipGrouping(t *testing.T) {
	cfg := testConfig()
	cfg.Sources[0].AggregatedUnits = true
	o := &MockOracle{}

	res, err := newTestMatcher(t, cfg, o, nil).Run(context.Background(), testDatasets())
	require.NoError(t, err)
	assert.Len(t, res.Groupings[0].Groups, 3)
	assert.Equal(t, 100.0, res.Plants[0].CapacityMW)
}

func TestMatcherDuplicateDataset(t *testing.T) {
	_, err := newTestMatcher(t, testConfig(), &MockOracle{}, nil).Run(context.Background(), []model.Dataset{{Source: "A"}, {Source: "A"}})
	assert.Error(t, err)
}
