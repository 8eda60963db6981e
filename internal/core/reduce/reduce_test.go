package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agenthands/powermatch/internal/core/model"
)

var labels = []string{"A", "B", "C"}

func row(ids ...string) model.CombinedMatchRow {
	return model.CombinedMatchRow{IDs: ids}
}

func TestRanking(t *testing.T) {
	ranking, issues := Ranking([]string{"C", "A", "D", "B"}, map[string]float64{"A": 5, "B": 7, "C": 5})
	assert.Equal(t, []string{"B", "A", "C", "D"}, ranking)
	require.Len(t, issues, 1)
	assert.Equal(t, model.KindUnranked, issues[0].Kind)
	assert.Equal(t, "D", issues[0].Source)
}

func TestReduceFirstByReliability(t *testing.T) {
	units := map[string][]model.Record{
		"B": {{RecordID: "b1", Name: "Foo", CapacityMW: 100, Country: "DE"}},
		"C": {{RecordID: "c1", Name: "Bar", CapacityMW: 120, Country: "DE", Set: model.SetCHP}},
	}
	plants, err := NewReducer(zaptest.NewLogger(t)).Reduce(
		[]model.CombinedMatchRow{row("", "b1", "c1")}, labels, NewIndex(units), []string{"A", "B", "C"})

	require.NoError(t, err)
	require.Len(t, plants, 1)
	p := plants[0]
	assert.Equal(t, 0, p.ID)
	assert.Equal(t, "Foo", p.Name)
	assert.Equal(t, 100.0, p.CapacityMW)
	assert.Equal(t, model.SetCHP, p.Set)
	assert.Equal(t, map[string][]string{"B": {"b1"}, "C": {"c1"}}, p.ProjectID)
}

func TestReduceFueltypeMasking(t *testing.T) {
	units := NewIndex(map[string][]model.Record{
		"A": {{RecordID: "a1", Fueltype: model.FueltypeOther}, {RecordID: "a2", Fueltype: model.FueltypeOther}, {RecordID: "a3"}},
		"B": {{RecordID: "b1", Fueltype: "Hard Coal"}, {RecordID: "b2"}, {RecordID: "b3"}},
	})
	rows := []model.CombinedMatchRow{row("a1", "b1", ""), row("a2", "b2", ""), row("a3", "b3", "")}

	for _, ranking := range [][]string{{"A", "B"}, {"B", "A"}} {
		plants, err := NewReducer(nil).Reduce(rows, labels, units, ranking)
		require.NoError(t, err)
		assert.Equal(t, "Hard Coal", plants[0].Fueltype)
		assert.Equal(t, model.FueltypeOther, plants[1].Fueltype)
		assert.Equal(t, "", plants[2].Fueltype)
	}
}

func TestReduceDatesAndCoordinates(t *testing.T) {
	units := NewIndex(map[string][]model.Record{
		"A": {{RecordID: "a1", DateIn: model.IntPtr(1980), DateRetrofit: model.IntPtr(1995), Lat: model.FloatPtr(50)}},
		"B": {{RecordID: "b1", DateIn: model.IntPtr(1975), DateRetrofit: model.IntPtr(2005), DateOut: model.IntPtr(2030),
			Lat: model.FloatPtr(51), Lon: model.FloatPtr(7)}},
		"C": {{RecordID: "c1", DateIn: model.IntPtr(1978), DateOut: model.IntPtr(2025), Lat: model.FloatPtr(52), Lon: model.FloatPtr(8)}},
	})
	plants, err := NewReducer(nil).Reduce([]model.CombinedMatchRow{row("a1", "b1", "c1")}, labels, units, []string{"A", "B", "C"})
	require.NoError(t, err)
	p := plants[0]

	assert.Equal(t, 1975, *p.DateIn)
	assert.Equal(t, 2005, *p.DateRetrofit)
	assert.Equal(t, 2030, *p.DateOut)
	for _, source := range labels {
		u := units[source][map[string]string{"A": "a1", "B": "b1", "C": "c1"}[source]]
		assert.LessOrEqual(t, *p.DateIn, *u.DateIn)
		if u.DateRetrofit != nil {
			assert.GreaterOrEqual(t, *p.DateRetrofit, *u.DateRetrofit)
		}
	}
	// A has no longitude, so the pair comes from B.
	assert.Equal(t, 51.0, *p.Lat)
	assert.Equal(t, 7.0, *p.Lon)
}

func TestReduceUnionsAndNormalizes(t *testing.T) {
	units := NewIndex(map[string][]model.Record{
		"A": {{RecordID: "a1", Technology: "CCGT, OCGT,CCGT", EIC: []string{"E2", "E1"}, ProjectIDs: []string{"x1", "x2"}}},
		"B": {{RecordID: "b1", Technology: "Steam Turbine", EIC: []string{"E1", "E3"}, Efficiency: model.FloatPtr(0.4)}},
	})
	plants, err := NewReducer(nil).Reduce([]model.CombinedMatchRow{row("a1", "b1", "")}, labels, units, []string{"A", "B"})
	require.NoError(t, err)
	p := plants[0]

	assert.Equal(t, "CCGT, OCGT", p.Technology)
	assert.Equal(t, []string{"E2", "E1", "E3"}, p.EIC)
	assert.Equal(t, []string{"x1", "x2"}, p.ProjectID["A"])
	assert.Equal(t, 0.4, *p.Efficiency)
}

func TestReduceUnknownUnit(t *testing.T) {
	_, err := NewReducer(nil).Reduce([]model.CombinedMatchRow{row("a9", "", "")}, labels, NewIndex(nil), []string{"A"})
	assert.Error(t, err)
}

func TestReduceDeterministic(t *testing.T) {
	units := NewIndex(map[string][]model.Record{
		"A": {{RecordID: "a1", Name: "X", EIC: []string{"1"}}},
		"B": {{RecordID: "b1", Name: "Y", EIC: []string{"2"}}},
		"C": {{RecordID: "c1", Name: "Z", EIC: []string{"3"}}},
	})
	rows := []model.CombinedMatchRow{row("a1", "b1", "c1")}
	first, err := NewReducer(nil).Reduce(rows, labels, units, []string{"C", "A", "B"})
	require.NoError(t, err)
	second, err := NewReducer(nil).Reduce(rows, labels, units, []string{"C", "A", "B"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "Z", first[0].Name)
	assert.Equal(t, []string{"3", "1", "2"}, first[0].EIC)
}

func TestExtend(t *testing.T) {
	units := map[string][]model.Record{
		"A": {{RecordID: "a1"}, {RecordID: "a2", Name: "Lonely"}},
		"B": {{RecordID: "b1"}, {RecordID: "b2"}},
	}
	rows := []model.CombinedMatchRow{row("a1", "b1", "")}
	r := NewReducer(zaptest.NewLogger(t))
	plants, err := r.Reduce(rows, labels, NewIndex(units), []string{"A", "B"})
	require.NoError(t, err)

	plants = r.Extend(plants, rows, labels, units, []string{"A", "B"}, []string{"A"})
	require.Len(t, plants, 2)
	assert.Equal(t, 1, plants[1].ID)
	assert.Equal(t, "Lonely", plants[1].Name)
	assert.Equal(t, map[string][]string{"A": {"a2"}}, plants[1].ProjectID)
}

func TestRefine(t *testing.T) {
	plants := []model.Plant{
		{ID: 0, Country: "DE", ProjectID: map[string][]string{"GEO": {"g1"}}},
		{ID: 1, Country: "CH", ProjectID: map[string][]string{"GEO": {"g2"}}},
		{ID: 2, Country: "DE", ProjectID: map[string][]string{"GEO": {"g3"}, "OPSD": {"o1"}}, Lat: model.FloatPtr(1), Lon: model.FloatPtr(2)},
		{ID: 3, Country: "DE", ProjectID: map[string][]string{"OPSD": {"o2"}}},
	}
	r := NewReducer(nil)

	kept := r.Refine(plants, RefineOptions{LowReliability: []string{"GEO"}, AllowedCountries: []string{"CH"}})
	ids := []int{}
	for _, p := range kept {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)

	kept = r.Refine(plants, RefineOptions{RemoveMissingCoords: true})
	require.Len(t, kept, 1)
	assert.Equal(t, 2, kept[0].ID)
}
