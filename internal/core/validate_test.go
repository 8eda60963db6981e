package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/powermatch/internal/core/model"
)

func TestValidate(t *testing.T) {
	records := []model.Record{
		{RecordID: " r1 ", Name: " Alpha ", CapacityMW: 10, Lat: model.FloatPtr(1)},
		{RecordID: "", CapacityMW: 10},
		{RecordID: "r1", CapacityMW: 10},
		{RecordID: "r2", CapacityMW: 0},
		{RecordID: "r3", CapacityMW: math.NaN()},
		{RecordID: "r4", CapacityMW: 5, Set: "Nuclear"},
		{RecordID: "r5", CapacityMW: 5, Set: model.SetCHP},
	}

	valid, issues := Validate("OPSD", records)

	require.Len(t, valid, 2)
	assert.Equal(t, "r1", valid[0].RecordID)
	assert.Equal(t, "Alpha", valid[0].Name)
	assert.Equal(t, "OPSD", valid[0].SourceID)
	assert.Nil(t, valid[0].Lat)
	assert.Equal(t, "r5", valid[1].RecordID)

	require.Len(t, issues, 5)
	for _, is := range issues {
		assert.Equal(t, model.KindDroppedRecord, is.Kind)
		assert.Contains(t, is.Detail, model.ErrSchemaViolation.Error())
	}
	assert.Equal(t, "r1", issues[1].RecordID)
}
