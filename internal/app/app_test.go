package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agenthands/powermatch/internal/cache"
	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/model"
)

func TestNewAndRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.SQLitePath = filepath.Join(dir, "powermatch.db")
	cfg.Cache.Kind = config.CacheSQLite
	cfg.Sources = []config.SourceConfig{{Name: "A", ReliabilityScore: 2}, {Name: "B", ReliabilityScore: 1}}

	ctx := context.Background()
	a, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close(ctx)
	assert.Nil(t, a.Exporter)

	res, err := a.Matcher.Run(ctx, []model.Dataset{
		{Source: "A", Records: []model.Record{{RecordID: "a1", Name: "Kraftwerk Boxberg", Country: "DE", Fueltype: "Lignite", CapacityMW: 2575}}},
		{Source: "B", Records: []model.Record{{RecordID: "b1", Name: "Kraftwerk Boxberg", Country: "DE", Fueltype: "Lignite", CapacityMW: 2575}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Plants, 1)
	assert.Equal(t, map[string][]string{"A": {"a1"}, "B": {"b1"}}, res.Plants[0].ProjectID)

	keys, err := a.Cache.Keys(ctx, "matches/A_B")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestOpenCache(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()

	c, err := OpenCache(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.FileStore{}, c)

	cfg.Cache.Kind = config.CacheMemory
	c, err = OpenCache(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryStore{}, c)

	cfg.Cache.Kind = config.CacheSQLite
	_, err = OpenCache(cfg, nil, nil)
	assert.Error(t, err)
}
