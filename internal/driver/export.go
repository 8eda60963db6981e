package driver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/core/common"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
)

const exportBatchSize = 500

// Exporter writes run results as a graph: (:Run)-[:CONTAINS]->(:Plant)-[:PROVIDED_BY]->(:Unit).
type Exporter struct {
	Driver GraphDriver
	logger *zap.Logger
}

func NewExporter(d GraphDriver, logger *zap.Logger) *Exporter {
	return &Exporter{Driver: d, logger: logging.OrNop(logger).Named("export")}
}

// Export replaces any previous export of the same run.
func (e *Exporter) Export(ctx context.Context, res *model.Result) error {
	if _, err := e.Driver.ExecuteQuery(ctx, DeleteRunQuery, map[string]interface{}{"run_id": res.RunID}); err != nil {
		return fmt.Errorf("failed to clear previous export: %w", err)
	}

	_, err := e.Driver.ExecuteQuery(ctx, SaveRunQuery, map[string]interface{}{
		"run_id":      res.RunID,
		"sources":     res.Sources,
		"plants":      int64(len(res.Plants)),
		"exported_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	plants := make([]interface{}, 0, len(res.Plants))
	var units []interface{}
	for _, p := range res.Plants {
		key := PlantKey(res.RunID, p.ID)
		plants = append(plants, plantParams(key, p))

		sources := make([]string, 0, len(p.ProjectID))
		for s := range p.ProjectID {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		for _, s := range sources {
			units = append(units, map[string]interface{}{
				"plant_key":  key,
				"key":        key + "/" + s,
				"source":     s,
				"record_ids": p.ProjectID[s],
			})
		}
	}

	for _, rng := range common.Chunk(len(plants), exportBatchSize) {
		if _, err := e.Driver.ExecuteQuery(ctx, SavePlantsQuery, map[string]interface{}{
			"run_id": res.RunID,
			"plants": plants[rng[0]:rng[1]],
		}); err != nil {
			return fmt.Errorf("failed to save plants: %w", err)
		}
	}
	for _, rng := range common.Chunk(len(units), exportBatchSize) {
		if _, err := e.Driver.ExecuteQuery(ctx, SaveUnitsQuery, map[string]interface{}{
			"units": units[rng[0]:rng[1]],
		}); err != nil {
			return fmt.Errorf("failed to save units: %w", err)
		}
	}

	e.logger.Info("exported run", zap.String("run_id", res.RunID), zap.Int("plants", len(plants)), zap.Int("units", len(units)))
	return nil
}

// PlantKey identifies a plant node across runs.
func PlantKey(runID string, id int) string {
	return fmt.Sprintf("%s/%d", runID, id)
}

func plantParams(key string, p model.Plant) map[string]interface{} {
	return map[string]interface{}{
		"key":           key,
		"plant_id":      int64(p.ID),
		"name":          p.Name,
		"fueltype":      p.Fueltype,
		"technology":    p.Technology,
		"set":           p.Set,
		"country":       p.Country,
		"capacity_mw":   p.CapacityMW,
		"efficiency":    floatOrNil(p.Efficiency),
		"lat":           floatOrNil(p.Lat),
		"lon":           floatOrNil(p.Lon),
		"date_in":       intOrNil(p.DateIn),
		"date_retrofit": intOrNil(p.DateRetrofit),
		"date_mothball": intOrNil(p.DateMothball),
		"date_out":      intOrNil(p.DateOut),
		"eic":           p.EIC,
	}
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}
