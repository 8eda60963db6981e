package reduce

import (
	"slices"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/core/model"
)

// Extend appends a single-source plant for every unit of the given sources that no row references.
// Sources are visited in ranking order and units in input order. New plants continue the id sequence.
func (r *Reducer) Extend(plants []model.Plant, rows []model.CombinedMatchRow, labels []string, units map[string][]model.Record, ranking []string, sources []string) []model.Plant {
	used := make(map[string]map[string]bool, len(labels))
	for col, l := range labels {
		used[l] = make(map[string]bool)
		for _, row := range rows {
			if col < len(row.IDs) && row.IDs[col] != "" {
				used[l][row.IDs[col]] = true
			}
		}
	}

	next := len(plants)
	for _, p := range plants {
		if p.ID >= next {
			next = p.ID + 1
		}
	}

	added := 0
	for _, source := range ranking {
		if !slices.Contains(sources, source) {
			continue
		}
		for _, u := range units[source] {
			if used[source][u.RecordID] {
				continue
			}
			plants = append(plants, reduce(next, []member{{source: source, rec: u}}))
			next++
			added++
		}
	}
	r.logger.Info("extended by unmatched units", zap.Strings("sources", sources), zap.Int("plants", added))
	return plants
}

type RefineOptions struct {
	// LowReliability sources cannot back a plant on their own.
	LowReliability []string
	// AllowedCountries exempts plants of these countries from the low reliability rule.
	AllowedCountries    []string
	RemoveMissingCoords bool
}

// Refine drops plants backed only by low reliability sources outside the allowed countries and,
// optionally, plants without coordinates. Plant ids are kept.
func (r *Reducer) Refine(plants []model.Plant, opts RefineOptions) []model.Plant {
	out := make([]model.Plant, 0, len(plants))
	lowOnly, noCoords := 0, 0
	for _, p := range plants {
		if len(opts.LowReliability) > 0 && onlyLowReliability(p, opts.LowReliability) &&
			!slices.Contains(opts.AllowedCountries, p.Country) {
			lowOnly++
			continue
		}
		if opts.RemoveMissingCoords && (p.Lat == nil || p.Lon == nil) {
			noCoords++
			continue
		}
		out = append(out, p)
	}
	r.logger.Info("refined plants",
		zap.Int("kept", len(out)),
		zap.Int("low_reliability_only", lowOnly),
		zap.Int("missing_coords", noCoords))
	return out
}

func onlyLowReliability(p model.Plant, low []string) bool {
	if len(p.ProjectID) == 0 {
		return false
	}
	for source := range p.ProjectID {
		if !slices.Contains(low, source) {
			return false
		}
	}
	return true
}
