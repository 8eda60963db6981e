// Package reduce turns combined match rows into canonical plants.
package reduce

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
)

type Reducer struct {
	logger *zap.Logger
}

func NewReducer(logger *zap.Logger) *Reducer {
	return &Reducer{logger: logging.OrNop(logger).Named("reduce")}
}

// Ranking orders labels by reliability, highest first, ties by label. Labels without a score follow
// in label order and are reported.
func Ranking(labels []string, reliability map[string]float64) ([]string, []model.Issue) {
	var ranked, unranked []string
	for _, l := range model.SortedSources(labels) {
		if _, ok := reliability[l]; ok {
			ranked = append(ranked, l)
		} else {
			unranked = append(unranked, l)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return reliability[ranked[i]] > reliability[ranked[j]]
	})

	var issues []model.Issue
	for _, l := range unranked {
		issues = append(issues, model.Issue{
			Kind:     model.KindUnranked,
			Severity: model.SeverityWarning,
			Source:   l,
			Detail:   "no reliability score configured, ranked last",
		})
	}
	return append(ranked, unranked...), issues
}

// Index maps source label to unit record id to unit record.
type Index map[string]map[string]model.Record

func NewIndex(units map[string][]model.Record) Index {
	idx := make(Index, len(units))
	for source, records := range units {
		m := make(map[string]model.Record, len(records))
		for _, r := range records {
			if _, ok := m[r.RecordID]; !ok {
				m[r.RecordID] = r
			}
		}
		idx[source] = m
	}
	return idx
}

// Reduce builds one plant per row. Slots are resolved through units; a slot naming an unknown unit
// record is an error. Plant ids are row positions.
func (r *Reducer) Reduce(rows []model.CombinedMatchRow, labels []string, units Index, ranking []string) ([]model.Plant, error) {
	column := make(map[string]int, len(labels))
	for i, l := range labels {
		column[l] = i
	}

	plants := make([]model.Plant, 0, len(rows))
	for i, row := range rows {
		var members []member
		for _, source := range ranking {
			col, ok := column[source]
			if !ok || col >= len(row.IDs) || row.IDs[col] == "" {
				continue
			}
			rec, ok := units[source][row.IDs[col]]
			if !ok {
				return nil, fmt.Errorf("row %d references unknown %s unit %q", i, source, row.IDs[col])
			}
			members = append(members, member{source: source, rec: rec})
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("row %d has no ranked source", i)
		}
		plants = append(plants, reduce(i, members))
	}
	r.logger.Info("reduced combined rows", zap.Int("plants", len(plants)))
	return plants, nil
}

type member struct {
	source string
	rec    model.Record
}

// reduce applies the field policies to members given in reliability order.
func reduce(id int, members []member) model.Plant {
	p := model.Plant{ID: id, ProjectID: make(map[string][]string, len(members))}

	p.Name = first(members, func(r model.Record) string { return r.Name })
	p.Technology = normalizeTechnology(first(members, func(r model.Record) string { return r.Technology }))
	p.Set = first(members, func(r model.Record) string { return r.Set })
	p.Country = first(members, func(r model.Record) string { return r.Country })
	p.Fueltype = fueltype(members)

	eic := make(map[string]bool)
	for _, m := range members {
		r := m.rec
		if p.CapacityMW == 0 && r.CapacityMW > 0 {
			p.CapacityMW = r.CapacityMW
		}
		if p.Efficiency == nil && r.Efficiency != nil {
			p.Efficiency = model.FloatPtr(*r.Efficiency)
		}
		if p.Lat == nil && r.HasCoords() {
			p.Lat, p.Lon = model.FloatPtr(*r.Lat), model.FloatPtr(*r.Lon)
		}
		if p.DateMothball == nil && r.DateMothball != nil {
			p.DateMothball = model.IntPtr(*r.DateMothball)
		}
		if p.DateOut == nil && r.DateOut != nil {
			p.DateOut = model.IntPtr(*r.DateOut)
		}
		if r.DateIn != nil && (p.DateIn == nil || *r.DateIn < *p.DateIn) {
			p.DateIn = model.IntPtr(*r.DateIn)
		}
		if r.DateRetrofit != nil && (p.DateRetrofit == nil || *r.DateRetrofit > *p.DateRetrofit) {
			p.DateRetrofit = model.IntPtr(*r.DateRetrofit)
		}
		for _, code := range r.EIC {
			code = strings.TrimSpace(code)
			if code != "" && !eic[code] {
				eic[code] = true
				p.EIC = append(p.EIC, code)
			}
		}
		if len(r.ProjectIDs) > 0 {
			p.ProjectID[m.source] = append([]string(nil), r.ProjectIDs...)
		} else {
			p.ProjectID[m.source] = []string{r.RecordID}
		}
	}
	return p
}

func first(members []member, field func(model.Record) string) string {
	for _, m := range members {
		if v := strings.TrimSpace(field(m.rec)); v != "" {
			return v
		}
	}
	return ""
}

// fueltype prefers any concrete fueltype over "Other".
func fueltype(members []member) string {
	sawOther := false
	for _, m := range members {
		v := strings.TrimSpace(m.rec.Fueltype)
		switch {
		case v == "":
		case strings.EqualFold(v, model.FueltypeOther):
			sawOther = true
		default:
			return v
		}
	}
	if sawOther {
		return model.FueltypeOther
	}
	return ""
}

// normalizeTechnology splits comma separated values, trims and deduplicates them.
func normalizeTechnology(v string) string {
	if v == "" {
		return ""
	}
	seen := make(map[string]bool)
	var parts []string
	for _, t := range strings.Split(v, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		parts = append(parts, t)
	}
	return strings.Join(parts, ", ")
}
