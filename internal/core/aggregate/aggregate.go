// Package aggregate collapses the groups of one source into unit records.
package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/agenthands/powermatch/internal/core/model"
)

// Units turns every group of a grouping into one unit record. The unit keeps the record id of the
// group's first member; ProjectIDs lists all member ids. Units come out in group id order.
//
// Name, Fueltype, Technology, Set and Country take the most frequent value (ties go to the value seen
// first). Capacity is summed, coordinates averaged, DateIn, DateMothball and DateOut take the minimum,
// DateRetrofit the maximum, EIC codes are united and Efficiency is capacity weighted.
func Units(records []model.Record, grouping model.Grouping) []model.Record {
	byID := make(map[string]model.Record, len(records))
	for _, r := range records {
		if _, ok := byID[r.RecordID]; !ok {
			byID[r.RecordID] = r
		}
	}

	units := make([]model.Record, 0, len(grouping.Groups))
	for _, g := range grouping.Groups {
		members := make([]model.Record, 0, len(g.Members))
		for _, id := range g.Members {
			if r, ok := byID[id]; ok {
				members = append(members, r)
			}
		}
		if len(members) == 0 {
			continue
		}
		units = append(units, Unit(members))
	}
	return units
}

// Unit aggregates the members of one group.
func Unit(members []model.Record) model.Record {
	first := members[0]
	u := model.Record{
		SourceID:   first.SourceID,
		RecordID:   first.RecordID,
		Name:       mode(members, func(r model.Record) string { return r.Name }),
		Country:    mode(members, func(r model.Record) string { return r.Country }),
		Fueltype:   mode(members, func(r model.Record) string { return r.Fueltype }),
		Technology: mode(members, func(r model.Record) string { return r.Technology }),
		Set:        mode(members, func(r model.Record) string { return r.Set }),
	}

	capacity := decimal.Zero
	weighted := decimal.Zero
	weightedCap := decimal.Zero
	var latSum, lonSum decimal.Decimal
	coords := 0
	eic := newOrderedSet()

	for _, m := range members {
		c := decimal.NewFromFloat(m.CapacityMW)
		capacity = capacity.Add(c)
		if m.Efficiency != nil {
			weighted = weighted.Add(decimal.NewFromFloat(*m.Efficiency).Mul(c))
			weightedCap = weightedCap.Add(c)
		}
		if m.HasCoords() {
			latSum = latSum.Add(decimal.NewFromFloat(*m.Lat))
			lonSum = lonSum.Add(decimal.NewFromFloat(*m.Lon))
			coords++
		}
		u.DateIn = minYear(u.DateIn, m.DateIn)
		u.DateRetrofit = maxYear(u.DateRetrofit, m.DateRetrofit)
		u.DateMothball = minYear(u.DateMothball, m.DateMothball)
		u.DateOut = minYear(u.DateOut, m.DateOut)
		eic.add(m.EIC...)
		if len(m.ProjectIDs) > 0 {
			u.ProjectIDs = append(u.ProjectIDs, m.ProjectIDs...)
		} else {
			u.ProjectIDs = append(u.ProjectIDs, m.RecordID)
		}
	}

	u.CapacityMW = capacity.InexactFloat64()
	if weightedCap.IsPositive() {
		eff := weighted.DivRound(weightedCap, 6).InexactFloat64()
		u.Efficiency = &eff
	}
	if coords > 0 {
		n := decimal.NewFromInt(int64(coords))
		lat := latSum.DivRound(n, 6).InexactFloat64()
		lon := lonSum.DivRound(n, 6).InexactFloat64()
		u.Lat, u.Lon = &lat, &lon
	}
	u.EIC = eic.values()
	return u
}

func mode(members []model.Record, field func(model.Record) string) string {
	counts := make(map[string]int)
	var order []string
	for _, m := range members {
		v := strings.TrimSpace(field(m))
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func minYear(cur, v *int) *int {
	if v == nil {
		return cur
	}
	if cur == nil || *v < *cur {
		return model.IntPtr(*v)
	}
	return cur
}

func maxYear(cur, v *int) *int {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		return model.IntPtr(*v)
	}
	return cur
}

type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || s.seen[v] {
			continue
		}
		s.seen[v] = true
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) values() []string {
	if len(s.order) == 0 {
		return nil
	}
	return append([]string(nil), s.order...)
}
