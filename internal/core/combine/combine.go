// Package combine merges pairwise match tables into rows spanning all sources.
package combine

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
)

type Combiner struct {
	logger *zap.Logger
}

func NewCombiner(logger *zap.Logger) *Combiner {
	return &Combiner{logger: logging.OrNop(logger).Named("combine")}
}

type Result struct {
	Rows   []model.CombinedMatchRow
	Issues []model.Issue
}

type row []string

func (r row) key() string { return strings.Join(r, "\x00") }

func (r row) nulls() int {
	n := 0
	for _, id := range r {
		if id == "" {
			n++
		}
	}
	return n
}

// Combine joins the tables into rows with one slot per label, in label order.
//
// Each source contributes skeleton rows joining its records with their partners from every table it
// takes part in. Rows sharing an id and agreeing on every filled slot are merged until nothing changes.
// Remaining conflicts are settled column by column: among rows holding the same id the one with the
// fewest empty slots wins, ties going to the earlier row. Ids that lose every row they appeared in are
// reported as force resolved. An id left in two rows returns model.ErrGlobalInjectivity.
func (c *Combiner) Combine(tables []model.PairwiseMatchTable, labels []string) (Result, error) {
	column := make(map[string]int, len(labels))
	for i, l := range labels {
		if _, dup := column[l]; dup {
			return Result{}, fmt.Errorf("duplicate source label %q", l)
		}
		column[l] = i
	}
	tables = usable(tables, column, c.logger)

	rows := dedup(skeletons(tables, labels, column))
	skeletonRows := len(rows)
	rows = bridge(rows)
	bridged := len(rows)
	for col := range labels {
		rows = resolve(rows, col)
	}
	rows = dedup(rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].nulls() < rows[j].nulls() })

	if err := checkInjective(rows, labels); err != nil {
		return Result{}, err
	}

	issues := orphans(tables, rows, labels)
	for _, is := range issues {
		c.logger.Warn("force resolved conflicting match", zap.String("source", is.Source), zap.String("record", is.RecordID))
	}
	c.logger.Info("combined match tables",
		zap.Int("tables", len(tables)),
		zap.Int("skeleton_rows", skeletonRows),
		zap.Int("bridged_rows", bridged),
		zap.Int("rows", len(rows)),
		zap.Int("force_resolved", len(issues)))

	out := make([]model.CombinedMatchRow, len(rows))
	for i, r := range rows {
		out[i] = model.CombinedMatchRow{IDs: []string(r)}
	}
	return Result{Rows: out, Issues: issues}, nil
}

// usable drops tables of unknown or identical labels and keeps the first table of each pair,
// ordered by pair label.
func usable(tables []model.PairwiseMatchTable, column map[string]int, logger *zap.Logger) []model.PairwiseMatchTable {
	seen := make(map[string]bool)
	var out []model.PairwiseMatchTable
	for _, t := range tables {
		_, okA := column[t.SourceA]
		_, okB := column[t.SourceB]
		key := model.PairKey(t.SourceA, t.SourceB)
		if !okA || !okB || t.SourceA == t.SourceB || seen[key] {
			logger.Debug("ignoring match table", zap.String("pair", key))
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return model.PairKey(out[i].SourceA, out[i].SourceB) < model.PairKey(out[j].SourceA, out[j].SourceB)
	})
	return out
}

// skeletons builds, per label, the outer join of all tables containing it on that label's ids.
func skeletons(tables []model.PairwiseMatchTable, labels []string, column map[string]int) []row {
	var out []row
	for anchor, label := range labels {
		var order []string
		byID := make(map[string]row)
		for _, t := range tables {
			if !t.Has(label) {
				continue
			}
			for _, p := range t.Pairs {
				own, other, otherLabel := p.A, p.B, t.SourceB
				if t.SourceB == label {
					own, other, otherLabel = p.B, p.A, t.SourceA
				}
				if own == "" || other == "" {
					continue
				}
				r, ok := byID[own]
				if !ok {
					r = make(row, len(labels))
					r[anchor] = own
					byID[own] = r
					order = append(order, own)
				}
				r[column[otherLabel]] = other
			}
		}
		for _, id := range order {
			out = append(out, byID[id])
		}
	}
	return out
}

func dedup(rows []row) []row {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := r.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

type cell struct {
	col int
	id  string
}

// bridge merges rows that share an id and never disagree, repeating until no merge happens.
// Rows are visited in order and each absorbs later compatible rows.
func bridge(rows []row) []row {
	for {
		index := make(map[cell][]int)
		for i, r := range rows {
			for col, id := range r {
				if id != "" {
					index[cell{col, id}] = append(index[cell{col, id}], i)
				}
			}
		}

		merged := false
		dead := make([]bool, len(rows))
		for i := range rows {
			if dead[i] {
				continue
			}
			for col, id := range rows[i] {
				if id == "" {
					continue
				}
				for _, j := range index[cell{col, id}] {
					if j <= i || dead[j] || !compatible(rows[i], rows[j]) {
						continue
					}
					rows[i] = union(rows[i], rows[j])
					dead[j] = true
					merged = true
				}
			}
		}
		if !merged {
			return rows
		}

		alive := rows[:0:0]
		for i, r := range rows {
			if !dead[i] {
				alive = append(alive, r)
			}
		}
		rows = alive
	}
}

func compatible(a, b row) bool {
	for i := range a {
		if a[i] != "" && b[i] != "" && a[i] != b[i] {
			return false
		}
	}
	return true
}

func union(a, b row) row {
	out := make(row, len(a))
	for i := range a {
		out[i] = a[i]
		if out[i] == "" {
			out[i] = b[i]
		}
	}
	return out
}

// resolve keeps, for every id of column col, only its most complete row. Rows empty in col pass.
func resolve(rows []row, col int) []row {
	winner := make(map[string]int)
	for i, r := range rows {
		id := r[col]
		if id == "" {
			continue
		}
		if w, ok := winner[id]; !ok || r.nulls() < rows[w].nulls() {
			winner[id] = i
		}
	}
	out := rows[:0:0]
	for i, r := range rows {
		if r[col] == "" || winner[r[col]] == i {
			out = append(out, r)
		}
	}
	return out
}

func checkInjective(rows []row, labels []string) error {
	seen := make(map[cell]int)
	for i, r := range rows {
		for col, id := range r {
			if id == "" {
				continue
			}
			if prev, ok := seen[cell{col, id}]; ok {
				return fmt.Errorf("%w: %s record %s in rows %d and %d", model.ErrGlobalInjectivity, labels[col], id, prev, i)
			}
			seen[cell{col, id}] = i
		}
	}
	return nil
}

// orphans lists ids found in the tables but absent from the combined rows, in label then table order.
func orphans(tables []model.PairwiseMatchTable, rows []row, labels []string) []model.Issue {
	kept := make(map[cell]bool)
	for _, r := range rows {
		for col, id := range r {
			if id != "" {
				kept[cell{col, id}] = true
			}
		}
	}

	reported := make(map[cell]bool)
	var issues []model.Issue
	for col, label := range labels {
		for _, t := range tables {
			if !t.Has(label) {
				continue
			}
			for _, p := range t.Pairs {
				id := p.A
				if t.SourceB == label {
					id = p.B
				}
				c := cell{col, id}
				if id == "" || kept[c] || reported[c] {
					continue
				}
				reported[c] = true
				issues = append(issues, model.Issue{
					Kind:     model.KindForceResolved,
					Severity: model.SeverityWarning,
					Source:   label,
					RecordID: id,
					Detail:   "match dropped in favour of a better corroborated row",
				})
			}
		}
	}
	return issues
}
