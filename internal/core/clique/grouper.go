package clique

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
)

// Grouper partitions the records of one source into groups of mutual duplicates.
type Grouper struct {
	logger *zap.Logger
}

func NewGrouper(logger *zap.Logger) *Grouper {
	return &Grouper{logger: logging.OrNop(logger).Named("clique")}
}

// Result is the grouping of one source plus the issues raised while building it.
type Result struct {
	Grouping   model.Grouping
	Cliques    int
	Components int
	Issues     []model.Issue
}

// Group builds the compatibility graph from reciprocal duplicate judgments and assigns every record
// to exactly one group. Judgments naming unknown records are dropped with a warning.
//
// Records are numbered by input order. Maximal cliques are ranked by size (larger first) and then by
// their member indices; each clique claims its still unassigned members. A record contained in a
// clique ranked earlier keeps that group and the overlap is reported as ambiguous.
func (g *Grouper) Group(source string, records []model.Record, judgments []model.MatchLink) Result {
	index := make(map[string]int, len(records))
	for i, r := range records {
		if _, dup := index[r.RecordID]; !dup {
			index[r.RecordID] = i
		}
	}

	var issues []model.Issue
	directed := make(map[[2]int]bool)
	for _, j := range judgments {
		a, okA := index[j.RecordA]
		b, okB := index[j.RecordB]
		if !okA || !okB {
			missing := j.RecordA
			if okA {
				missing = j.RecordB
			}
			g.logger.Warn("dropping duplicate judgment with unknown record",
				zap.String("source", source),
				zap.String("record_a", j.RecordA),
				zap.String("record_b", j.RecordB))
			issues = append(issues, model.Issue{
				Kind:     model.KindDroppedEdge,
				Severity: model.SeverityWarning,
				Source:   source,
				RecordID: missing,
				Detail:   fmt.Sprintf("judgment %s -> %s references an unknown record", j.RecordA, j.RecordB),
			})
			continue
		}
		if a == b {
			continue
		}
		directed[[2]int{a, b}] = true
	}

	gr := newGraph(len(records))
	oneSided := 0
	for _, j := range judgments {
		a, okA := index[j.RecordA]
		b, okB := index[j.RecordB]
		if !okA || !okB || a == b {
			continue
		}
		if directed[[2]int{b, a}] {
			gr.addEdge(a, b)
		} else {
			oneSided++
		}
	}
	gr.finalize()
	if oneSided > 0 {
		g.logger.Debug("ignoring one-sided duplicate judgments",
			zap.String("source", source), zap.Int("count", oneSided))
	}

	cliques := gr.maximalCliques()
	sort.SliceStable(cliques, func(i, j int) bool {
		if len(cliques[i]) != len(cliques[j]) {
			return len(cliques[i]) > len(cliques[j])
		}
		return lessInts(cliques[i], cliques[j])
	})

	assigned := make([]int, len(records))
	for i := range assigned {
		assigned[i] = -1
	}
	var groups [][]int
	for _, c := range cliques {
		var free, taken []int
		for _, m := range c {
			if assigned[m] >= 0 {
				taken = append(taken, m)
			} else {
				free = append(free, m)
			}
		}
		if len(taken) > 0 {
			issues = append(issues, g.ambiguity(source, records, c, taken))
		}
		if len(free) < 2 {
			continue
		}
		for _, m := range free {
			assigned[m] = len(groups)
		}
		groups = append(groups, free)
	}
	for i := range records {
		if assigned[i] < 0 {
			assigned[i] = len(groups)
			groups = append(groups, []int{i})
		}
	}

	// Number groups by their first member in input order.
	sort.SliceStable(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })

	grouping := model.Grouping{
		SourceID:    source,
		Groups:      make([]model.Group, len(groups)),
		Assignments: make(map[string]int, len(records)),
	}
	for gid, members := range groups {
		ids := make([]string, len(members))
		for k, m := range members {
			ids[k] = records[m].RecordID
			grouping.Assignments[records[m].RecordID] = gid
		}
		grouping.Groups[gid] = model.Group{ID: gid, SourceID: source, Members: ids}
	}

	components := gr.components()
	g.logger.Debug("grouped records",
		zap.String("source", source),
		zap.Int("records", len(records)),
		zap.Int("cliques", len(cliques)),
		zap.Int("components", len(components)),
		zap.Int("groups", len(groups)))

	return Result{
		Grouping:   grouping,
		Cliques:    len(cliques),
		Components: len(components),
		Issues:     issues,
	}
}

func (g *Grouper) ambiguity(source string, records []model.Record, clique, taken []int) model.Issue {
	ids := make([]string, len(taken))
	for i, m := range taken {
		ids[i] = records[m].RecordID
	}
	members := make([]string, len(clique))
	for i, m := range clique {
		members[i] = records[m].RecordID
	}
	g.logger.Warn("record belongs to several maximal cliques",
		zap.String("source", source),
		zap.Strings("records", ids),
		zap.Strings("clique", members))
	return model.Issue{
		Kind:     model.KindAmbiguousClique,
		Severity: model.SeverityWarning,
		Source:   source,
		RecordID: ids[0],
		Detail: fmt.Sprintf("records [%s] already grouped; clique [%s] keeps the remainder",
			strings.Join(ids, ", "), strings.Join(members, ", ")),
	}
}

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Singletons returns the grouping in which every record is its own group. Used for sources that are
// already published at unit level.
func Singletons(source string, records []model.Record) model.Grouping {
	grouping := model.Grouping{
		SourceID:    source,
		Groups:      make([]model.Group, len(records)),
		Assignments: make(map[string]int, len(records)),
	}
	for i, r := range records {
		grouping.Groups[i] = model.Group{ID: i, SourceID: source, Members: []string{r.RecordID}}
		grouping.Assignments[r.RecordID] = i
	}
	return grouping
}
