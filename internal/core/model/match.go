package model

import "sort"

// MatchLink is a scored candidate correspondence between two records. For intra-dataset duplicate
// detection SourceA == SourceB and the link is a directed judgment RecordA -> RecordB.
type MatchLink struct {
	SourceA string  `json:"source_a"`
	RecordA string  `json:"record_a"`
	SourceB string  `json:"source_b"`
	RecordB string  `json:"record_b"`
	Score   float64 `json:"score"`
}

// Pair is one accepted row of a pairwise match table.
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// PairwiseMatchTable is the one-to-one match table of two sources. SourceA < SourceB.
type PairwiseMatchTable struct {
	SourceA string `json:"source_a"`
	SourceB string `json:"source_b"`
	Pairs   []Pair `json:"pairs"`
}

// Has reports whether the table covers the given source label.
func (t PairwiseMatchTable) Has(source string) bool {
	return t.SourceA == source || t.SourceB == source
}

// SortedPair orders two source labels.
func SortedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey is the canonical label of a source pair.
func PairKey(a, b string) string {
	a, b = SortedPair(a, b)
	return a + "_" + b
}

// CombinedMatchRow holds at most one unit record id per source. Empty string means no record.
type CombinedMatchRow struct {
	IDs []string `json:"ids"`
}

// Len counts the non-empty slots.
func (r CombinedMatchRow) Len() int {
	n := 0
	for _, id := range r.IDs {
		if id != "" {
			n++
		}
	}
	return n
}

// Nulls counts the empty slots.
func (r CombinedMatchRow) Nulls() int {
	return len(r.IDs) - r.Len()
}

// Group is a clique of records inside one source judged to be the same unit.
type Group struct {
	ID       int      `json:"id"`
	SourceID string   `json:"source_id"`
	Members  []string `json:"members"`
}

// Grouping is the partition of one source's records into groups.
type Grouping struct {
	SourceID    string         `json:"source_id"`
	Groups      []Group        `json:"groups"`
	Assignments map[string]int `json:"assignments"`
}

// SortedSources returns labels sorted ascending without duplicates.
func SortedSources(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
