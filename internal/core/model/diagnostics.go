package model

import "sync"

// Stats counts what each stage consumed and produced.
type Stats struct {
	InputRecords   int `json:"input_records"`
	ValidRecords   int `json:"valid_records"`
	UnitRecords    int `json:"unit_records"`
	Partitions     int `json:"partitions"`
	CachedPairs    int `json:"cached_pairs"`
	Links          int `json:"links"`
	MatchedPairs   int `json:"matched_pairs"`
	CombinedRows   int `json:"combined_rows"`
	Plants         int `json:"plants"`
	ExtendedPlants int `json:"extended_plants"`
	FilteredPlants int `json:"filtered_plants"`
}

// Diagnostics accumulates issues raised while a run recovers from data-quality problems.
// Stages append to their own local slices and merge here at join points; the mutex only guards
// the merge.
type Diagnostics struct {
	mu     sync.Mutex
	Issues []Issue `json:"issues"`
	Stats  Stats   `json:"stats"`
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Add appends issues in the given order.
func (d *Diagnostics) Add(issues ...Issue) {
	if len(issues) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Issues = append(d.Issues, issues...)
}

// Count returns the number of issues of one kind.
func (d *Diagnostics) Count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, i := range d.Issues {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// Of returns the issues of one kind in insertion order.
func (d *Diagnostics) Of(kind string) []Issue {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Issue
	for _, i := range d.Issues {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}
