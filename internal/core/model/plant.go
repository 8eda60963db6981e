package model

// Plant is the canonical record of one physical plant after reduction.
type Plant struct {
	ID           int                 `json:"id"`
	Name         string              `json:"name"`
	Fueltype     string              `json:"fueltype"`
	Technology   string              `json:"technology,omitempty"`
	Set          string              `json:"set,omitempty"`
	Country      string              `json:"country"`
	CapacityMW   float64             `json:"capacity_mw"`
	Efficiency   *float64            `json:"efficiency,omitempty"`
	Lat          *float64            `json:"lat,omitempty"`
	Lon          *float64            `json:"lon,omitempty"`
	DateIn       *int                `json:"date_in,omitempty"`
	DateRetrofit *int                `json:"date_retrofit,omitempty"`
	DateMothball *int                `json:"date_mothball,omitempty"`
	DateOut      *int                `json:"date_out,omitempty"`
	EIC          []string            `json:"eic,omitempty"`
	ProjectID    map[string][]string `json:"project_id"`
}

// Sources lists the contributing source labels in the order given by labels.
func (p Plant) Sources(labels []string) []string {
	var out []string
	for _, l := range labels {
		if _, ok := p.ProjectID[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Result is the output of one matching run.
type Result struct {
	RunID       string               `json:"run_id"`
	Sources     []string             `json:"sources"`
	Groupings   []Grouping           `json:"groupings"`
	Tables      []PairwiseMatchTable `json:"tables"`
	Combined    []CombinedMatchRow   `json:"combined"`
	Plants      []Plant              `json:"plants"`
	Diagnostics *Diagnostics         `json:"diagnostics"`
}
