package model

import "strings"

// Plant set classification.
const (
	SetPP    = "PP"
	SetCHP   = "CHP"
	SetStore = "Store"
)

// FueltypeOther is the catch-all fueltype. It loses against any concrete value during reduction.
const FueltypeOther = "Other"

// Record is one cleaned row of a source dataset. After group aggregation the same type carries a unit
// record, in which case ProjectIDs lists the original member record ids.
type Record struct {
	SourceID     string   `json:"source_id"`
	RecordID     string   `json:"record_id"`
	Name         string   `json:"name"`
	Country      string   `json:"country"`
	Fueltype     string   `json:"fueltype"`
	Technology   string   `json:"technology,omitempty"`
	Set          string   `json:"set,omitempty"`
	CapacityMW   float64  `json:"capacity_mw"`
	Efficiency   *float64 `json:"efficiency,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	DateIn       *int     `json:"date_in,omitempty"`
	DateRetrofit *int     `json:"date_retrofit,omitempty"`
	DateMothball *int     `json:"date_mothball,omitempty"`
	DateOut      *int     `json:"date_out,omitempty"`
	EIC          []string `json:"eic,omitempty"`
	ProjectIDs   []string `json:"project_ids,omitempty"`
}

// HasCoords reports whether both coordinates are known.
func (r Record) HasCoords() bool {
	return r.Lat != nil && r.Lon != nil
}

// Dataset is the record collection of one source.
type Dataset struct {
	Source  string   `json:"source"`
	Records []Record `json:"records"`
}

// Countries returns the distinct non-empty countries of records in first-seen order.
func Countries(records []Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		c := strings.TrimSpace(r.Country)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// ByCountry returns the records of one country, preserving input order.
func ByCountry(records []Record, country string) []Record {
	var out []Record
	for _, r := range records {
		if strings.TrimSpace(r.Country) == country {
			out = append(out, r)
		}
	}
	return out
}

func IntPtr(v int) *int           { return &v }
func FloatPtr(v float64) *float64 { return &v }
