// Package tabular reads cleaned source datasets and writes run artifacts as flat files.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agenthands/powermatch/internal/core/model"
)

// ErrMissingColumn is returned when a dataset lacks the record id column.
var ErrMissingColumn = errors.New("missing column")

// Accepted header spellings, lower case.
var columnAliases = map[string][]string{
	"id":           {"projectid", "project_id", "id", "record_id"},
	"name":         {"name"},
	"country":      {"country"},
	"fueltype":     {"fueltype"},
	"technology":   {"technology"},
	"set":          {"set"},
	"capacity":     {"capacity", "capacity_mw"},
	"efficiency":   {"efficiency"},
	"lat":          {"lat"},
	"lon":          {"lon"},
	"datein":       {"datein", "date_in"},
	"dateretrofit": {"dateretrofit", "date_retrofit"},
	"datemothball": {"datemothball", "date_mothball"},
	"dateout":      {"dateout", "date_out"},
	"eic":          {"eic"},
}

// ListSeparator joins multi-valued cells such as EIC codes.
const ListSeparator = ";"

// ReadRecords parses one source's cleaned CSV. Cells that do not parse are left empty so that
// validation can report the record; the capacity of such a record is zero.
func ReadRecords(r io.Reader, source string) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}
	cols := mapColumns(header)
	if _, ok := cols["id"]; !ok {
		return nil, fmt.Errorf("%w: %s has no record id column", ErrMissingColumn, source)
	}

	var out []model.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		rec := model.Record{
			SourceID:     source,
			RecordID:     get("id"),
			Name:         get("name"),
			Country:      get("country"),
			Fueltype:     get("fueltype"),
			Technology:   get("technology"),
			Set:          get("set"),
			Efficiency:   parseFloat(get("efficiency")),
			Lat:          parseFloat(get("lat")),
			Lon:          parseFloat(get("lon")),
			DateIn:       parseYear(get("datein")),
			DateRetrofit: parseYear(get("dateretrofit")),
			DateMothball: parseYear(get("datemothball")),
			DateOut:      parseYear(get("dateout")),
			EIC:          splitList(get("eic")),
		}
		if c := parseFloat(get("capacity")); c != nil {
			rec.CapacityMW = *c
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadDir reads <dir>/<source>.csv for every source.
func LoadDir(dir string, sources []string) ([]model.Dataset, error) {
	out := make([]model.Dataset, 0, len(sources))
	for _, s := range sources {
		path := filepath.Join(dir, s+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset %s: %w", s, err)
		}
		records, err := ReadRecords(f, s)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, model.Dataset{Source: s, Records: records})
	}
	return out, nil
}

func mapColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	cols := make(map[string]int)
	for name, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[name] = i
				break
			}
		}
	}
	return cols
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// parseYear accepts "1980" and "1980.0".
func parseYear(s string) *int {
	f := parseFloat(s)
	if f == nil {
		return nil
	}
	y := int(math.Round(*f))
	return &y
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ListSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
