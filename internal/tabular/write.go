package tabular

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agenthands/powermatch/internal/core/model"
)

// Artifact file names inside a run directory.
const (
	PlantsFile      = "plants.csv"
	CombinedFile    = "combined.csv"
	DiagnosticsFile = "diagnostics.json"
	MatchesDir      = "matches"
)

var plantHeader = []string{
	"id", "Name", "Fueltype", "Technology", "Set", "Country", "Capacity", "Efficiency",
	"DateIn", "DateRetrofit", "DateMothball", "DateOut", "lat", "lon", "EIC", "projectID",
}

// WritePlants writes one line per plant. projectID is a JSON object keyed by source.
func WritePlants(w io.Writer, plants []model.Plant) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(plantHeader); err != nil {
		return err
	}
	for _, p := range plants {
		pid, err := json.Marshal(p.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to encode project ids of plant %d: %w", p.ID, err)
		}
		if err := cw.Write([]string{
			strconv.Itoa(p.ID), p.Name, p.Fueltype, p.Technology, p.Set, p.Country,
			formatFloat(&p.CapacityMW), formatFloat(p.Efficiency),
			formatYear(p.DateIn), formatYear(p.DateRetrofit), formatYear(p.DateMothball), formatYear(p.DateOut),
			formatFloat(p.Lat), formatFloat(p.Lon),
			strings.Join(p.EIC, ListSeparator), string(pid),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCombined writes one column per source label.
func WriteCombined(w io.Writer, rows []model.CombinedMatchRow, labels []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(labels); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.IDs); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes a pairwise table with the two source labels as id columns.
func WriteTable(w io.Writer, t model.PairwiseMatchTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{t.SourceA, t.SourceB, "score"}); err != nil {
		return err
	}
	for _, p := range t.Pairs {
		if err := cw.Write([]string{p.A, p.B, strconv.FormatFloat(p.Score, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteDiagnostics(w io.Writer, d *model.Diagnostics) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

type artifact struct {
	name  string
	write func(io.Writer) error
}

// WriteRun stores all artifacts of a result below dir/<run id>/ and returns that directory.
func WriteRun(dir string, res *model.Result) (string, error) {
	runDir := filepath.Join(dir, res.RunID)
	if err := os.MkdirAll(filepath.Join(runDir, MatchesDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create run dir: %w", err)
	}

	files := []artifact{
		{PlantsFile, func(w io.Writer) error { return WritePlants(w, res.Plants) }},
		{CombinedFile, func(w io.Writer) error { return WriteCombined(w, res.Combined, res.Sources) }},
		{DiagnosticsFile, func(w io.Writer) error { return WriteDiagnostics(w, res.Diagnostics) }},
	}
	for _, t := range res.Tables {
		t := t
		name := filepath.Join(MatchesDir, model.PairKey(t.SourceA, t.SourceB)+".csv")
		files = append(files, artifact{name, func(w io.Writer) error { return WriteTable(w, t) }})
	}

	for _, f := range files {
		if err := writeFile(filepath.Join(runDir, f.name), f.write); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatYear(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
