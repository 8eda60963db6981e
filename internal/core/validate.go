package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/agenthands/powermatch/internal/core/model"
)

// Validate drops records violating the shared schema and reports each one. Surviving records are
// trimmed and stamped with the source label.
func Validate(source string, records []model.Record) ([]model.Record, []model.Issue) {
	var (
		out    = make([]model.Record, 0, len(records))
		issues []model.Issue
		seen   = make(map[string]bool, len(records))
	)
	drop := func(id, reason string) {
		issues = append(issues, model.Issue{
			Kind:     model.KindDroppedRecord,
			Severity: model.SeverityWarning,
			Source:   source,
			RecordID: id,
			Detail:   fmt.Sprintf("%s: %s", model.ErrSchemaViolation, reason),
		})
	}

	for i, r := range records {
		r.RecordID = strings.TrimSpace(r.RecordID)
		r.Name = strings.TrimSpace(r.Name)
		r.Country = strings.TrimSpace(r.Country)
		r.Fueltype = strings.TrimSpace(r.Fueltype)
		r.Set = strings.TrimSpace(r.Set)
		r.SourceID = source

		switch {
		case r.RecordID == "":
			drop("", fmt.Sprintf("row %d has no record id", i))
			continue
		case seen[r.RecordID]:
			drop(r.RecordID, "duplicate record id")
			continue
		case math.IsNaN(r.CapacityMW) || math.IsInf(r.CapacityMW, 0) || r.CapacityMW <= 0:
			drop(r.RecordID, fmt.Sprintf("capacity %v is not positive", r.CapacityMW))
			continue
		case r.Set != "" && r.Set != model.SetPP && r.Set != model.SetCHP && r.Set != model.SetStore:
			drop(r.RecordID, fmt.Sprintf("unknown set %q", r.Set))
			continue
		}
		if (r.Lat == nil) != (r.Lon == nil) {
			r.Lat, r.Lon = nil, nil
		}
		seen[r.RecordID] = true
		out = append(out, r)
	}
	return out, issues
}
