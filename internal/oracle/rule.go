package oracle

import (
	"context"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/xrash/smetrics"

	"github.com/agenthands/powermatch/internal/core/model"
)

// RuleWeights controls how the rule scorer blends its signals.
type RuleWeights struct {
	Name     float64
	Capacity float64
	Geo      float64
	// MaxDistanceKm is the distance at which the geo signal drops to zero.
	MaxDistanceKm float64
}

func DefaultRuleWeights() RuleWeights {
	return RuleWeights{Name: 0.5, Capacity: 0.25, Geo: 0.25, MaxDistanceKm: 20}
}

// RuleOracle is a deterministic scorer combining Jaro-Winkler name similarity, capacity ratio and
// geographic distance. Records with two different concrete fueltypes never match.
type RuleOracle struct {
	Threshold float64
	Weights   RuleWeights
}

var _ SimilarityOracle = (*RuleOracle)(nil)

func NewRuleOracle(threshold float64) *RuleOracle {
	return &RuleOracle{Threshold: threshold, Weights: DefaultRuleWeights()}
}

func (o *RuleOracle) Duplicates(ctx context.Context, p DedupPartition) ([]model.MatchLink, error) {
	var out []model.MatchLink
	for i := range p.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(p.Records); j++ {
			a, b := p.Records[i], p.Records[j]
			s := o.Score(a, b)
			if s < o.Threshold {
				continue
			}
			out = append(out,
				model.MatchLink{SourceA: p.Source, RecordA: a.RecordID, SourceB: p.Source, RecordB: b.RecordID, Score: s},
				model.MatchLink{SourceA: p.Source, RecordA: b.RecordID, SourceB: p.Source, RecordB: a.RecordID, Score: s},
			)
		}
	}
	return out, nil
}

func (o *RuleOracle) Link(ctx context.Context, p LinkPartition) ([]model.MatchLink, error) {
	var out []model.MatchLink
	for _, a := range p.A {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, b := range p.B {
			s := o.Score(a, b)
			if s < o.Threshold {
				continue
			}
			out = append(out, model.MatchLink{
				SourceA: p.SourceA, RecordA: a.RecordID,
				SourceB: p.SourceB, RecordB: b.RecordID,
				Score: s,
			})
		}
	}
	return out, nil
}

// Score returns a similarity in [0,1].
func (o *RuleOracle) Score(a, b model.Record) float64 {
	if conflictingFuel(a.Fueltype, b.Fueltype) {
		return 0
	}

	w := o.Weights
	total := w.Name + w.Capacity
	score := w.Name*nameSimilarity(a.Name, b.Name) + w.Capacity*capacitySimilarity(a.CapacityMW, b.CapacityMW)
	if a.HasCoords() && b.HasCoords() && w.MaxDistanceKm > 0 {
		km := geo.Distance(orb.Point{*a.Lon, *a.Lat}, orb.Point{*b.Lon, *b.Lat}) / 1000
		score += w.Geo * math.Max(0, 1-km/w.MaxDistanceKm)
		total += w.Geo
	}
	if total == 0 {
		return 0
	}
	return math.Round(score/total*1e6) / 1e6
}

func nameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

func capacitySimilarity(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return math.Min(a, b) / math.Max(a, b)
}

func conflictingFuel(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == model.FueltypeOther || b == model.FueltypeOther {
		return false
	}
	return !strings.EqualFold(a, b)
}
