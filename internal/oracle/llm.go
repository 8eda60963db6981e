package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/core/common"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/llm"
	"github.com/agenthands/powermatch/internal/logging"
)

const linkPrompt = `You reconcile power plant inventories from two sources for country %s.

<SOURCE A: %s>
%s
</SOURCE A>

<SOURCE B: %s>
%s
</SOURCE B>

Instructions:
Identify pairs of records that describe the same physical power plant or generating unit.
Each record of SOURCE A may match at most one record of SOURCE B.
Return a JSON object with key "matches", a list of objects with "a_id", "b_id" and "confidence" (0.0-1.0).

Example JSON:
{
  "matches": [
    {"a_id": "A-17", "b_id": "B-4", "confidence": 0.92}
  ]
}
If there are none, return {"matches": []}.
`

const duplicatePrompt = `You clean a power plant inventory (%s, country %s).

<RECORDS>
%s
</RECORDS>

Instructions:
Identify records that describe the same physical power plant or generating unit, for example separate
turbine blocks listed as individual rows.
Return a JSON object with key "duplicates", a list of objects with "original_id", "duplicate_id" and
"confidence" (0.0-1.0). The original is the record listed first.

Example JSON:
{
  "duplicates": [
    {"original_id": "r1", "duplicate_id": "r7", "confidence": 0.9}
  ]
}
If there are none, return {"duplicates": []}.
`

type linkResponse struct {
	Matches []struct {
		AID        string  `json:"a_id"`
		BID        string  `json:"b_id"`
		Confidence float64 `json:"confidence"`
	} `json:"matches"`
}

type duplicateResponse struct {
	Duplicates []struct {
		OriginalID  string  `json:"original_id"`
		DuplicateID string  `json:"duplicate_id"`
		Confidence  float64 `json:"confidence"`
	} `json:"duplicates"`
}

// LLMOracle asks a language model for links and duplicates. Large partitions are split into blocks of
// BatchSize records per side; pairs spanning two blocks are never compared.
//
// Duplicate detection runs twice, once over the records in input order and once reversed. The first
// pass emits judgments from the lower to the higher input index, the second from higher to lower, so a
// pair only becomes reciprocal when both passes agree.
type LLMOracle struct {
	LLM       llm.LLMClient
	Threshold float64
	BatchSize int
	logger    *zap.Logger
}

var _ SimilarityOracle = (*LLMOracle)(nil)

func NewLLMOracle(client llm.LLMClient, threshold float64, batchSize int, logger *zap.Logger) *LLMOracle {
	return &LLMOracle{
		LLM:       client,
		Threshold: threshold,
		BatchSize: batchSize,
		logger:    logging.OrNop(logger).Named("llm-oracle"),
	}
}

func (o *LLMOracle) Link(ctx context.Context, p LinkPartition) ([]model.MatchLink, error) {
	var out []model.MatchLink
	for _, ra := range common.Chunk(len(p.A), o.BatchSize) {
		for _, rb := range common.Chunk(len(p.B), o.BatchSize) {
			a, b := p.A[ra[0]:ra[1]], p.B[rb[0]:rb[1]]
			prompt := fmt.Sprintf(linkPrompt, p.Country, p.SourceA, serializeRecords(a), p.SourceB, serializeRecords(b))

			response, err := o.LLM.Generate(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("failed to generate link result: %w", err)
			}
			result, err := common.ParseJSON[linkResponse](response)
			if err != nil {
				return nil, fmt.Errorf("failed to parse link result: %w", err)
			}

			knownA, knownB := ids(a), ids(b)
			for _, m := range result.Matches {
				if !knownA[m.AID] || !knownB[m.BID] {
					o.logger.Debug("ignoring link to unknown record",
						zap.String("partition", p.Label()), zap.String("a", m.AID), zap.String("b", m.BID))
					continue
				}
				if m.Confidence < o.Threshold {
					continue
				}
				out = append(out, model.MatchLink{
					SourceA: p.SourceA, RecordA: m.AID,
					SourceB: p.SourceB, RecordB: m.BID,
					Score: m.Confidence,
				})
			}
		}
	}
	return out, nil
}

func (o *LLMOracle) Duplicates(ctx context.Context, p DedupPartition) ([]model.MatchLink, error) {
	position := make(map[string]int, len(p.Records))
	for i, r := range p.Records {
		position[r.RecordID] = i
	}

	reversed := make([]model.Record, len(p.Records))
	for i, r := range p.Records {
		reversed[len(p.Records)-1-i] = r
	}

	var out []model.MatchLink
	for pass, records := range [][]model.Record{p.Records, reversed} {
		for _, rng := range common.Chunk(len(records), o.BatchSize) {
			block := records[rng[0]:rng[1]]
			prompt := fmt.Sprintf(duplicatePrompt, p.Source, p.Country, serializeRecords(block))

			response, err := o.LLM.Generate(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("failed to generate deduplication result: %w", err)
			}
			result, err := common.ParseJSON[duplicateResponse](response)
			if err != nil {
				return nil, fmt.Errorf("failed to parse deduplication result: %w", err)
			}

			known := ids(block)
			for _, d := range result.Duplicates {
				if !known[d.OriginalID] || !known[d.DuplicateID] || d.OriginalID == d.DuplicateID {
					continue
				}
				if d.Confidence < o.Threshold {
					continue
				}
				lo, hi := d.OriginalID, d.DuplicateID
				if position[lo] > position[hi] {
					lo, hi = hi, lo
				}
				from, to := lo, hi
				if pass == 1 {
					from, to = hi, lo
				}
				out = append(out, model.MatchLink{
					SourceA: p.Source, RecordA: from,
					SourceB: p.Source, RecordB: to,
					Score: d.Confidence,
				})
			}
		}
	}
	return out, nil
}

func serializeRecords(records []model.Record) string {
	var sb strings.Builder
	for _, r := range records {
		fmt.Fprintf(&sb, "- ID: %s, Name: %s, Fueltype: %s, Technology: %s, Capacity: %.1f MW",
			r.RecordID, r.Name, r.Fueltype, r.Technology, r.CapacityMW)
		if r.HasCoords() {
			fmt.Fprintf(&sb, ", Coordinates: %.4f,%.4f", *r.Lat, *r.Lon)
		}
		if r.DateIn != nil {
			fmt.Fprintf(&sb, ", Commissioned: %d", *r.DateIn)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func ids(records []model.Record) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.RecordID] = true
	}
	return out
}
