// Package oracle defines the similarity judgment boundary and its implementations.
package oracle

import (
	"context"

	"github.com/agenthands/powermatch/internal/core/model"
)

// DedupPartition is the slice of one source's records sharing a country.
type DedupPartition struct {
	Source  string
	Country string
	Records []model.Record
}

// LinkPartition is the slice of two sources' unit records sharing a country.
type LinkPartition struct {
	SourceA string
	SourceB string
	Country string
	A       []model.Record
	B       []model.Record
}

// Label identifies the partition in logs and work directories.
func (p LinkPartition) Label() string {
	return model.PairKey(p.SourceA, p.SourceB) + "/" + p.Country
}

// SimilarityOracle judges which records describe the same unit.
//
// Duplicates returns directed judgments inside one source: a link RecordA -> RecordB says RecordB is a
// duplicate of RecordA. Only pairs judged in both directions are treated as duplicates downstream, so
// symmetric scorers must emit both directions.
//
// Link returns scored candidate links from records of A to records of B.
type SimilarityOracle interface {
	Duplicates(ctx context.Context, p DedupPartition) ([]model.MatchLink, error)
	Link(ctx context.Context, p LinkPartition) ([]model.MatchLink, error)
}
