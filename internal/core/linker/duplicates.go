package linker

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/oracle"
)

// Duplicates collects intra-source duplicate judgments country by country. Records without a country
// are never judged. Failing partitions are skipped with a warning issue.
func (l *Linker) Duplicates(ctx context.Context, source string, records []model.Record) ([]model.MatchLink, []model.Issue, error) {
	countries := model.Countries(records)
	sort.Strings(countries)

	var partitions []oracle.DedupPartition
	for _, c := range countries {
		if !l.targeted(c) {
			continue
		}
		if rs := model.ByCountry(records, c); len(rs) > 1 {
			partitions = append(partitions, oracle.DedupPartition{Source: source, Country: c, Records: rs})
		}
	}

	type slot struct {
		links []model.MatchLink
		issue *model.Issue
	}
	slots := make([]slot, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	if l.opts.MaxConcurrency > 0 {
		g.SetLimit(l.opts.MaxConcurrency)
	}
	for i, p := range partitions {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			links, err := l.oracle.Duplicates(gctx, p)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.logger.Warn("skipping duplicate detection",
					zap.String("source", source), zap.String("country", p.Country), zap.Error(err))
				slots[i].issue = &model.Issue{
					Kind:     model.KindSkippedPartition,
					Severity: model.SeverityWarning,
					Source:   source,
					Country:  p.Country,
					Detail:   err.Error(),
				}
				return nil
			}
			slots[i].links = links
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var links []model.MatchLink
	var issues []model.Issue
	for _, s := range slots {
		links = append(links, s.links...)
		if s.issue != nil {
			issues = append(issues, *s.issue)
		}
	}
	l.logger.Debug("collected duplicate judgments",
		zap.String("source", source), zap.Int("partitions", len(partitions)), zap.Int("links", len(links)))
	return links, issues, nil
}
