// Package linker produces one-to-one match tables between pairs of sources.
package linker

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/powermatch/internal/cache"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
	"github.com/agenthands/powermatch/internal/oracle"
)

type Options struct {
	// TargetCountries restricts partitions to these countries when non-empty.
	TargetCountries []string
	MaxConcurrency  int
	// UseCache reads previously stored tables and partition links.
	UseCache bool
	// CachedOnly fails with model.ErrCacheMiss instead of calling the oracle for a missing table.
	CachedOnly bool
	// Settings identifies the oracle configuration. It is part of every cache fingerprint so that
	// judgments made under other settings are not reused.
	Settings string
}

// Linker runs the similarity oracle over country partitions of two sources and reduces the links
// to a one-to-one table.
type Linker struct {
	oracle  oracle.SimilarityOracle
	cache   cache.Store
	opts    Options
	targets map[string]bool
	logger  *zap.Logger
}

func New(o oracle.SimilarityOracle, c cache.Store, opts Options, logger *zap.Logger) *Linker {
	opts.TargetCountries = NormalizeCountries(opts.TargetCountries)
	targets := make(map[string]bool, len(opts.TargetCountries))
	for _, country := range opts.TargetCountries {
		targets[country] = true
	}
	return &Linker{oracle: o, cache: c, opts: opts, targets: targets, logger: logging.OrNop(logger).Named("linker")}
}

// NormalizeCountries trims, sorts and dedups a country list, dropping blanks.
func NormalizeCountries(countries []string) []string {
	var out []string
	for _, c := range countries {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// targeted reports whether a country partition runs under the target restriction.
func (l *Linker) targeted(country string) bool {
	return len(l.targets) == 0 || l.targets[country]
}

// Result is the match table of one source pair.
type Result struct {
	Table      model.PairwiseMatchTable
	Links      int
	Partitions int
	Cached     bool
	Issues     []model.Issue
}

// TableKey is the cache key of a pair table computed from inputs with the given fingerprint.
func TableKey(a, b, fingerprint string) string {
	return "matches/" + model.PairKey(a, b) + "/" + fingerprint
}

// LinksKey is the cache key of the raw links of one country partition.
func LinksKey(a, b, country, fingerprint string) string {
	return "links/" + model.PairKey(a, b) + "/" + country + "/" + fingerprint
}

// Link matches the unit records of two sources. The returned table is oriented so that
// Table.SourceA < Table.SourceB regardless of argument order.
func (l *Linker) Link(ctx context.Context, sourceA string, unitsA []model.Record, sourceB string, unitsB []model.Record) (Result, error) {
	if sourceB < sourceA {
		sourceA, sourceB = sourceB, sourceA
		unitsA, unitsB = unitsB, unitsA
	}
	log := l.logger.With(zap.String("pair", model.PairKey(sourceA, sourceB)))

	fp, err := cache.Fingerprint(l.opts.Settings, l.opts.TargetCountries, unitsA, unitsB)
	if err != nil {
		return Result{}, err
	}
	key := TableKey(sourceA, sourceB, fp)

	if l.cache != nil && (l.opts.UseCache || l.opts.CachedOnly) {
		table, found, err := cache.GetJSON[model.PairwiseMatchTable](ctx, l.cache, key)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read cached table: %w", err)
		}
		if found {
			log.Debug("using cached match table", zap.Int("pairs", len(table.Pairs)))
			var issues []model.Issue
			table.SourceA, table.SourceB = sourceA, sourceB
			table.Pairs, issues = knownPairs(table, unitsA, unitsB, key)
			return Result{Table: table, Cached: true, Issues: issues}, nil
		}
	}
	if l.opts.CachedOnly {
		return Result{}, fmt.Errorf("%w: %s", model.ErrCacheMiss, key)
	}

	partitions, issues := l.partitions(sourceA, unitsA, sourceB, unitsB)
	type slot struct {
		links  []model.MatchLink
		issues []model.Issue
		failed bool
	}
	slots := make([]slot, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	if l.opts.MaxConcurrency > 0 {
		g.SetLimit(l.opts.MaxConcurrency)
	}
	for i, p := range partitions {
		i, p := i, p
		g.Go(func() error {
			links, stale, err := l.linkPartition(gctx, p)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("skipping partition", zap.String("country", p.Country), zap.Error(err))
				slots[i].failed = true
				slots[i].issues = []model.Issue{{
					Kind:     model.KindSkippedPartition,
					Severity: model.SeverityWarning,
					Source:   sourceA,
					Partner:  sourceB,
					Country:  p.Country,
					Detail:   err.Error(),
				}}
				return nil
			}
			slots[i].links = links
			slots[i].issues = stale
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var links []model.MatchLink
	skipped := 0
	for _, s := range slots {
		links = append(links, s.links...)
		issues = append(issues, s.issues...)
		if s.failed {
			skipped++
		}
	}

	table := model.PairwiseMatchTable{SourceA: sourceA, SourceB: sourceB, Pairs: OneToOne(links)}
	log.Info("linked sources",
		zap.Int("partitions", len(partitions)),
		zap.Int("links", len(links)),
		zap.Int("pairs", len(table.Pairs)),
		zap.Int("skipped", skipped))

	// A table with skipped partitions is incomplete and must be recomputed next time.
	if l.cache != nil && skipped == 0 {
		if err := cache.PutJSON(ctx, l.cache, key, table); err != nil {
			return Result{}, fmt.Errorf("failed to cache match table: %w", err)
		}
	}
	return Result{Table: table, Links: len(links), Partitions: len(partitions), Issues: issues}, nil
}

// linkPartition returns the partition's links from the cache or the oracle. Cached links naming
// records outside the partition are dropped and reported.
func (l *Linker) linkPartition(ctx context.Context, p oracle.LinkPartition) ([]model.MatchLink, []model.Issue, error) {
	fp, err := cache.Fingerprint(l.opts.Settings, p.A, p.B)
	if err != nil {
		return nil, nil, err
	}
	key := LinksKey(p.SourceA, p.SourceB, p.Country, fp)
	if l.cache != nil && l.opts.UseCache {
		cached, found, err := cache.GetJSON[[]model.MatchLink](ctx, l.cache, key)
		if err != nil {
			return nil, nil, err
		}
		if found {
			links := validLinks(p, cached)
			var issues []model.Issue
			if n := len(cached) - len(links); n > 0 {
				issues = append(issues, staleIssue(p.SourceA, p.SourceB, p.Country, n, key))
			}
			return links, issues, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	raw, err := l.oracle.Link(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	links := validLinks(p, raw)
	if l.cache != nil {
		if err := cache.PutJSON(ctx, l.cache, key, links); err != nil {
			return nil, nil, fmt.Errorf("failed to cache partition links: %w", err)
		}
	}
	return links, nil, nil
}

// knownPairs keeps the cached pairs whose ids are current units of the pair.
func knownPairs(table model.PairwiseMatchTable, unitsA, unitsB []model.Record, key string) ([]model.Pair, []model.Issue) {
	inA, inB := recordIDs(unitsA), recordIDs(unitsB)
	out := make([]model.Pair, 0, len(table.Pairs))
	for _, p := range table.Pairs {
		if inA[p.A] && inB[p.B] {
			out = append(out, p)
		}
	}
	if n := len(table.Pairs) - len(out); n > 0 {
		return out, []model.Issue{staleIssue(table.SourceA, table.SourceB, "", n, key)}
	}
	return out, nil
}

func staleIssue(a, b, country string, n int, key string) model.Issue {
	return model.Issue{
		Kind:     model.KindStaleCache,
		Severity: model.SeverityWarning,
		Source:   a,
		Partner:  b,
		Country:  country,
		Detail:   fmt.Sprintf("dropped %d cached links naming unknown records (%s)", n, key),
	}
}

func recordIDs(records []model.Record) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.RecordID] = true
	}
	return out
}

// partitions returns the link partitions of countries present on both sides in ascending order.
// Countries present on one side only are reported as empty partitions.
func (l *Linker) partitions(sourceA string, unitsA []model.Record, sourceB string, unitsB []model.Record) ([]oracle.LinkPartition, []model.Issue) {
	countries := model.Countries(append(append([]model.Record(nil), unitsA...), unitsB...))
	sort.Strings(countries)

	var out []oracle.LinkPartition
	var issues []model.Issue
	for _, c := range countries {
		if !l.targeted(c) {
			continue
		}
		a, b := model.ByCountry(unitsA, c), model.ByCountry(unitsB, c)
		if len(a) == 0 || len(b) == 0 {
			issues = append(issues, model.Issue{
				Kind:     model.KindEmptyPartition,
				Severity: model.SeverityInfo,
				Source:   sourceA,
				Partner:  sourceB,
				Country:  c,
				Detail:   fmt.Sprintf("%d vs %d records", len(a), len(b)),
			})
			continue
		}
		out = append(out, oracle.LinkPartition{SourceA: sourceA, SourceB: sourceB, Country: c, A: a, B: b})
	}
	return out, issues
}

// validLinks keeps links whose ids belong to the partition, in oracle order.
func validLinks(p oracle.LinkPartition, links []model.MatchLink) []model.MatchLink {
	inA, inB := recordIDs(p.A), recordIDs(p.B)

	out := make([]model.MatchLink, 0, len(links))
	for _, lk := range links {
		if !inA[lk.RecordA] || !inB[lk.RecordB] {
			continue
		}
		lk.SourceA, lk.SourceB = p.SourceA, p.SourceB
		out = append(out, lk)
	}
	return out
}

// OneToOne keeps, for every B record, its highest scoring link and then, for every A record, its
// highest scoring remaining link. Ties go to the earlier link. Surviving pairs keep link order.
func OneToOne(links []model.MatchLink) []model.Pair {
	keep := bestBy(links, allIndices(len(links)), func(l model.MatchLink) string { return l.RecordB })
	keep = bestBy(links, keep, func(l model.MatchLink) string { return l.RecordA })

	out := make([]model.Pair, 0, len(keep))
	for _, i := range keep {
		out = append(out, model.Pair{A: links[i].RecordA, B: links[i].RecordB, Score: links[i].Score})
	}
	return out
}

func bestBy(links []model.MatchLink, idx []int, key func(model.MatchLink) string) []int {
	best := make(map[string]int, len(idx))
	for _, i := range idx {
		k := key(links[i])
		if j, ok := best[k]; !ok || links[i].Score > links[j].Score {
			best[k] = i
		}
	}
	out := make([]int, 0, len(best))
	for _, i := range idx {
		if best[key(links[i])] == i {
			out = append(out, i)
		}
	}
	return out
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
