package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/powermatch/internal/cache"
	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/aggregate"
	"github.com/agenthands/powermatch/internal/core/clique"
	"github.com/agenthands/powermatch/internal/core/combine"
	"github.com/agenthands/powermatch/internal/core/linker"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/core/reduce"
	"github.com/agenthands/powermatch/internal/logging"
	"github.com/agenthands/powermatch/internal/oracle"
)

// Matcher runs the whole matching pipeline: validation, intra-source grouping, pairwise linking,
// combination and reduction.
type Matcher struct {
	Config   *config.Config
	Cache    cache.Store
	Grouper  *clique.Grouper
	Linker   *linker.Linker
	Combiner *combine.Combiner
	Reducer  *reduce.Reducer

	// IDGenerator returns run ids; replaced in tests.
	IDGenerator func() string

	logger *zap.Logger
}

func NewMatcher(cfg *config.Config, o oracle.SimilarityOracle, c cache.Store, logger *zap.Logger) *Matcher {
	logger = logging.OrNop(logger)
	return &Matcher{
		Config:  cfg,
		Cache:   c,
		Grouper: clique.NewGrouper(logger),
		Linker: linker.New(o, c, linker.Options{
			TargetCountries: cfg.Matching.TargetCountries,
			MaxConcurrency:  cfg.Matching.MaxConcurrency,
			UseCache:        cfg.Run.UseCachedMatches,
			CachedOnly:      cfg.Run.CachedOnly,
			Settings:        cfg.OracleSignature(),
		}, logger),
		Combiner:    combine.NewCombiner(logger),
		Reducer:     reduce.NewReducer(logger),
		IDGenerator: func() string { return uuid.New().String() },
		logger:      logger.Named("matcher"),
	}
}

// GroupsKey is the cache key of a source grouping for one record set under the oracle settings and
// target countries that decide which duplicates are found.
func GroupsKey(source string, records []model.Record, settings string, targets []string) (string, error) {
	fp, err := cache.Fingerprint(settings, linker.NormalizeCountries(targets), records)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", source, err)
	}
	return "groups/" + source + "/" + fp, nil
}

type sourceState struct {
	label    string
	records  []model.Record
	grouping model.Grouping
	units    []model.Record
	issues   []model.Issue
}

// Run matches the datasets under a fresh run id.
func (m *Matcher) Run(ctx context.Context, datasets []model.Dataset) (*model.Result, error) {
	return m.RunWithID(ctx, m.IDGenerator(), datasets)
}

// RunWithID matches the datasets and returns the reduced plants with their diagnostics. Data problems
// are reported in the diagnostics; only cancellation, cache misses in cached-only mode and broken
// merge invariants fail the run.
func (m *Matcher) RunWithID(ctx context.Context, runID string, datasets []model.Dataset) (*model.Result, error) {
	log := m.logger.With(zap.String("run_id", runID))
	diag := model.NewDiagnostics()

	labels := make([]string, 0, len(datasets))
	bySource := make(map[string]model.Dataset, len(datasets))
	for _, d := range datasets {
		if _, dup := bySource[d.Source]; dup {
			return nil, fmt.Errorf("dataset %s given twice", d.Source)
		}
		if d.Source == "" {
			return nil, errors.New("dataset without source label")
		}
		bySource[d.Source] = d
		labels = append(labels, d.Source)
	}
	labels = model.SortedSources(labels)
	log.Info("starting run", zap.Strings("sources", labels))

	states := make([]*sourceState, len(labels))
	for i, l := range labels {
		valid, issues := Validate(l, bySource[l].Records)
		diag.Stats.InputRecords += len(bySource[l].Records)
		diag.Stats.ValidRecords += len(valid)
		states[i] = &sourceState{label: l, records: valid, issues: issues}
	}

	if err := m.group(ctx, states); err != nil {
		return nil, err
	}
	units := make(map[string][]model.Record, len(states))
	groupings := make([]model.Grouping, 0, len(states))
	for _, s := range states {
		diag.Add(s.issues...)
		units[s.label] = s.units
		groupings = append(groupings, s.grouping)
		diag.Stats.UnitRecords += len(s.units)
	}

	tables, err := m.link(ctx, states, diag)
	if err != nil {
		return nil, err
	}

	combined, err := m.Combiner.Combine(tables, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to combine match tables: %w", err)
	}
	diag.Add(combined.Issues...)
	diag.Stats.CombinedRows = len(combined.Rows)

	ranking, issues := reduce.Ranking(labels, m.Config.Reliability())
	diag.Add(issues...)

	plants, err := m.Reducer.Reduce(combined.Rows, labels, reduce.NewIndex(units), ranking)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce combined rows: %w", err)
	}
	matched := len(plants)

	var fully, low []string
	for _, l := range labels {
		if sc, ok := m.Config.Source(l); ok {
			if sc.FullyIncluded {
				fully = append(fully, l)
			}
			if sc.LowReliability {
				low = append(low, l)
			}
		}
	}
	if len(fully) > 0 {
		plants = m.Reducer.Extend(plants, combined.Rows, labels, units, ranking, fully)
	}
	extended := len(plants) - matched
	plants = m.Reducer.Refine(plants, reduce.RefineOptions{
		LowReliability:      low,
		AllowedCountries:    m.Config.Matching.AllowedCountries,
		RemoveMissingCoords: m.Config.Matching.RemoveMissingCoords,
	})

	diag.Stats.ExtendedPlants = extended
	diag.Stats.FilteredPlants = matched + extended - len(plants)
	diag.Stats.Plants = len(plants)

	log.Info("run finished",
		zap.Int("plants", len(plants)),
		zap.Int("combined_rows", len(combined.Rows)),
		zap.Int("issues", len(diag.Issues)))

	return &model.Result{
		RunID:       runID,
		Sources:     labels,
		Groupings:   groupings,
		Tables:      tables,
		Combined:    combined.Rows,
		Plants:      plants,
		Diagnostics: diag,
	}, nil
}

// group builds groupings and unit records for every source in parallel.
func (m *Matcher) group(ctx context.Context, states []*sourceState) error {
	g, gctx := errgroup.WithContext(ctx)
	if n := m.Config.Matching.MaxConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for _, s := range states {
		s := s
		g.Go(func() error {
			return m.groupSource(gctx, s)
		})
	}
	return g.Wait()
}

func (m *Matcher) groupSource(ctx context.Context, s *sourceState) error {
	sc, _ := m.Config.Source(s.label)
	if sc.AggregatedUnits {
		s.grouping = clique.Singletons(s.label, s.records)
		s.units = s.records
		return nil
	}

	key, err := GroupsKey(s.label, s.records, m.Config.OracleSignature(), m.Config.Matching.TargetCountries)
	if err != nil {
		return err
	}
	if m.Cache != nil && m.Config.Run.UseCachedGroups {
		grouping, found, err := cache.GetJSON[model.Grouping](ctx, m.Cache, key)
		if err != nil {
			return fmt.Errorf("failed to read cached grouping: %w", err)
		}
		if found {
			m.logger.Debug("using cached grouping", zap.String("source", s.label), zap.Int("groups", len(grouping.Groups)))
			s.grouping = grouping
			s.units = aggregate.Units(s.records, grouping)
			return nil
		}
	}

	judgments, issues, err := m.Linker.Duplicates(ctx, s.label, s.records)
	if err != nil {
		return fmt.Errorf("failed to detect duplicates in %s: %w", s.label, err)
	}
	s.issues = append(s.issues, issues...)

	res := m.Grouper.Group(s.label, s.records, judgments)
	s.issues = append(s.issues, res.Issues...)
	s.grouping = res.Grouping
	s.units = aggregate.Units(s.records, res.Grouping)

	// Groupings built with skipped partitions are not reused.
	if m.Cache != nil && len(issues) == 0 {
		if err := cache.PutJSON(ctx, m.Cache, key, res.Grouping); err != nil {
			return fmt.Errorf("failed to cache grouping: %w", err)
		}
	}
	m.logger.Info("grouped source",
		zap.String("source", s.label),
		zap.Int("records", len(s.records)),
		zap.Int("units", len(s.units)),
		zap.Int("cliques", res.Cliques),
		zap.Int("components", res.Components))
	return nil
}

// link computes every pairwise table in parallel and returns them in pair order.
func (m *Matcher) link(ctx context.Context, states []*sourceState, diag *model.Diagnostics) ([]model.PairwiseMatchTable, error) {
	type pair struct{ a, b *sourceState }
	var pairs []pair
	for i := range states {
		for j := i + 1; j < len(states); j++ {
			pairs = append(pairs, pair{states[i], states[j]})
		}
	}

	results := make([]linker.Result, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	if n := m.Config.Matching.MaxConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			res, err := m.Linker.Link(gctx, p.a.label, p.a.units, p.b.label, p.b.units)
			if err != nil {
				return fmt.Errorf("failed to link %s: %w", model.PairKey(p.a.label, p.b.label), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables := make([]model.PairwiseMatchTable, 0, len(results))
	for _, r := range results {
		diag.Add(r.Issues...)
		diag.Stats.Partitions += r.Partitions
		diag.Stats.Links += r.Links
		diag.Stats.MatchedPairs += len(r.Table.Pairs)
		if r.Cached {
			diag.Stats.CachedPairs++
		}
		tables = append(tables, r.Table)
	}
	return tables, nil
}
