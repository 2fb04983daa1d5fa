// Package analyzer orchestrates one slow-query analysis run
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/internal/metrics"
	"github.com/nainya/querylens/pkg/group"
	"github.com/nainya/querylens/pkg/metacache"
	"github.com/nainya/querylens/pkg/profile"
)

// Recommender is the downstream recommendation collaborator. meta and plan
// are nil when the respective context was unavailable.
type Recommender interface {
	Recommend(ctx context.Context, g *group.QueryGroup, meta *metacache.Entry, plan bson.M) (string, error)
}

// Explainer retrieves the execution plan for a representative operation
type Explainer interface {
	ExplainPlan(ctx context.Context, rec *profile.OperationRecord) (bson.M, error)
}

// Options configures one analysis run
type Options struct {
	MaxGroups   int // cap on forwarded groups, 0 = unlimited
	Concurrency int // concurrent recommendation requests, min 1
}

// GroupResult is the per-group outcome. Err is set when the recommendation
// call failed; the group's statistics remain valid either way.
type GroupResult struct {
	Group          *group.QueryGroup
	Metadata       *metacache.Entry // nil when metadata was unavailable
	Plan           bson.M           // nil when the explain command failed or does not apply
	Recommendation string
	Err            error
}

// Report summarizes one analysis run
type Report struct {
	RunID          string
	TotalRecords   int // records that landed in a group
	SkippedRecords int // untraversable records dropped during ingestion
	GroupCount     int // distinct groups before the MaxGroups cap
	Results        []GroupResult
	CacheStats     metacache.Stats
	Elapsed        time.Duration
}

// Analyzer wires the grouping engine to the metadata cache and the
// recommendation collaborator for the duration of one run. The cache is an
// explicit component owned here, never a process-wide singleton.
type Analyzer struct {
	cache       *metacache.Cache
	recommender Recommender
	explainer   Explainer
	opts        Options
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// New creates an analyzer. explainer may be nil; groups then carry no
// execution plan context.
func New(cache *metacache.Cache, rec Recommender, explainer Explainer, opts Options, log *logger.Logger, m *metrics.Metrics) *Analyzer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Analyzer{
		cache:       cache,
		recommender: rec,
		explainer:   explainer,
		opts:        opts,
		log:         log.Component("analyzer"),
		metrics:     m,
	}
}

// Run groups the records, truncates to MaxGroups, and requests advice for
// each surviving group. Per-group failures are isolated in that group's
// result; a run either completes or is aborted wholesale via ctx by the
// caller.
func (a *Analyzer) Run(ctx context.Context, records []*profile.OperationRecord) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := a.log.RunLogger(runID)

	statsBefore := a.cache.Stats()

	agg := group.NewAggregator()
	groups := agg.Ingest(records)
	groupCount := len(groups)
	if a.opts.MaxGroups > 0 && len(groups) > a.opts.MaxGroups {
		log.Info("Truncating group list").
			Int("groups", len(groups)).
			Int("max_groups", a.opts.MaxGroups).
			Msg("Costliest groups forwarded")
		groups = groups[:a.opts.MaxGroups]
	}

	results := make([]GroupResult, len(groups))
	eg := &errgroup.Group{}
	eg.SetLimit(a.opts.Concurrency)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			results[i] = a.analyzeGroup(ctx, log, g)
			return nil // per-group errors stay in the result
		})
	}
	_ = eg.Wait()

	statsAfter := a.cache.Stats()
	report := &Report{
		RunID:          runID,
		TotalRecords:   agg.Total(),
		SkippedRecords: agg.Skipped(),
		GroupCount:     groupCount,
		Results:        results,
		CacheStats:     statsAfter,
		Elapsed:        time.Since(start),
	}

	if a.metrics != nil {
		a.metrics.RecordIngestion(agg.Total(), agg.Skipped(), groupCount)
		a.metrics.RecordCacheDelta(
			statsAfter.Hits-statsBefore.Hits,
			statsAfter.Misses-statsBefore.Misses,
		)
		a.metrics.RecordRun(report.Elapsed)
	}
	log.LogAnalysisRun(runID, agg.Total(), agg.Skipped(), groupCount, report.Elapsed)

	return report, nil
}

// analyzeGroup fetches metadata through the shared cache, explains the
// representative, and requests a recommendation. Missing metadata or a
// failed explain is non-fatal: the advisor is still consulted, just with
// less context.
func (a *Analyzer) analyzeGroup(ctx context.Context, log *logger.Logger, g *group.QueryGroup) GroupResult {
	result := GroupResult{Group: g}

	meta, err := a.cache.Get(ctx, g.Representative.Namespace.Collection)
	if err != nil {
		log.Warn("Proceeding without metadata context").
			Str("collection", g.Representative.Namespace.Collection).
			Err(err).
			Send()
	} else {
		result.Metadata = meta
	}

	if a.explainer != nil {
		plan, err := a.explainer.ExplainPlan(ctx, g.Representative)
		if err != nil {
			log.Warn("Proceeding without execution plan").
				Str("namespace", g.Representative.Namespace.String()).
				Err(err).
				Send()
		} else {
			result.Plan = plan
		}
	}

	text, err := a.recommender.Recommend(ctx, g, result.Metadata, result.Plan)
	if err != nil {
		result.Err = err
		return result
	}
	result.Recommendation = text
	return result
}
