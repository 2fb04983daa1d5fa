// ABOUTME: Single-pass aggregation of operation records into shape groups
// ABOUTME: Representative selection and deterministic group ordering

package group

import (
	"fmt"
	"sort"

	"github.com/nainya/querylens/pkg/profile"
	"github.com/nainya/querylens/pkg/shape"
	"github.com/nainya/querylens/pkg/signature"
)

// QueryGroup accumulates all records sharing one signature. Mutated only
// by the Aggregator during the ingestion pass; callers treat the returned
// groups as read-only.
type QueryGroup struct {
	Signature      signature.Signature
	Shape          *shape.Node
	Representative *profile.OperationRecord
	Count          int
	MinMS          int64
	MaxMS          int64
	TotalMS        int64
	Order          int // creation order during ingestion
}

// AvgMS returns the mean member duration in milliseconds
func (g *QueryGroup) AvgMS() float64 {
	if g.Count == 0 {
		return 0
	}
	return float64(g.TotalMS) / float64(g.Count)
}

// Aggregator groups operation records by structural signature in a single
// sequential pass. Not safe for concurrent use.
type Aggregator struct {
	norm    *shape.Normalizer
	groups  map[signature.Signature]*QueryGroup
	total   int
	skipped int
}

// NewAggregator creates an aggregator with default normalization budgets
func NewAggregator() *Aggregator {
	return &Aggregator{
		norm:   shape.NewNormalizer(),
		groups: make(map[signature.Signature]*QueryGroup),
	}
}

// Add ingests one record. Untraversable operation documents are dropped,
// counted as skipped, and reported back as an error; every other record
// lands in exactly one group.
func (a *Aggregator) Add(rec *profile.OperationRecord) error {
	node, err := a.norm.Normalize(rec.Doc, rec.Kind)
	if err != nil {
		a.skipped++
		return fmt.Errorf("group: record on %s dropped: %w", rec.Namespace, err)
	}
	a.total++

	sig := signature.Compute(rec.Namespace, rec.Kind, node)
	g, ok := a.groups[sig]
	if !ok {
		a.groups[sig] = &QueryGroup{
			Signature:      sig,
			Shape:          node,
			Representative: rec,
			Count:          1,
			MinMS:          rec.DurationMS,
			MaxMS:          rec.DurationMS,
			TotalMS:        rec.DurationMS,
			Order:          len(a.groups),
		}
		return nil
	}

	g.Count++
	g.TotalMS += rec.DurationMS
	if rec.DurationMS < g.MinMS {
		g.MinMS = rec.DurationMS
	}
	if rec.DurationMS > g.MaxMS {
		g.MaxMS = rec.DurationMS
	}
	// Representative rule: the costliest member stands for the group. On
	// an exact duration tie the earliest-ingested member is kept, so
	// re-ingesting the same records in the same order is idempotent.
	if rec.DurationMS > g.Representative.DurationMS {
		g.Representative = rec
	}
	return nil
}

// Ingest runs the full single pass over a record set and returns the
// ordered groups. An empty input yields an empty group sequence.
func (a *Aggregator) Ingest(records []*profile.OperationRecord) []*QueryGroup {
	for _, rec := range records {
		_ = a.Add(rec) // drops are tracked via Skipped
	}
	return a.Groups()
}

// Groups returns all groups sorted costliest-first: representative
// duration descending, then member count descending, then signature
// ascending. The order is total and deterministic.
func (a *Aggregator) Groups() []*QueryGroup {
	out := make([]*QueryGroup, 0, len(a.groups))
	for _, g := range a.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := out[i], out[j]
		if gi.Representative.DurationMS != gj.Representative.DurationMS {
			return gi.Representative.DurationMS > gj.Representative.DurationMS
		}
		if gi.Count != gj.Count {
			return gi.Count > gj.Count
		}
		return gi.Signature < gj.Signature
	})
	return out
}

// Total reports how many records were successfully grouped
func (a *Aggregator) Total() int {
	return a.total
}

// Skipped reports how many records were dropped as untraversable
func (a *Aggregator) Skipped() int {
	return a.skipped
}
