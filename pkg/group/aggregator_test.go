// ABOUTME: Tests for signature-based record grouping
// ABOUTME: Verifies counts, representatives, ordering and skip accounting

package group

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nainya/querylens/pkg/profile"
)

var baseTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func record(db, coll string, kind profile.OpKind, doc interface{}, durationMS int64, seq int) *profile.OperationRecord {
	return &profile.OperationRecord{
		Namespace:  profile.Namespace{Database: db, Collection: coll},
		Kind:       kind,
		Doc:        doc,
		DurationMS: durationMS,
		ObservedAt: baseTime.Add(time.Duration(seq) * time.Second),
		Raw:        bson.M{"seq": seq},
	}
}

func findUsers(userID int, status string, durationMS int64, seq int) *profile.OperationRecord {
	return record("db", "users", profile.OpFind,
		bson.M{"user_id": userID, "status": status}, durationMS, seq)
}

func aggregateOrders(product string, durationMS int64, seq int) *profile.OperationRecord {
	pipeline := primitive.A{
		bson.M{"$match": bson.M{
			"product": product,
			"status":  bson.M{"$in": primitive.A{"open", "paid"}},
		}},
		bson.M{"$group": bson.M{"_id": "$product", "total": bson.M{"$sum": 1}}},
	}
	return record("db", "orders", profile.OpAggregate, pipeline, durationMS, seq)
}

func updateUsers(email string, durationMS int64, seq int) *profile.OperationRecord {
	return record("db", "users", profile.OpUpdate, bson.M{
		"q": bson.M{"email": email},
		"u": bson.M{"$set": bson.M{"last_login": baseTime}},
	}, durationMS, seq)
}

func TestIngestScenario(t *testing.T) {
	records := []*profile.OperationRecord{
		findUsers(1, "active", 5, 0),
		findUsers(2, "pending", 2, 1),
		findUsers(3, "active", 5, 2),
		aggregateOrders("widget", 10, 3),
		aggregateOrders("gadget", 7, 4),
		aggregateOrders("widget", 9, 5),
		updateUsers("a@example.com", 3, 6),
		updateUsers("b@example.com", 3, 7),
	}

	agg := NewAggregator()
	groups := agg.Ingest(records)

	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}

	// Costliest first: aggregate (10ms), find (5ms), update (3ms)
	if groups[0].Representative.Kind != profile.OpAggregate {
		t.Errorf("Expected aggregate group first, got %s", groups[0].Representative.Kind)
	}
	if groups[1].Representative.Kind != profile.OpFind {
		t.Errorf("Expected find group second, got %s", groups[1].Representative.Kind)
	}
	if groups[2].Representative.Kind != profile.OpUpdate {
		t.Errorf("Expected update group third, got %s", groups[2].Representative.Kind)
	}

	if groups[0].Count != 3 || groups[1].Count != 3 || groups[2].Count != 2 {
		t.Errorf("Expected counts 3/3/2, got %d/%d/%d",
			groups[0].Count, groups[1].Count, groups[2].Count)
	}

	// Representative durations
	if groups[0].Representative.DurationMS != 10 {
		t.Errorf("Expected aggregate representative at 10ms, got %d", groups[0].Representative.DurationMS)
	}
	if groups[1].Representative.DurationMS != 5 {
		t.Errorf("Expected find representative at 5ms, got %d", groups[1].Representative.DurationMS)
	}

	// Duration tie: the earliest-ingested member wins
	if groups[1].Representative != records[0] {
		t.Error("Tied find representative must be the earliest-ingested record")
	}
	if groups[2].Representative != records[6] {
		t.Error("Tied update representative must be the earliest-ingested record")
	}

	// Sum of member counts equals the number of ingested records
	sum := 0
	for _, g := range groups {
		sum += g.Count
	}
	if sum != len(records) {
		t.Errorf("Expected member counts to sum to %d, got %d", len(records), sum)
	}
	if agg.Total() != len(records) || agg.Skipped() != 0 {
		t.Errorf("Expected %d total and 0 skipped, got %d/%d",
			len(records), agg.Total(), agg.Skipped())
	}
}

func TestIngestDurationStatistics(t *testing.T) {
	agg := NewAggregator()
	groups := agg.Ingest([]*profile.OperationRecord{
		findUsers(1, "a", 5, 0),
		findUsers(2, "b", 2, 1),
		findUsers(3, "c", 5, 2),
	})

	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}

	g := groups[0]
	if g.MinMS != 2 || g.MaxMS != 5 || g.TotalMS != 12 {
		t.Errorf("Expected min 2 / max 5 / total 12, got %d/%d/%d", g.MinMS, g.MaxMS, g.TotalMS)
	}
	if g.AvgMS() != 4.0 {
		t.Errorf("Expected avg 4.0, got %f", g.AvgMS())
	}
}

func TestIngestEmpty(t *testing.T) {
	agg := NewAggregator()
	groups := agg.Ingest(nil)

	if len(groups) != 0 {
		t.Errorf("Expected no groups for empty input, got %d", len(groups))
	}
	if agg.Total() != 0 || agg.Skipped() != 0 {
		t.Errorf("Expected zero counters, got %d/%d", agg.Total(), agg.Skipped())
	}
}

func TestIngestSkipsUntraversable(t *testing.T) {
	bogus := record("db", "users", profile.OpFind, "not a document", 9, 0)

	agg := NewAggregator()
	if err := agg.Add(bogus); err == nil {
		t.Fatal("Expected an error for an untraversable record")
	}
	groups := agg.Ingest([]*profile.OperationRecord{findUsers(1, "a", 5, 1)})

	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}
	if agg.Skipped() != 1 {
		t.Errorf("Expected 1 skipped record, got %d", agg.Skipped())
	}
	if agg.Total() != 1 {
		t.Errorf("Expected 1 grouped record, got %d", agg.Total())
	}
}

func TestGroupsOrderingTieBreaks(t *testing.T) {
	// Two groups tied on representative duration; the larger group sorts
	// first, then the signature decides.
	records := []*profile.OperationRecord{
		findUsers(1, "a", 5, 0),
		findUsers(2, "b", 5, 1),
		record("db", "users", profile.OpFind, bson.M{"email": "x@example.com"}, 5, 2),
	}

	agg := NewAggregator()
	groups := agg.Ingest(records)

	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].Count != 2 || groups[1].Count != 1 {
		t.Errorf("Larger group must sort first on a duration tie: %d vs %d",
			groups[0].Count, groups[1].Count)
	}

	// Re-ingesting the same records yields the identical order
	again := NewAggregator().Ingest(records)
	for i := range groups {
		if groups[i].Signature != again[i].Signature {
			t.Errorf("Group order not deterministic at position %d", i)
		}
	}
}

func TestIngestIdempotentRepresentative(t *testing.T) {
	records := []*profile.OperationRecord{
		updateUsers("a@example.com", 3, 0),
		updateUsers("b@example.com", 3, 1),
	}

	for i := 0; i < 5; i++ {
		groups := NewAggregator().Ingest(records)
		if len(groups) != 1 {
			t.Fatalf("Expected 1 group, got %d", len(groups))
		}
		if groups[0].Representative != records[0] {
			t.Fatal("Representative choice must be idempotent under re-ingestion")
		}
	}
}
