// Package profiler reads slow-operation samples from system.profile
package profiler

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/pkg/profile"
)

// Profiled operation kinds forwarded to analysis. Inserts and getmores are
// excluded: neither carries a filter shape worth grouping.
var includedOps = []string{"query", "command", "update", "remove", "delete"}

// Reader extracts operation records from a database's profile collection
type Reader struct {
	db  *mongo.Database
	log *logger.Logger
}

// NewReader creates a profile reader for one database
func NewReader(db *mongo.Database, log *logger.Logger) *Reader {
	return &Reader{db: db, log: log.Component("profiler")}
}

// SlowQueries returns all profiled operations at or above minDuration,
// slowest first. Entries that cannot be mapped to an operation record
// (invalid namespace, missing command) are skipped with a warning; the
// second return value counts them.
func (r *Reader) SlowQueries(ctx context.Context, minDuration time.Duration) ([]*profile.OperationRecord, int, error) {
	start := time.Now()

	filter := bson.M{
		"op":     bson.M{"$in": includedOps},
		"millis": bson.M{"$gte": minDuration.Milliseconds()},
		// The profiler records its own reads too; keep them out.
		"ns": bson.M{"$ne": r.db.Name() + ".system.profile"},
	}
	opts := options.Find().SetSort(bson.D{{Key: "millis", Value: -1}})

	cursor, err := r.db.Collection("system.profile").Find(ctx, filter, opts)
	if err != nil {
		r.log.LogProfileExtraction(r.db.Name(), 0, time.Since(start), err)
		return nil, 0, fmt.Errorf("profiler: query system.profile: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*profile.OperationRecord
	skipped := 0
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, skipped, fmt.Errorf("profiler: decode profile entry: %w", err)
		}

		rec, err := profile.FromProfileDoc(raw)
		if err != nil {
			skipped++
			r.log.Warn("Skipping unusable profile entry").
				Err(err).
				Msg("Profile entry dropped")
			continue
		}
		records = append(records, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, skipped, fmt.Errorf("profiler: iterate system.profile: %w", err)
	}

	r.log.LogProfileExtraction(r.db.Name(), len(records), time.Since(start), nil)
	return records, skipped, nil
}
