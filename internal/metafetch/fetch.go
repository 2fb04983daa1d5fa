// Package metafetch implements the metadata-fetch collaborator against MongoDB
package metafetch

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/internal/metrics"
	"github.com/nainya/querylens/pkg/metacache"
)

// DefaultSampleSize is the number of documents sampled per collection
const DefaultSampleSize = 100

// Sampler fetches per-collection schema samples and index lists. It
// implements metacache.Fetcher; the cache decides when to call it.
type Sampler struct {
	db         *mongo.Database
	sampleSize int
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewSampler creates a metadata fetcher for one database
func NewSampler(db *mongo.Database, sampleSize int, log *logger.Logger, m *metrics.Metrics) *Sampler {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Sampler{
		db:         db,
		sampleSize: sampleSize,
		log:        log.Component("metacache"),
		metrics:    m,
	}
}

// FetchMetadata samples documents for a field-type schema and lists the
// collection's indexes
func (s *Sampler) FetchMetadata(ctx context.Context, collection string) (*metacache.Entry, error) {
	start := time.Now()

	schema, err := s.sampleSchema(ctx, collection)
	if err != nil {
		s.log.LogMetadataFetch(collection, 0, 0, time.Since(start), err)
		return nil, err
	}

	indexes, err := s.listIndexes(ctx, collection)
	if err != nil {
		s.log.LogMetadataFetch(collection, len(schema), 0, time.Since(start), err)
		return nil, err
	}

	elapsed := time.Since(start)
	s.log.LogMetadataFetch(collection, len(schema), len(indexes), elapsed, nil)
	if s.metrics != nil {
		s.metrics.MetadataFetchDuration.Observe(elapsed.Seconds())
	}

	return &metacache.Entry{
		Collection: collection,
		Schema:     schema,
		Indexes:    indexes,
		FetchedAt:  time.Now(),
	}, nil
}

// sampleSchema derives a field -> type-name map from a $sample of the
// collection. A field seen with two different types becomes "mixed".
func (s *Sampler) sampleSchema(ctx context.Context, collection string) (map[string]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: s.sampleSize}}}},
	}
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("metafetch: sample %q: %w", collection, err)
	}
	defer cursor.Close(ctx)

	schema := make(map[string]string)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("metafetch: decode sample from %q: %w", collection, err)
		}
		for field, value := range doc {
			t := typeName(value)
			seen, ok := schema[field]
			if !ok {
				schema[field] = t
			} else if seen != t && seen != "mixed" {
				schema[field] = "mixed"
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("metafetch: iterate sample from %q: %w", collection, err)
	}
	return schema, nil
}

// listIndexes converts the collection's index specifications. Key order
// within an index is preserved; it is significant for compound indexes.
func (s *Sampler) listIndexes(ctx context.Context, collection string) ([]metacache.IndexInfo, error) {
	cursor, err := s.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("metafetch: list indexes on %q: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var indexes []metacache.IndexInfo
	for cursor.Next(ctx) {
		var spec struct {
			Name   string `bson:"name"`
			Key    bson.D `bson:"key"`
			Unique bool   `bson:"unique"`
			Sparse bool   `bson:"sparse"`
		}
		if err := cursor.Decode(&spec); err != nil {
			return nil, fmt.Errorf("metafetch: decode index on %q: %w", collection, err)
		}

		info := metacache.IndexInfo{
			Name:   spec.Name,
			Unique: spec.Unique,
			Sparse: spec.Sparse,
		}
		for _, e := range spec.Key {
			info.Keys = append(info.Keys, metacache.IndexKey{
				Field: e.Key,
				Spec:  fmt.Sprintf("%v", e.Value),
			})
		}
		indexes = append(indexes, info)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("metafetch: iterate indexes on %q: %w", collection, err)
	}
	return indexes, nil
}

// typeName mirrors the schema sampler's type vocabulary
func typeName(v interface{}) string {
	switch v.(type) {
	case bson.M, bson.D, map[string]interface{}:
		return "object"
	case bson.A, []interface{}:
		return "array"
	case string:
		return "string"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case bool:
		return "boolean"
	case primitive.ObjectID:
		return "objectId"
	case time.Time, primitive.DateTime:
		return "date"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
