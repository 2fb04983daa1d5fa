// ABOUTME: Explain-plan retrieval for representative slow operations
// ABOUTME: Wraps find/aggregate/update/delete commands in an explain command

package metafetch

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nainya/querylens/internal/logger"
	"github.com/nainya/querylens/pkg/profile"
)

// Explainer runs the explain command for a group's representative
// operation. Plans are advisory context only; a failed explain never fails
// the owning group.
type Explainer struct {
	db  *mongo.Database
	log *logger.Logger
}

// NewExplainer creates an explain-plan fetcher for one database
func NewExplainer(db *mongo.Database, log *logger.Logger) *Explainer {
	return &Explainer{db: db, log: log.Component("explain")}
}

// ExplainPlan returns the query planner's plan for a record's operation.
// Operations without an explainable command shape return a nil plan and
// no error.
func (e *Explainer) ExplainPlan(ctx context.Context, rec *profile.OperationRecord) (bson.M, error) {
	cmd, ok := explainCommand(rec)
	if !ok {
		return nil, nil
	}

	var plan bson.M
	if err := e.db.RunCommand(ctx, cmd).Decode(&plan); err != nil {
		e.log.Warn("Explain failed").
			Str("namespace", rec.Namespace.String()).
			Str("operation", string(rec.Kind)).
			Err(err).
			Send()
		return nil, fmt.Errorf("metafetch: explain %s on %s: %w", rec.Kind, rec.Namespace, err)
	}
	return plan, nil
}

// explainCommand builds the explain command for one operation record. The
// second return value is false when the operation kind has no explainable
// command shape.
func explainCommand(rec *profile.OperationRecord) (bson.D, bool) {
	coll := rec.Namespace.Collection

	var inner bson.D
	switch rec.Kind {
	case profile.OpFind:
		inner = bson.D{
			{Key: "find", Value: coll},
			{Key: "filter", Value: rec.Doc},
		}
	case profile.OpAggregate:
		inner = bson.D{
			{Key: "aggregate", Value: coll},
			{Key: "pipeline", Value: rec.Doc},
			{Key: "cursor", Value: bson.M{}},
		}
	case profile.OpUpdate:
		doc, ok := rec.Doc.(bson.M)
		if !ok {
			return nil, false
		}
		inner = bson.D{
			{Key: "update", Value: coll},
			{Key: "updates", Value: []bson.M{{"q": doc["q"], "u": doc["u"]}}},
		}
	case profile.OpRemove:
		inner = bson.D{
			{Key: "delete", Value: coll},
			{Key: "deletes", Value: []bson.M{{"q": rec.Doc, "limit": 0}}},
		}
	default:
		return nil, false
	}

	return bson.D{
		{Key: "explain", Value: inner},
		{Key: "verbosity", Value: "queryPlanner"},
	}, true
}
