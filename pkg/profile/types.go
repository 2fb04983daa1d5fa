// ABOUTME: Operation record data model for profiled queries
// ABOUTME: Defines Namespace, OpKind and OperationRecord structures

package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// OpKind classifies the kind of profiled operation
type OpKind string

const (
	OpFind      OpKind = "find"
	OpAggregate OpKind = "aggregate"
	OpUpdate    OpKind = "update"
	OpRemove    OpKind = "remove"
	OpOther     OpKind = "other"
)

// ErrInvalidNamespace indicates a profile entry without a db.collection namespace
var ErrInvalidNamespace = errors.New("profile: invalid namespace")

// Namespace identifies the (database, collection) pair a query targets
type Namespace struct {
	Database   string
	Collection string
}

// ParseNamespace splits a "db.collection" string on the first dot.
// Collection names may themselves contain dots (e.g. system.profile).
func ParseNamespace(ns string) (Namespace, error) {
	db, coll, ok := strings.Cut(ns, ".")
	if !ok || db == "" || coll == "" {
		return Namespace{}, fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return Namespace{Database: db, Collection: coll}, nil
}

// String returns the canonical "db.collection" form
func (n Namespace) String() string {
	return n.Database + "." + n.Collection
}

// OperationRecord is a single captured slow operation. Immutable once
// ingested; Raw holds the original profile document for display and is
// never mutated by the analysis pipeline.
type OperationRecord struct {
	Namespace  Namespace
	Kind       OpKind
	Doc        interface{} // filter, {q,u} pair, or pipeline stage list
	DurationMS int64       // milliseconds, non-negative
	ObservedAt time.Time
	Raw        bson.M // original profile document, read-only
}

// Duration returns the record duration as a time.Duration
func (r *OperationRecord) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}
