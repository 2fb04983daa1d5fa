// ABOUTME: Extraction of operation records from system.profile documents
// ABOUTME: Maps find/aggregate/update/delete commands to their operation docs

package profile

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrMissingOperation indicates a profile entry with no usable operation document
var ErrMissingOperation = errors.New("profile: missing operation document")

// FromProfileDoc converts one system.profile document into an
// OperationRecord. The profiler stores modern operations under "command"
// and legacy reads under "query"; the relevant operation document depends
// on the command type:
//
//	find      -> command.filter
//	aggregate -> command.pipeline (ordered stage list)
//	update    -> {q: command.q, u: command.u}
//	delete    -> command.q
//
// Anything else is kept whole under OpOther so unknown operations still
// group among themselves.
func FromProfileDoc(doc bson.M) (*OperationRecord, error) {
	nsRaw, _ := doc["ns"].(string)
	ns, err := ParseNamespace(nsRaw)
	if err != nil {
		return nil, err
	}

	rec := &OperationRecord{
		Namespace:  ns,
		DurationMS: asInt64(doc["millis"]),
		ObservedAt: asTime(doc["ts"]),
		Raw:        doc,
	}
	if rec.DurationMS < 0 {
		rec.DurationMS = 0
	}

	op, _ := doc["op"].(string)
	switch op {
	case "query":
		// Legacy profiler format: the filter lives directly under "query".
		rec.Kind = OpFind
		rec.Doc = subDocument(doc["query"])
	case "command":
		cmd, ok := asDocument(doc["command"])
		if !ok {
			return nil, fmt.Errorf("%w: op %q has no command", ErrMissingOperation, op)
		}
		rec.Kind, rec.Doc = fromCommand(cmd)
	case "update":
		// Write-op profile entries hold q/u directly under "command".
		cmd, ok := asDocument(doc["command"])
		if !ok {
			return nil, fmt.Errorf("%w: op %q has no command", ErrMissingOperation, op)
		}
		rec.Kind = OpUpdate
		rec.Doc = bson.M{"q": subDocument(cmd["q"]), "u": subDocument(cmd["u"])}
	case "remove", "delete":
		cmd, ok := asDocument(doc["command"])
		if !ok {
			return nil, fmt.Errorf("%w: op %q has no command", ErrMissingOperation, op)
		}
		rec.Kind = OpRemove
		rec.Doc = subDocument(cmd["q"])
	default:
		rec.Kind = OpOther
		if cmd, ok := asDocument(doc["command"]); ok {
			rec.Doc = cmd
		} else {
			rec.Doc = bson.M{}
		}
	}

	return rec, nil
}

// fromCommand classifies a profiled command document
func fromCommand(cmd bson.M) (OpKind, interface{}) {
	switch {
	case has(cmd, "find"):
		return OpFind, subDocument(cmd["filter"])
	case has(cmd, "aggregate"):
		if pipeline, ok := cmd["pipeline"]; ok {
			return OpAggregate, pipeline
		}
		return OpAggregate, primitive.A{}
	case has(cmd, "update"):
		return OpUpdate, bson.M{
			"q": subDocument(cmd["q"]),
			"u": subDocument(cmd["u"]),
		}
	case has(cmd, "delete"):
		return OpRemove, subDocument(cmd["q"])
	default:
		return OpOther, cmd
	}
}

func has(m bson.M, key string) bool {
	_, ok := m[key]
	return ok
}

// subDocument returns v as-is when it is a document, or an empty filter
// when absent (a find with no filter matches everything).
func subDocument(v interface{}) interface{} {
	if v == nil {
		return bson.M{}
	}
	return v
}

func asDocument(v interface{}) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]interface{}:
		return bson.M(d), true
	case bson.D:
		return d.Map(), true
	default:
		return nil, false
	}
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	default:
		return time.Time{}
	}
}
