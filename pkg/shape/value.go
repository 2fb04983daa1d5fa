// ABOUTME: Structural type classification for query document values
// ABOUTME: Total dispatch over scalar, array and document value kinds

package shape

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tag is a structural type tag standing in for a literal value
type Tag string

const (
	TagInt       Tag = "<int>"
	TagFloat     Tag = "<float>"
	TagStr       Tag = "<str>"
	TagBool      Tag = "<bool>"
	TagDate      Tag = "<date>"
	TagID        Tag = "<id>"
	TagNull      Tag = "<null>"
	TagDoc       Tag = "<doc>"
	TagPattern   Tag = "<pattern>"
	TagMalformed Tag = "<malformed>"
	TagOversized Tag = "<oversized>"

	// TagOpaque covers driver scalar types outside the classifier's
	// variant. Conservative: two different opaque types still share a
	// group only with each other, never with classified values.
	TagOpaque Tag = "<opaque>"

	TagMixedArray Tag = "<mixed_array>"
	TagEmptyArray Tag = "<empty_array>"
)

// ValueKind partitions values into the three traversal categories
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindArray
	KindDocument
)

// KindOf reports how a decoded BSON or JSON value must be traversed
func KindOf(v interface{}) ValueKind {
	switch v.(type) {
	case bson.M, bson.D, map[string]interface{}:
		return KindDocument
	case primitive.A, []interface{}, []bson.M, []bson.D:
		return KindArray
	default:
		return KindScalar
	}
}

// ScalarTag classifies a scalar value. The dispatch is total: every value
// that is neither an array nor a document receives exactly one tag.
func ScalarTag(v interface{}) Tag {
	switch v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return TagNull
	case bool:
		return TagBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TagInt
	case float32, float64, primitive.Decimal128:
		return TagFloat
	case string:
		if t, ok := tagOf(v.(string)); ok {
			return t
		}
		return TagStr
	case primitive.Symbol:
		return TagStr
	case time.Time, primitive.DateTime, primitive.Timestamp:
		return TagDate
	case primitive.ObjectID, primitive.Binary:
		return TagID
	case primitive.Regex:
		return TagPattern
	default:
		return TagOpaque
	}
}

// ArrayTag collapses an array to a single tag: the element type when
// homogeneous, mixed otherwise. Length and element values are discarded.
func ArrayTag(items []interface{}) Tag {
	if len(items) == 0 {
		return TagEmptyArray
	}

	var elem Tag
	for i, item := range items {
		t := elementTag(item)
		if i == 0 {
			elem = t
			continue
		}
		if t != elem {
			return TagMixedArray
		}
	}
	return homogeneousArrayTag(elem)
}

// tagOf recognizes a string that already is a type tag. Shapes are
// re-normalizable: running a canonical shape through the normalizer again
// yields the same shape, so tag leaves must map to themselves rather than
// to <str>.
func tagOf(s string) (Tag, bool) {
	switch Tag(s) {
	case TagInt, TagFloat, TagStr, TagBool, TagDate, TagID, TagNull,
		TagDoc, TagPattern, TagMalformed, TagOversized, TagOpaque,
		TagMixedArray, TagEmptyArray:
		return Tag(s), true
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, "_array>") {
		return Tag(s), true
	}
	return "", false
}

// elementTag classifies a single array element for homogeneity checks
func elementTag(v interface{}) Tag {
	switch KindOf(v) {
	case KindDocument:
		return TagDoc
	case KindArray:
		return Tag("<array>") // nested arrays all compare as "array"
	default:
		return ScalarTag(v)
	}
}

func homogeneousArrayTag(elem Tag) Tag {
	name := strings.Trim(string(elem), "<>")
	return Tag("<" + name + "_array>")
}

// docField is one key/value pair of a document under traversal
type docField struct {
	key   string
	value interface{}
}

// docFields lists a document's fields in sorted key order. Traversal must
// follow canonical order, not insertion or map iteration order: the node
// budget is spent during traversal, so which siblings degrade to
// <oversized> under pressure has to be the same for every key ordering of
// the same logical document.
func docFields(v interface{}) []docField {
	var out []docField
	switch d := v.(type) {
	case bson.M:
		out = make([]docField, 0, len(d))
		for k, val := range d {
			out = append(out, docField{key: k, value: val})
		}
	case map[string]interface{}:
		out = make([]docField, 0, len(d))
		for k, val := range d {
			out = append(out, docField{key: k, value: val})
		}
	case bson.D:
		out = make([]docField, 0, len(d))
		for _, e := range d {
			out = append(out, docField{key: e.Key, value: e.Value})
		}
	default:
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// asItems converts any supported array representation to []interface{}
func asItems(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case primitive.A:
		return []interface{}(a), true
	case []interface{}:
		return a, true
	case []bson.M:
		items := make([]interface{}, len(a))
		for i, m := range a {
			items[i] = m
		}
		return items, true
	case []bson.D:
		items := make([]interface{}, len(a))
		for i, d := range a {
			items[i] = d
		}
		return items, true
	default:
		return nil, false
	}
}
