// ABOUTME: Recursive query-document normalization into canonical shapes
// ABOUTME: Operator-category rules with depth and node budget guards

package shape

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nainya/querylens/pkg/profile"
)

// Traversal budget defaults. Documents exceeding either bound degrade the
// offending subtree to <oversized> instead of failing the record.
const (
	DefaultMaxDepth = 24
	DefaultMaxNodes = 4096
)

// ErrNotTraversable indicates a top-level value that is neither a document
// nor a stage list. This is the only fatal normalization error; callers
// drop the record and count it as skipped.
var ErrNotTraversable = errors.New("shape: top-level value is not a document or stage list")

// Normalizer rewrites operation documents into canonical shapes. The zero
// budget fields fall back to the package defaults.
type Normalizer struct {
	MaxDepth int
	MaxNodes int
}

// NewNormalizer returns a Normalizer with default traversal budgets
func NewNormalizer() *Normalizer {
	return &Normalizer{MaxDepth: DefaultMaxDepth, MaxNodes: DefaultMaxNodes}
}

// Normalize produces the canonical shape of an operation document.
// Deterministic: two documents equal up to field-key ordering normalize to
// identical shapes. Aggregation pipelines arrive as top-level stage lists
// whose order is preserved.
func (n *Normalizer) Normalize(doc interface{}, kind profile.OpKind) (*Node, error) {
	w := &walker{maxDepth: n.MaxDepth, maxNodes: n.MaxNodes}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	if w.maxNodes <= 0 {
		w.maxNodes = DefaultMaxNodes
	}

	switch KindOf(doc) {
	case KindDocument:
		return w.document(doc, 0), nil
	case KindArray:
		items, _ := asItems(doc)
		return w.docList(items, 0), nil
	default:
		return nil, fmt.Errorf("%w: %T (kind %s)", ErrNotTraversable, doc, kind)
	}
}

// walker carries the traversal budget for one normalization pass
type walker struct {
	maxDepth int
	maxNodes int
	nodes    int
}

func (w *walker) spend() bool {
	w.nodes++
	return w.nodes <= w.maxNodes
}

// document normalizes a document position: operator keys dispatch on the
// operator category, plain field names take the bare-literal rules. Keys
// are sorted on emission so insertion order never leaks into the shape.
func (w *walker) document(v interface{}, depth int) *Node {
	if depth >= w.maxDepth || !w.spend() {
		return newLeaf(TagOversized)
	}

	fields := docFields(v)
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		var child *Node
		if strings.HasPrefix(f.key, "$") {
			child = w.operator(f.key, f.value, depth+1)
		} else {
			child = w.literal(f.value, depth+1)
		}
		out = append(out, Field{Name: f.key, Value: child})
	}
	return newDoc(out)
}

// operator applies the category rule for one $-prefixed key
func (w *walker) operator(op string, v interface{}, depth int) *Node {
	switch op {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		// Comparison position: the literal collapses to its type tag.
		return w.literal(v, depth)

	case "$in", "$nin":
		// Array comparison: the whole operand collapses to one array tag.
		// A tag operand is an already-normalized shape re-entering the
		// normalizer; it maps to itself.
		if s, ok := v.(string); ok {
			if t, ok := tagOf(s); ok {
				if !w.spend() {
					return newLeaf(TagOversized)
				}
				return newLeaf(t)
			}
		}
		items, ok := asItems(v)
		if !ok {
			return newLeaf(TagMalformed)
		}
		if !w.spend() {
			return newLeaf(TagOversized)
		}
		return newLeaf(ArrayTag(items))

	case "$regex", "$text", "$search":
		// Pattern position: literal pattern text is discarded so distinct
		// patterns over the same field collapse into one group.
		if !w.spend() {
			return newLeaf(TagOversized)
		}
		return newLeaf(TagPattern)

	case "$and", "$or", "$nor":
		items, ok := asItems(v)
		if !ok {
			return newLeaf(TagMalformed)
		}
		return w.docList(items, depth)

	case "$not":
		switch KindOf(v) {
		case KindDocument:
			return w.document(v, depth)
		default:
			if _, ok := v.(primitive.Regex); ok {
				if !w.spend() {
					return newLeaf(TagOversized)
				}
				return newLeaf(TagPattern)
			}
			if s, ok := v.(string); ok {
				if t, ok := tagOf(s); ok {
					if !w.spend() {
						return newLeaf(TagOversized)
					}
					return newLeaf(t)
				}
			}
			return newLeaf(TagMalformed)
		}

	default:
		// Structural operators ($exists/$type/$size) and anything the
		// engine does not recognize: the key stays verbatim and the
		// operand is normalized with its structure preserved. Never
		// silently merges operators we do not understand.
		return w.structural(v, depth)
	}
}

// literal normalizes a value in comparison position (operand of a
// comparison operator, or a bare field -> literal pairing)
func (w *walker) literal(v interface{}, depth int) *Node {
	switch KindOf(v) {
	case KindDocument:
		return w.document(v, depth)
	case KindArray:
		items, _ := asItems(v)
		if !w.spend() {
			return newLeaf(TagOversized)
		}
		return newLeaf(ArrayTag(items))
	default:
		if !w.spend() {
			return newLeaf(TagOversized)
		}
		return newLeaf(ScalarTag(v))
	}
}

// structural normalizes an operand whose structure is significant: arrays
// keep their length and per-element shapes instead of collapsing.
func (w *walker) structural(v interface{}, depth int) *Node {
	switch KindOf(v) {
	case KindDocument:
		return w.document(v, depth)
	case KindArray:
		items, _ := asItems(v)
		return w.elementList(items, depth)
	default:
		if !w.spend() {
			return newLeaf(TagOversized)
		}
		return newLeaf(ScalarTag(v))
	}
}

// docList normalizes an ordered list whose elements must be documents:
// pipeline stage lists and logical operator clauses. Order is preserved.
func (w *walker) docList(items []interface{}, depth int) *Node {
	if depth >= w.maxDepth || !w.spend() {
		return newLeaf(TagOversized)
	}
	nodes := make([]*Node, 0, len(items))
	for _, item := range items {
		if KindOf(item) != KindDocument {
			// Degraded elements of a re-entering shape stay as they are.
			if s, ok := item.(string); ok {
				if t, ok := tagOf(s); ok {
					nodes = append(nodes, newLeaf(t))
					continue
				}
			}
			nodes = append(nodes, newLeaf(TagMalformed))
			continue
		}
		nodes = append(nodes, w.document(item, depth+1))
	}
	return newList(nodes)
}

// elementList normalizes an order-preserving list of arbitrary values
func (w *walker) elementList(items []interface{}, depth int) *Node {
	if depth >= w.maxDepth || !w.spend() {
		return newLeaf(TagOversized)
	}
	nodes := make([]*Node, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, w.structural(item, depth+1))
	}
	return newList(nodes)
}
