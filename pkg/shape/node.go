// ABOUTME: Canonical shape tree produced by normalization
// ABOUTME: Deterministic sorted-key, order-preserving-array encoding

package shape

import (
	"sort"
	"strconv"
	"strings"
)

// NodeKind discriminates the three canonical shape node forms
type NodeKind int

const (
	LeafNode NodeKind = iota
	DocNode
	ListNode
)

// Node is one position in a canonical shape. A shape is a pure value with
// no identity; two shapes are equal iff their encodings are equal.
type Node struct {
	Kind   NodeKind
	Tag    Tag     // set for LeafNode
	Fields []Field // sorted by name, set for DocNode
	Items  []*Node // order-significant, set for ListNode
}

// Field is a named child of a document node
type Field struct {
	Name  string
	Value *Node
}

func newLeaf(tag Tag) *Node {
	return &Node{Kind: LeafNode, Tag: tag}
}

func newDoc(fields []Field) *Node {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return &Node{Kind: DocNode, Fields: fields}
}

func newList(items []*Node) *Node {
	return &Node{Kind: ListNode, Items: items}
}

// Encode serializes the shape deterministically: document keys are
// emitted in sorted order and quoted, list order is preserved. The
// encoding is the fingerprint input, so it must be stable across runs.
func (n *Node) Encode() string {
	var b strings.Builder
	n.encode(&b)
	return b.String()
}

func (n *Node) encode(b *strings.Builder) {
	switch n.Kind {
	case LeafNode:
		b.WriteString(string(n.Tag))
	case DocNode:
		b.WriteByte('{')
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(f.Name))
			b.WriteByte(':')
			f.Value.encode(b)
		}
		b.WriteByte('}')
	case ListNode:
		b.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			item.encode(b)
		}
		b.WriteByte(']')
	}
}

// Equal reports structural equality of two shapes, type tags included
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.Encode() == other.Encode()
}
