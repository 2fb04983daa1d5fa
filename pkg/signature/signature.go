// ABOUTME: Deterministic fingerprinting of canonical query shapes
// ABOUTME: xxhash digest over (namespace, operation kind, encoded shape)

package signature

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/nainya/querylens/pkg/profile"
	"github.com/nainya/querylens/pkg/shape"
)

// Signature is a fixed-width fingerprint of (namespace, operation kind,
// canonical shape). Comparable by equality; two records share a signature
// iff they share all three components. Collisions are not detected.
type Signature string

// HexWidth is the fixed length of a Signature's hex form
const HexWidth = 16

// Compute fingerprints a canonical shape. The digest is xxhash64: fast,
// unseeded and stable across processes and runs. Components are separated
// by a NUL byte, which cannot occur in namespaces, kinds or encodings.
func Compute(ns profile.Namespace, kind profile.OpKind, node *shape.Node) Signature {
	d := xxhash.New()
	_, _ = d.WriteString(ns.String())
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(string(kind))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(node.Encode())
	return Signature(fmt.Sprintf("%016x", d.Sum64()))
}
