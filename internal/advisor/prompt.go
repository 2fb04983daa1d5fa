// Prompt construction for query-group optimization requests
package advisor

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nainya/querylens/pkg/group"
	"github.com/nainya/querylens/pkg/metacache"
)

// BuildPrompt renders the analysis context for one query group: the
// representative operation plus group impact statistics and, when
// available, the collection's schema sample, index list and the
// representative's execution plan.
func BuildPrompt(g *group.QueryGroup, meta *metacache.Entry, plan bson.M) string {
	rep := g.Representative

	var b strings.Builder
	b.WriteString("You are an expert MongoDB performance optimization assistant. ")
	b.WriteString("Analyze the following slow query pattern and its context and provide actionable recommendations.\n")

	b.WriteString("\n--- Query Pattern Details ---\n")
	fmt.Fprintf(&b, "Namespace: %s\n", rep.Namespace)
	fmt.Fprintf(&b, "Operation Type: %s\n", rep.Kind)
	fmt.Fprintf(&b, "Impact: this pattern affects %d queries\n", g.Count)
	fmt.Fprintf(&b, "Duration (ms): min %d, max %d, avg %.1f\n", g.MinMS, g.MaxMS, g.AvgMS())
	fmt.Fprintf(&b, "Observed At (representative): %s\n", rep.ObservedAt)

	b.WriteString("Representative Operation:\n")
	b.WriteString(renderDoc(rep.Raw))
	b.WriteString("\n")

	if meta != nil {
		b.WriteString("\n--- Collection Schema Sample ---\n")
		b.WriteString(renderDoc(meta.Schema))
		b.WriteString("\n")

		b.WriteString("\n--- Existing Indexes ---\n")
		if len(meta.Indexes) == 0 {
			b.WriteString("none\n")
		}
		for _, idx := range meta.Indexes {
			parts := make([]string, 0, len(idx.Keys))
			for _, k := range idx.Keys {
				parts = append(parts, fmt.Sprintf("%s: %s", k.Field, k.Spec))
			}
			fmt.Fprintf(&b, "%s {%s}", idx.Name, strings.Join(parts, ", "))
			if idx.Unique {
				b.WriteString(" (unique)")
			}
			if idx.Sparse {
				b.WriteString(" (sparse)")
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\n--- Collection Schema Sample ---\nunavailable\n")
	}

	b.WriteString("\n--- Explain Plan (queryPlanner) ---\n")
	if plan != nil {
		b.WriteString(renderDoc(plan))
		b.WriteString("\n")
	} else {
		b.WriteString("N/A\n")
	}

	b.WriteString("\n--- Recommendations ---\n")
	b.WriteString("1. Index Recommendations\n")
	b.WriteString("2. Query Rewrites\n")
	b.WriteString("3. Data Model Advice\n")
	b.WriteString("4. Other Performance Tips\n")

	return b.String()
}

// renderDoc formats a document as relaxed extended JSON for the prompt
func renderDoc(v interface{}) string {
	if v == nil {
		return "N/A"
	}
	out, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
