package research

import (
	"fmt"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// BuildBackground renders the shared background block: one <global_summary>
// element per factor artifact, the market's target-symbol context, and the
// agent's standing belief. Pure function, deterministic for fixed inputs.
func BuildBackground(factors []*models.FactorArtifact, symbolContext, belief string) string {
	var b strings.Builder
	for _, f := range factors {
		fmt.Fprintf(&b, "<global_summary>\n<source>%s</source>\n%s\n</global_summary>\n", f.AgentName, f.ContextString)
	}
	if symbolContext != "" {
		b.WriteString("\nTarget symbols:\n")
		b.WriteString(symbolContext)
		b.WriteString("\n")
	}
	if belief != "" {
		b.WriteString("\nYour standing belief:\n")
		b.WriteString(belief)
		b.WriteString("\n")
	}
	return b.String()
}
