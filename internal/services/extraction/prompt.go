package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

const extractionSystemPrompt = `You extract structured data from e-commerce page content.
Respond with a single JSON object and nothing else. Use null for values the
content does not contain. Do not invent data.`

// BuildPrompt assembles the per-chunk extraction prompt from the caller's
// goal, an optional shape hint, and the chunk itself.
func BuildPrompt(chunk Chunk, goal string, shape map[string]interface{}) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Extraction goal: %s\n\n", goal)

	if len(shape) > 0 {
		if hint, err := json.MarshalIndent(shape, "", "  "); err == nil {
			b.WriteString("Return a JSON object with this shape:\n")
			b.Write(hint)
			b.WriteString("\n\n")
		}
	}

	fmt.Fprintf(&b, "Content %s:\n%s", chunk.Label(), chunk.Text)
	return b.String()
}
