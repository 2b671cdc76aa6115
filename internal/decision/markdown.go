package decision

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders the checklist as a Markdown table, used in operator
// notifications.
func RenderMarkdown(address string, d *Decision) string {
	var sb strings.Builder

	verdict := "TRADE"
	if !d.Trade {
		verdict = "REJECT (" + d.Reason + ")"
	}
	sb.WriteString(fmt.Sprintf("**%s**: %s\n\n", address, verdict))

	sb.WriteString("| Criterion | Threshold | Actual | Pass |\n")
	sb.WriteString("|-----------|-----------|--------|------|\n")
	for _, c := range d.Checks {
		passStr := "PASS"
		if !c.Pass {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.Name, c.Threshold, c.Actual, passStr))
	}

	return sb.String()
}
