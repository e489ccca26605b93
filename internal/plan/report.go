package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Report renders a human-readable validation summary for the CLI and logs.
func (r Result) Report() string {
	var sb strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, "PLAN REVIEW GATE")
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "Total Tasks: %d\n\n", r.TaskCount)

	fmt.Fprintln(&sb, "Phase Coverage:")
	phases := make([]string, 0, len(r.PhaseCoverage))
	for p := range r.PhaseCoverage {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	for _, p := range phases {
		fmt.Fprintf(&sb, "  - %s: %d tasks\n", p, r.PhaseCoverage[p])
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(&sb, "\nERRORS (must fix):")
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "  ✗ %s\n", e)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(&sb, "\nWARNINGS:")
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "  ! %s\n", w)
		}
	}

	verdict := "REJECTED"
	if r.Valid {
		verdict = "APPROVED"
	}
	fmt.Fprintf(&sb, "\nVERDICT: %s\n", verdict)
	fmt.Fprintln(&sb, rule)

	return sb.String()
}
