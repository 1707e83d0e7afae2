package orchestrator

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"obsctl/internal/supervisor"
)

// ServiceReport is one service's terminal outcome plus the run-level
// attributes the summary needs.
type ServiceReport struct {
	supervisor.Result
	Required bool
	Disabled bool
}

// Summary aggregates the terminal outcome of every declared service, in
// declaration order.
type Summary struct {
	Reports []ServiceReport
}

// Success reports whether every required, enabled service reached Healthy.
// Optional services failing never affect the run's outcome.
func (s Summary) Success() bool {
	for _, report := range s.Reports {
		if report.Disabled || !report.Required {
			continue
		}
		if !report.Healthy() {
			return false
		}
	}
	return true
}

// ExitCode maps the summary to the orchestrator's process exit code.
func (s Summary) ExitCode() int {
	if s.Success() {
		return 0
	}
	return 1
}

// Render produces the final human-readable report: one line per service with
// its status, port and ownership, followed by actionable hints for any
// service that did not come up.
func (s Summary) Render() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "SERVICE\tSTATUS\tPORT\tOWNED BY US")
	for _, report := range s.Reports {
		status := string(report.Status)
		if report.Disabled {
			status = "Disabled"
		} else if report.Unverified {
			status += " (unverified)"
		}
		port := "-"
		if report.Port > 0 {
			port = fmt.Sprintf("%d", report.Port)
		}
		owned := "no"
		if report.OwnedByUs {
			owned = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", report.Name, status, port, owned)
	}
	w.Flush()

	for _, report := range s.Reports {
		if report.Disabled || report.Healthy() || report.Hint == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%s: %s", report.Name, report.Hint)
		if report.Err != nil {
			fmt.Fprintf(&sb, " (%v)", report.Err)
		}
	}

	return sb.String()
}
