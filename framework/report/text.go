package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/monitoring-qa/promtest/framework"
)

// Text builds the human-readable terminal report: a run header, one table
// of per-type outcomes and one of threshold verdicts. The run command prints
// it to stdout in addition to any written report files.
func Text(suite *framework.SuiteResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Suite:    %s\n", suite.Suite)
	fmt.Fprintf(&sb, "Run ID:   %s\n", suite.RunID)
	fmt.Fprintf(&sb, "Platform: %s (%s)\n", suite.Platform, suite.DeploymentMode)
	if suite.TargetURL != "" {
		fmt.Fprintf(&sb, "Target:   %s", suite.TargetURL)
		if suite.TargetVersion != "" {
			fmt.Fprintf(&sb, " (version %s)", suite.TargetVersion)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Started:  %s\n", suite.Started.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(suite.Duration))
	fmt.Fprintf(&sb, "Status:   %s\n", strings.ToUpper(string(suite.Status)))
	if suite.Error != "" {
		fmt.Fprintf(&sb, "Error:    %s\n", suite.Error)
	}
	sb.WriteString("\n")

	results := table.NewWriter()
	results.SetStyle(table.StyleLight)
	results.AppendHeader(table.Row{"Test", "Status", "Duration", "Message"})
	for _, r := range suite.Results {
		results.AppendRow(table.Row{
			r.Type,
			strings.ToUpper(string(r.Status)),
			formatDuration(r.Duration),
			text.WrapSoft(r.Message, 60),
		})
	}
	sb.WriteString(results.Render())
	sb.WriteString("\n\n")

	if verdicts := verdictRows(suite); len(verdicts) > 0 {
		vt := table.NewWriter()
		vt.SetStyle(table.StyleLight)
		vt.AppendHeader(table.Row{"Test", "Metric", "Value", "Threshold", "Verdict"})
		vt.AppendRows(verdicts)
		sb.WriteString(vt.Render())
		sb.WriteString("\n\n")
	}

	passed, failed, skipped, errored := suite.Counts()
	fmt.Fprintf(&sb, "%d passed, %d failed, %d skipped, %d errored\n",
		passed, failed, skipped, errored)

	return sb.String()
}

func verdictRows(suite *framework.SuiteResult) []table.Row {
	var rows []table.Row
	for _, r := range suite.Results {
		for _, v := range r.Verdicts {
			bound := "-"
			if v.Direction != "" {
				op := "<="
				if v.Direction == "lower-bound" {
					op = ">="
				}
				bound = fmt.Sprintf("%s %g", op, v.Threshold)
			}
			rows = append(rows, table.Row{
				r.Type,
				v.Metric,
				fmt.Sprintf("%g", v.Value),
				bound,
				v.Status,
			})
		}
	}
	return rows
}

// formatDuration renders a duration without sub-second noise.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}
