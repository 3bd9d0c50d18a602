package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/report"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "List supported platforms, test types, formats and queries",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Platforms:")
			pt := table.NewWriter()
			pt.SetStyle(table.StyleLight)
			pt.AppendHeader(table.Row{"Platform", "Managed", "Multi-Replica"})
			for _, p := range config.AllPlatforms() {
				pt.AppendRow(table.Row{p, yesNo(p.IsManaged()), yesNo(p.IsManaged())})
			}
			fmt.Fprintln(out, pt.Render())

			fmt.Fprintln(out, "\nTest types (in execution order):")
			tt := table.NewWriter()
			tt.SetStyle(table.StyleLight)
			tt.AppendHeader(table.Row{"#", "Type", "Scheduling"})
			for i, t := range config.AllTestTypes() {
				sched := "shared"
				if t.Exclusive() {
					sched = "exclusive"
				}
				tt.AppendRow(table.Row{i + 1, t, sched})
			}
			fmt.Fprintln(out, tt.Render())

			fmt.Fprint(out, "\nReport formats: ")
			for i, f := range report.AllFormats() {
				if i > 0 {
					fmt.Fprint(out, ", ")
				}
				fmt.Fprint(out, f)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "\nQuery catalog:")
			qt := table.NewWriter()
			qt.SetStyle(table.StyleLight)
			qt.AppendHeader(table.Row{"Name", "Category", "Unit", "Description"})
			for _, q := range client.Catalog() {
				qt.AppendRow(table.Row{q.Name, q.Category, q.Unit, text.WrapSoft(q.Description, 50)})
			}
			fmt.Fprintln(out, qt.Render())
		},
	}
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
