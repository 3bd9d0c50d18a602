package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/report"
)

func newReportCmd() *cobra.Command {
	var (
		inputPath string
		outputDir string
		formats   []string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render a stored run result into other formats",
		Long: `Report reads the JSON result of a previous run and renders it into the
requested formats. The JSON format is canonical: it round-trips without
loss, so a run can be re-rendered at any time.

Without --output the text rendering is printed to stdout; other formats
require an output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range formats {
				if !report.ValidFormat(f) {
					return config.NewConfigError("format", fmt.Sprintf("unknown report format %q", f))
				}
			}

			suite, err := report.ReadSuite(inputPath)
			if err != nil {
				return err
			}

			if outputDir == "" {
				if len(formats) != 1 || formats[0] != string(report.FormatText) {
					return config.NewConfigError("output", "an output directory is required for non-text formats")
				}
				fmt.Fprint(cmd.OutOrStdout(), report.Text(suite))
				return nil
			}

			gen := report.NewGenerator(outputDir, slog.Default())
			paths, err := gen.Write(suite, formats)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON result file from a previous run")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory rendered reports are written to")
	cmd.Flags().StringSliceVar(&formats, "format", []string{"text"}, "report formats: json, csv, text, html (repeatable)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
