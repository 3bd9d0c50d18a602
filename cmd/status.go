package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
)

func newStatusCmd() *cobra.Command {
	var (
		prometheusURL string
		orgID         string
		bearerToken   string
		timeout       time.Duration
		insecure      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the health of a Prometheus target",
		Long: `Status probes a Prometheus-compatible target and prints its health,
readiness, build information and TSDB head statistics. It exits non-zero
when the target is unreachable or unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(&client.Config{
				BaseURL:            prometheusURL,
				Timeout:            timeout,
				BearerToken:        bearerToken,
				OrgID:              orgID,
				InsecureSkipVerify: insecure,
			})
			if err != nil {
				return config.NewConfigError("prometheus-url", err.Error())
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Check", "Result"})

			healthErr := c.Healthy(ctx)
			t.AppendRow(table.Row{"healthy", checkResult(healthErr)})

			readyErr := c.Ready(ctx)
			t.AppendRow(table.Row{"ready", checkResult(readyErr)})

			if info, err := c.BuildInfo(ctx); err != nil {
				t.AppendRow(table.Row{"build info", checkResult(err)})
			} else {
				t.AppendRow(table.Row{"version", info.Version})
				if info.Revision != "" {
					t.AppendRow(table.Row{"revision", info.Revision})
				}
				if info.GoVersion != "" {
					t.AppendRow(table.Row{"go version", info.GoVersion})
				}
			}

			if tsdb, err := c.TSDBStatus(ctx); err != nil {
				t.AppendRow(table.Row{"tsdb status", checkResult(err)})
			} else {
				t.AppendRow(table.Row{"head series", tsdb.HeadStats.NumSeries})
				t.AppendRow(table.Row{"head chunks", tsdb.HeadStats.ChunkCount})
			}

			fmt.Fprintf(out, "Target: %s\n", c.BaseURL())
			fmt.Fprintln(out, t.Render())

			if healthErr != nil {
				return fmt.Errorf("target is not healthy: %w", healthErr)
			}
			if readyErr != nil {
				return fmt.Errorf("target is not ready: %w", readyErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prometheusURL, "prometheus-url", "", "base URL of the target")
	cmd.Flags().StringVar(&orgID, "org-id", "", "tenant ID sent as X-Scope-OrgID")
	cmd.Flags().StringVar(&bearerToken, "bearer-token", "", "bearer token for authenticated targets")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	_ = cmd.MarkFlagRequired("prometheus-url")

	return cmd
}

func checkResult(err error) string {
	if err != nil {
		return "FAIL: " + err.Error()
	}
	return "OK"
}
