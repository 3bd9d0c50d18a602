package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
)

func newCleanupCmd() *cobra.Command {
	var (
		platform  string
		namespace string
		force     bool
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove resources left behind by interrupted runs",
		Long: `Cleanup removes deployed resources that a crashed or interrupted run
could not tear down itself. Resources are found through the managed-by
label, so only things this tool created are touched.

On Kubernetes platforms the managed custom resources and the namespace
are deleted. On the container platform labeled containers are removed.
The local-binary platform keeps no state beyond the process, so there is
nothing to clean.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default()

			p := config.Platform(platform)
			if !p.Valid() {
				return config.NewConfigError("platform", fmt.Sprintf("unknown platform %q", platform))
			}

			switch {
			case p == config.PlatformLocalBinary:
				fmt.Fprintln(cmd.OutOrStdout(), "local-binary keeps no state, nothing to clean")
				return nil

			case p == config.PlatformContainer:
				removed, err := deploy.CleanupManagedContainers(cmd.Context(), "", logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d container(s)\n", len(removed))
				return nil
			}

			if !all && namespace == "" {
				return config.NewConfigError("namespace", "a namespace is required unless --all is set")
			}

			cs, dyn, err := deploy.NewClients()
			if err != nil {
				return err
			}

			namespaces := []string{namespace}
			if all {
				namespaces, err = deploy.ListManagedNamespaces(cmd.Context(), cs)
				if err != nil {
					return err
				}
				if len(namespaces) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no managed namespaces found")
					return nil
				}
			}

			for _, ns := range namespaces {
				if err := deploy.CleanupNamespace(cmd.Context(), cs, dyn, ns, force, logger); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleaned namespace %s\n", ns)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", string(config.PlatformKind), "platform to clean up")
	cmd.Flags().StringVar(&namespace, "namespace", "", "namespace to clean up (Kubernetes platforms)")
	cmd.Flags().BoolVar(&force, "force", false, "also delete namespaces this tool did not create")
	cmd.Flags().BoolVar(&all, "all", false, "clean every namespace carrying the managed-by label")

	return cmd
}
