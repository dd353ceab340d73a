package main

import (
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Plan and check school timetables offline",
		Long: `schedctl runs the timetable scheduling engine on a YAML problem file.

Examples:
  # Check that every course can fit before running anything
  schedctl check term.yaml

  # Produce a timetable with the backtracking search
  schedctl plan term.yaml --algorithm BACKTRACKING --timeout 30s

  # Mint an access token for scripts calling the API
  schedctl token --user ops --role ADMIN --secret "$JWT_SECRET"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newPlanCmd(), newCheckCmd(), newTokenCmd())
	return root
}
