package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/sar/modules/registry/infrastructure/persistence"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent compute runs stored in the report database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := root.openReport(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := report.ListRuns(cmd.Context(), limit)
			if err != nil {
				return withCode(exitStorage, err)
			}
			if runs == nil {
				runs = []persistence.RunRecord{}
			}
			return writeJSONLine(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}
