package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sar",
		Short:         "Spreadsheet architecture registry: compute, inspect and edit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.close()
		},
	}
	opts.bind(cmd.PersistentFlags())

	cmd.AddCommand(newComputeCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRecordCmd(opts))
	cmd.AddCommand(newSchemaCmd(opts))
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newRunsCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
