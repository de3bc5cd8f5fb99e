package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sar/modules/registry/services"
)

var errEmptyRun = errors.New("run file carries no view")

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <before/run.json> <after/run.json>",
		Short: "Print a JSON Patch between the view and issues of two computed runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var before, after services.Run
			if err := readJSONFile(args[0], &before); err != nil {
				return err
			}
			if err := readJSONFile(args[1], &after); err != nil {
				return err
			}
			if before.Result == nil || after.Result == nil {
				return withCode(exitValidation, errEmptyRun)
			}
			patch, err := services.DiffRuns(&before, &after)
			if err != nil {
				return withCode(exitValidation, err)
			}
			return writeJSONLine(cmd.OutOrStdout(), json.RawMessage(patch))
		},
	}
}
