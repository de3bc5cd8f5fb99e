package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/services"
)

type writeResult struct {
	HumanID string        `json:"human_id"`
	RunID   string        `json:"run_id"`
	Summary issue.Summary `json:"summary"`
}

func newWriteResult(humanID string, run *services.Run) writeResult {
	return writeResult{HumanID: humanID, RunID: run.ID.String(), Summary: run.Summary}
}

func newRecordCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect and edit single registry records",
	}
	cmd.AddCommand(newRecordGetCmd(root))
	cmd.AddCommand(newRecordChildrenCmd(root))
	cmd.AddCommand(newRecordCreateCmd(root))
	cmd.AddCommand(newRecordUpdateCmd(root))
	cmd.AddCommand(newRecordSetStatusCmd(root))
	cmd.AddCommand(newRecordAddFieldCmd(root))
	return cmd
}

func newRecordGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <human_id>",
		Short: "Print a record with its children, descendant counts and issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			view, err := registry.Record(cmd.Context(), args[0])
			if err != nil {
				return registryError(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), view)
		},
	}
}

func newRecordChildrenCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "children <human_id>",
		Short: "List the direct children of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			children, err := registry.Children(cmd.Context(), args[0])
			if err != nil {
				return registryError(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), children)
		},
	}
}

func newRecordCreateCmd(root *rootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "create <level>",
		Short: "Append a record to C1..C4 under the next free human_id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, ok := level.Parse(args[0])
			if !ok {
				return withCode(exitUsage, fmt.Errorf("invalid level %q (expected C1|C2|C3|C4)", args[0]))
			}
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			humanID, run, err := registry.CreateRecord(cmd.Context(), l, fields)
			if err != nil {
				return registryError(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), newWriteResult(humanID, run))
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable); name is required")
	return cmd
}

func newRecordUpdateCmd(root *rootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "update <human_id>",
		Short: "Write existing columns of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return withCode(exitUsage, fmt.Errorf("at least one --set is required"))
			}
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			run, err := registry.UpdateFields(cmd.Context(), args[0], fields)
			if err != nil {
				return registryError(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), newWriteResult(args[0], run))
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	return cmd
}

func newRecordSetStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <human_id> <status>",
		Short: "Change the status of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			run, err := registry.SetStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return registryError(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), newWriteResult(args[0], run))
		},
	}
}

func newRecordAddFieldCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-field <human_id> <field> [value]",
		Short: "Add a new column to the record's sheet and set it on the record",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 3 {
				value = args[2]
			}
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			run, err := registry.AddField(cmd.Context(), args[0], args[1], value)
			if err != nil {
				return registryError(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), newWriteResult(args[0], run))
		},
	}
}

// parseAssignments turns repeated field=value flags into a map; the last one wins.
func parseAssignments(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, withCode(exitUsage, fmt.Errorf("invalid --set %q (expected field=value)", s))
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
