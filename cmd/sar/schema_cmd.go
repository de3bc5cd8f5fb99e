package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/sar/modules/registry/services"
)

type schemaOutput struct {
	Schema     map[string][]string `json:"schema"`
	SchemaHash string              `json:"schema_hash"`
}

func newSchemaCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the columns of every level sheet and their hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := root.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			schema, err := registry.SchemaMap(cmd.Context())
			if err != nil {
				return registryError(err)
			}
			hash, err := services.SchemaHash(schema)
			if err != nil {
				return withCode(exitStorage, err)
			}
			return writeJSONLine(cmd.OutOrStdout(), schemaOutput{Schema: schema, SchemaHash: hash})
		},
	}
}
