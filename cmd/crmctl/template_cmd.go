package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crmflow/api/internal/schema"
)

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "template <entity>",
		Short:     "Print the import template for an entity",
		Args:      cobra.ExactArgs(1),
		ValidArgs: schema.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := schema.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("%w (known: %s)", err, strings.Join(schema.Names(), ", "))
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), entity.Template())
			return err
		},
	}
}
