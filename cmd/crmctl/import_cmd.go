package main

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/importer"
	"github.com/crmflow/api/internal/schema"
	"github.com/crmflow/api/internal/store"
)

func newImportCmd() *cobra.Command {
	var (
		entityName string
		file       string
		tenant     string
		actor      string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV file into a tenant (use --dry-run to validate only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := schema.Lookup(entityName)
			if err != nil {
				return err
			}
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			actorID, err := parseUUIDFlag("actor", actor)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			if !utf8.Valid(data) {
				return fmt.Errorf("%s is not valid UTF-8", file)
			}

			cfg, pool, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cmd.ErrOrStderr())
			q := store.New(pool)
			mode := importer.ModeApply
			if dryRun {
				mode = importer.ModeDryRun
			}

			im := importer.New(q.Records(tenantID, &actorID), identity.NewResolver(q.Profiles(tenantID), logger), importer.Options{
				MaxRows: cfg.ImportMaxRows,
				Dates:   cfg.Dates(),
				Logger:  logger,
			})
			outcome, err := im.Run(cmd.Context(), importer.Request{
				Entity:  entity,
				Text:    string(data),
				ActorID: actorID.String(),
				Mode:    mode,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), outcome)
		},
	}

	cmd.Flags().StringVar(&entityName, "entity", "", "Entity to import (required)")
	cmd.Flags().StringVar(&file, "file", "", "CSV file path (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "UUID of the user the import runs as (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate rows without inserting")
	for _, name := range []string{"entity", "file", "tenant", "actor"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
