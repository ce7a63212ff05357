package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/exporter"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/schema"
	"github.com/crmflow/api/internal/store"
)

func newExportCmd() *cobra.Command {
	var (
		entityName string
		tenant     string
		format     string
		owner      string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tenant records as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := schema.Lookup(entityName)
			if err != nil {
				return err
			}
			tenantID, err := parseUUIDFlag("tenant", tenant)
			if err != nil {
				return err
			}
			f, ok := exporter.ParseFormat(strings.ToLower(format))
			if !ok {
				return fmt.Errorf("--format must be csv or xlsx")
			}
			owner = strings.TrimSpace(owner)
			if owner != "" && entity.OwnerField == "" {
				return fmt.Errorf("%s cannot be filtered by owner", entity.Name)
			}

			cfg, pool, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cmd.ErrOrStderr())
			q := store.New(pool)
			resolver := identity.NewResolver(q.Profiles(tenantID), logger)

			var filter crm.Filter
			if owner != "" {
				filter.OwnerID = identity.ResolveIdentifierFromName(owner, resolver.IDsByNames(cmd.Context(), []string{owner}), "")
				if filter.OwnerID == "" {
					return fmt.Errorf("no active user matches owner %q", owner)
				}
			}

			file, err := exporter.New(q.Records(tenantID, nil), resolver, exporter.Options{
				Location: cfg.ImportLocation,
				MaxRows:  cfg.ExportMaxRows,
				Logger:   logger,
			}).Export(cmd.Context(), exporter.Request{Entity: entity, Filter: filter, Format: f, Now: time.Now()})
			if err != nil {
				return err
			}

			w, err := stdoutOr(out)
			if err != nil {
				return err
			}
			if _, err := w.Write(file.Body); err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d %s row(s) as %s\n", file.Rows, entity.Name, file.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&entityName, "entity", "", "Entity to export (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner display name or user id")
	cmd.Flags().StringVar(&out, "out", "-", "Output path, - for stdout")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
