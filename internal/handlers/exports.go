package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/crmflow/api/internal/audit"
	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/exporter"
	"github.com/crmflow/api/internal/httpx"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/middleware"
	"github.com/crmflow/api/internal/schema"
)

type exportParams struct {
	Format *string
	Owner  *string
	From   *openapi_types.Date
	To     *openapi_types.Date
}

func bindExportParams(r *http.Request) (exportParams, error) {
	var params exportParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "format", query, &params.Format); err != nil {
		return params, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "owner", query, &params.Owner); err != nil {
		return params, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "from", query, &params.From); err != nil {
		return params, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "to", query, &params.To); err != nil {
		return params, err
	}
	return params, nil
}

func (s *Server) GetExport(w http.ResponseWriter, r *http.Request, entityName string) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	entity, err := schema.Lookup(entityName)
	if err != nil {
		httpx.WriteError(w, r, http.StatusNotFound, "unknown_entity", "Export entity not found", nil)
		return
	}

	params, err := bindExportParams(r)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	format := exporter.FormatCSV
	if params.Format != nil {
		parsed, ok := exporter.ParseFormat(strings.ToLower(*params.Format))
		if !ok {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "format must be csv or xlsx", nil)
			return
		}
		format = parsed
	}

	records, profiles := s.Stores(tenantID, nil)
	resolver := identity.NewResolver(profiles, s.Logger)

	loc := s.Config.ImportLocation
	if loc == nil {
		loc = time.UTC
	}
	var filter crm.Filter
	if params.From != nil {
		from := dayStart(params.From.Time, loc)
		filter.CreatedGTE = &from
	}
	if params.To != nil {
		to := dayStart(params.To.Time, loc).AddDate(0, 0, 1)
		filter.CreatedLT = &to
	}
	if filter.CreatedGTE != nil && filter.CreatedLT != nil && !filter.CreatedLT.After(*filter.CreatedGTE) {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "`to` must not be before `from`", nil)
		return
	}

	if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" {
		if entity.OwnerField == "" {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", entity.Name+" cannot be filtered by owner", nil)
			return
		}
		owner := strings.TrimSpace(*params.Owner)
		ownerID := identity.ResolveIdentifierFromName(owner, resolver.IDsByNames(r.Context(), []string{owner}), "")
		if ownerID == "" {
			httpx.WriteError(w, r, http.StatusBadRequest, "unknown_owner", "No active user matches owner", map[string]any{"owner": owner})
			return
		}
		filter.OwnerID = ownerID
	}

	file, err := exporter.New(records, resolver, exporter.Options{
		Location: loc,
		MaxRows:  s.Config.ExportMaxRows,
		Logger:   s.Logger,
	}).Export(r.Context(), exporter.Request{Entity: entity, Filter: filter, Format: format})
	if err != nil {
		s.Logger.Error("export_failed", "entity", entity.Name, "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to export records", nil)
		return
	}

	s.Audit.Record(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     audit.ActionExportDownloaded,
		EntityType: entity.Name,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"format":   string(format),
			"rows":     file.Rows,
			"filename": file.Name,
			"owner":    filter.OwnerID,
		},
	})
	s.Metrics.ObserveExport(entity.Name, string(format), file.Rows)

	httpx.WriteAttachment(w, file.ContentType, file.Name, file.Body)
}

func dayStart(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}
