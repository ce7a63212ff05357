package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/crmflow/api/internal/audit"
	"github.com/crmflow/api/internal/csvio"
	"github.com/crmflow/api/internal/httpx"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/importer"
	"github.com/crmflow/api/internal/middleware"
	"github.com/crmflow/api/internal/schema"
	"github.com/crmflow/api/internal/store"
)

// responseErrorLimit caps the row errors echoed in JSON responses. The full
// list (up to store.MaxStoredRowErrors) is available as errors.csv.
const responseErrorLimit = 100

var supportedCSVContentTypes = map[string]struct{}{
	"text/csv":                 {},
	"application/csv":          {},
	"text/plain":               {},
	"application/vnd.ms-excel": {},
}

type importOptions struct {
	Entity string `json:"entity" validate:"required"`
}

type importUpload struct {
	filename   string
	fileSHA256 string
	entity     schema.Entity
	text       string
}

type importSummary struct {
	Entity       string `json:"entity"`
	Mode         string `json:"mode"`
	RowsTotal    int    `json:"rowsTotal"`
	SuccessCount int    `json:"successCount"`
	ErrorCount   int    `json:"errorCount"`
	FailureCode  string `json:"failureCode,omitempty"`
}

type importRunResponse struct {
	ID              uuid.UUID           `json:"id"`
	Entity          string              `json:"entity"`
	Mode            string              `json:"mode"`
	Status          string              `json:"status"`
	Filename        string              `json:"filename"`
	FileSHA256      string              `json:"fileSha256"`
	CreatedAt       time.Time           `json:"createdAt"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	Summary         importSummary       `json:"summary"`
	Errors          []importer.RowError `json:"errors"`
	ErrorsTruncated bool                `json:"errorsTruncated"`
	RequestID       string              `json:"requestId"`
}

func (s *Server) PostImportsDryRun(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importer.ModeDryRun)
}

func (s *Server) PostImportsApply(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importer.ModeApply)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, mode importer.Mode) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	upload, appErr := s.parseImportUpload(r)
	if appErr != nil {
		appErr.write(w, r)
		return
	}

	// The client going away must not leave half an import behind.
	ctx := context.WithoutCancel(r.Context())
	requestID := middleware.RequestIDFromContext(ctx)

	run, err := s.Runs.CreateImportRun(ctx, store.CreateImportRunParams{
		TenantID:        tenantID,
		CreatedByUserID: &userID,
		Entity:          upload.entity.Name,
		Mode:            string(mode),
		Filename:        upload.filename,
		FileSHA256:      upload.fileSHA256,
		Status:          "running",
	})
	if err != nil {
		s.Logger.Error("import_run_create_failed", "error", err, "request_id", requestID)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create import run", nil)
		return
	}

	runID := run.ID
	startAction, completeAction := audit.ImportActions(mode == importer.ModeApply)
	s.Audit.Record(ctx, audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     startAction,
		EntityType: "import_run",
		EntityID:   &runID,
		RequestID:  requestID,
		Metadata: map[string]any{
			"entity":     upload.entity.Name,
			"mode":       mode,
			"filename":   upload.filename,
			"fileSha256": upload.fileSHA256,
		},
	})

	records, profiles := s.Stores(tenantID, &userID)
	im := importer.New(records, identity.NewResolver(profiles, s.Logger), importer.Options{
		MaxRows: s.Config.ImportMaxRows,
		Dates:   s.Config.Dates(),
		Logger:  s.Logger.With("import_run_id", runID.String(), "request_id", requestID),
	})
	outcome, runErr := im.Run(ctx, importer.Request{
		Entity:  upload.entity,
		Text:    upload.text,
		ActorID: userID.String(),
		Mode:    mode,
	})

	summary := importSummary{
		Entity:       upload.entity.Name,
		Mode:         string(mode),
		RowsTotal:    outcome.RowsTotal,
		SuccessCount: outcome.SuccessCount,
		ErrorCount:   outcome.ErrorCount,
	}
	status := "completed"
	var structural *importer.StructuralError
	if runErr != nil {
		status = "failed"
		summary.FailureCode = "internal_error"
		if errors.As(runErr, &structural) {
			summary.FailureCode = structural.Code
		}
	}

	if len(outcome.Errors) > 0 {
		if _, err := s.Runs.InsertImportRowErrors(ctx, tenantID, runID, toStoredRowErrors(outcome.Errors)); err != nil {
			s.Logger.Warn("import_row_errors_store_failed", "import_run_id", runID.String(), "error", err)
		}
	}

	summaryJSON, _ := json.Marshal(summary)
	completed, err := s.Runs.CompleteImportRun(ctx, store.CompleteImportRunParams{
		ID:          runID,
		TenantID:    tenantID,
		Status:      status,
		SummaryJSON: summaryJSON,
	})
	if err != nil {
		s.Logger.Error("import_run_complete_failed", "import_run_id", runID.String(), "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to complete import run", nil)
		return
	}

	s.Audit.Record(ctx, audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     completeAction,
		EntityType: "import_run",
		EntityID:   &runID,
		RequestID:  requestID,
		Metadata: map[string]any{
			"entity":     upload.entity.Name,
			"mode":       mode,
			"filename":   upload.filename,
			"fileSha256": upload.fileSHA256,
			"status":     status,
			"summary":    summary,
		},
	})
	s.Metrics.ObserveImport(upload.entity.Name, string(mode), status, outcome.SuccessCount, outcome.ErrorCount)

	if runErr != nil {
		if structural != nil {
			details := map[string]any{"importRunId": runID}
			if extra, ok := structural.Details.(map[string]any); ok {
				for k, v := range extra {
					details[k] = v
				}
			}
			httpx.WriteError(w, r, http.StatusBadRequest, structural.Code, structural.Message, details)
			return
		}
		s.Logger.Error("import_failed", "import_run_id", runID.String(), "error", runErr)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Import failed", map[string]any{"importRunId": runID})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newImportRunResponse(completed, summary, outcome.Errors, requestID))
}

func (s *Server) GetImportRun(w http.ResponseWriter, r *http.Request, importRunID string) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}
	run, appErr := s.loadImportRun(r, tenantID, importRunID)
	if appErr != nil {
		appErr.write(w, r)
		return
	}

	var summary importSummary
	if len(run.SummaryJSON) > 0 {
		if err := json.Unmarshal(run.SummaryJSON, &summary); err != nil {
			s.Logger.Warn("import_run_summary_invalid", "import_run_id", run.ID.String(), "error", err,
				"request_id", middleware.RequestIDFromContext(r.Context()))
		}
	}

	stored, err := s.Runs.ListImportRowErrors(r.Context(), tenantID, run.ID, responseErrorLimit+1)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import errors", nil)
		return
	}
	rowErrors := make([]importer.RowError, 0, len(stored))
	for _, row := range stored {
		rowErrors = append(rowErrors, fromStoredRowError(row))
	}

	httpx.WriteJSON(w, http.StatusOK, newImportRunResponse(run, summary, rowErrors, middleware.RequestIDFromContext(r.Context())))
}

func (s *Server) GetImportRunErrorsCSV(w http.ResponseWriter, r *http.Request, importRunID string) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}
	run, appErr := s.loadImportRun(r, tenantID, importRunID)
	if appErr != nil {
		appErr.write(w, r)
		return
	}

	stored, err := s.Runs.ListImportRowErrors(r.Context(), tenantID, run.ID, store.MaxStoredRowErrors)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import errors", nil)
		return
	}

	rows := make([][]string, 0, len(stored))
	for _, row := range stored {
		rows = append(rows, []string{
			strconv.Itoa(int(row.RowNumber)),
			strconv.Itoa(int(row.LineNumber)),
			derefString(row.Field),
			row.Message,
			derefString(row.RawValue),
		})
	}
	body := csvio.Build([]string{"row_number", "line_number", "field", "message", "raw_value"}, rows)
	httpx.WriteAttachment(w, "text/csv; charset=utf-8", fmt.Sprintf("import-%s-errors.csv", run.ID), []byte(body))
}

func (s *Server) GetImportTemplate(w http.ResponseWriter, r *http.Request, entityName string) {
	entity, err := schema.Lookup(entityName)
	if err != nil {
		httpx.WriteError(w, r, http.StatusNotFound, "template_not_found", "Import template not found", nil)
		return
	}
	httpx.WriteAttachment(w, "text/csv; charset=utf-8", entity.Name+"-template.csv", []byte(entity.Template()))
}

func (s *Server) loadImportRun(r *http.Request, tenantID uuid.UUID, rawID string) (store.ImportRun, *appError) {
	runID, err := uuid.Parse(rawID)
	if err != nil {
		return store.ImportRun{}, &appError{Status: http.StatusBadRequest, Code: "validation_error", Message: "importRunId must be a UUID"}
	}
	run, err := s.Runs.GetImportRunByID(r.Context(), runID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ImportRun{}, &appError{Status: http.StatusNotFound, Code: "import_run_not_found", Message: "Import run not found"}
		}
		return store.ImportRun{}, &appError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "Failed to load import run"}
	}
	return run, nil
}

func (s *Server) parseImportUpload(r *http.Request) (importUpload, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "invalid_content_type", Message: "Content-Type must be multipart/form-data"}
	}

	if err := r.ParseMultipartForm(s.Config.ImportMaxFileBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return importUpload{}, &appError{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "file_too_large",
				Message: "Uploaded file exceeds the size limit",
				Details: map[string]any{"maxBytes": s.Config.ImportMaxFileBytes},
			}
		}
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "invalid_multipart", Message: "Failed to parse multipart form"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "missing_file", Message: "file is required"}
	}
	defer file.Close()

	optionsRaw := strings.TrimSpace(r.FormValue("options"))
	if optionsRaw == "" {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "missing_options", Message: "options is required"}
	}
	var options importOptions
	if err := json.Unmarshal([]byte(optionsRaw), &options); err != nil {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "invalid_options", Message: "options must be valid JSON"}
	}
	if err := s.validate.Struct(options); err != nil {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "validation_error", Message: "options.entity is required"}
	}
	entity, err := schema.Lookup(options.Entity)
	if err != nil {
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "unknown_entity",
			Message: fmt.Sprintf("options.entity must be one of %s", strings.Join(schema.Names(), ", ")),
		}
	}

	filename := header.Filename
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		if contentType != "" {
			if _, ok := supportedCSVContentTypes[contentType]; !ok {
				return importUpload{}, &appError{
					Status:  http.StatusBadRequest,
					Code:    "invalid_content_type",
					Message: "Unsupported CSV content type",
					Details: map[string]any{"contentType": contentType},
				}
			}
		}
	case ".xlsx", ".xls":
		return importUpload{}, &appError{
			Status:  http.StatusBadRequest,
			Code:    "XLSX_NOT_SUPPORTED",
			Message: "Spreadsheet import is not supported. Please save the sheet as CSV and upload that.",
		}
	default:
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "invalid_file_type", Message: "Only .csv uploads are supported"}
	}

	data, err := io.ReadAll(io.LimitReader(file, s.Config.ImportMaxFileBytes+1))
	if err != nil {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "invalid_file", Message: "Failed to read uploaded file"}
	}
	if int64(len(data)) > s.Config.ImportMaxFileBytes {
		return importUpload{}, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "file_too_large",
			Message: "Uploaded file exceeds the size limit",
			Details: map[string]any{"maxBytes": s.Config.ImportMaxFileBytes},
		}
	}
	if !utf8.Valid(data) {
		return importUpload{}, &appError{Status: http.StatusBadRequest, Code: "invalid_encoding", Message: "CSV must be UTF-8 encoded"}
	}

	digest := sha256.Sum256(data)
	return importUpload{
		filename:   filename,
		fileSHA256: hex.EncodeToString(digest[:]),
		entity:     entity,
		text:       string(data),
	}, nil
}

func newImportRunResponse(run store.ImportRun, summary importSummary, rowErrors []importer.RowError, requestID string) importRunResponse {
	truncated := len(rowErrors) > responseErrorLimit
	if truncated {
		rowErrors = rowErrors[:responseErrorLimit]
	}
	if rowErrors == nil {
		rowErrors = []importer.RowError{}
	}
	return importRunResponse{
		ID:              run.ID,
		Entity:          run.Entity,
		Mode:            run.Mode,
		Status:          run.Status,
		Filename:        run.Filename,
		FileSHA256:      run.FileSHA256,
		CreatedAt:       run.CreatedAt.UTC(),
		CompletedAt:     run.CompletedAt,
		Summary:         summary,
		Errors:          rowErrors,
		ErrorsTruncated: truncated || summary.ErrorCount > len(rowErrors),
		RequestID:       requestID,
	}
}

func toStoredRowErrors(rowErrors []importer.RowError) []store.ImportRowError {
	out := make([]store.ImportRowError, 0, min(len(rowErrors), store.MaxStoredRowErrors))
	for _, e := range rowErrors {
		if len(out) == store.MaxStoredRowErrors {
			break
		}
		out = append(out, store.ImportRowError{
			RowNumber:  int32(e.Row),
			LineNumber: int32(e.Line),
			Field:      optionalString(e.Field),
			Message:    truncateText(e.Message, 500),
			RawValue:   optionalString(truncateText(e.RawValue, 500)),
		})
	}
	return out
}

func fromStoredRowError(row store.ImportRowError) importer.RowError {
	return importer.RowError{
		Row:      int(row.RowNumber),
		Line:     int(row.LineNumber),
		Field:    derefString(row.Field),
		Message:  row.Message,
		RawValue: derefString(row.RawValue),
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func truncateText(v string, limit int) string {
	if utf8.RuneCountInString(v) <= limit {
		return v
	}
	runes := []rune(v)
	return string(runes[:limit])
}
