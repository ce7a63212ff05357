package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/crmflow/api/api"
	"github.com/crmflow/api/internal/audit"
	"github.com/crmflow/api/internal/config"
	"github.com/crmflow/api/internal/handlers"
	"github.com/crmflow/api/internal/httpx"
	"github.com/crmflow/api/internal/metrics"
	"github.com/crmflow/api/internal/middleware"
	"github.com/crmflow/api/internal/store"
)

const (
	PermImportsRun  = "imports.run"
	PermImportsRead = "imports.read"
	PermExportsRead = "exports.read"
)

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}

// NewRouter builds the HTTP surface. m may be nil when metrics are disabled.
func NewRouter(cfg config.Config, q *store.Queries, logger *slog.Logger, m *metrics.Metrics) (http.Handler, error) {
	doc, err := LoadSpec()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Logging(logger))
	r.Use(m.Middleware)
	r.Use(middleware.LimitBodyBytesWithOverrides(cfg.APIMaxBodyBytes, []middleware.BodyLimitOverride{
		// multipart framing on top of the file itself
		{PathPrefix: "/imports/", MaxBytes: cfg.ImportMaxFileBytes + 1<<20},
	}))

	if m != nil && cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	validate := openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: w.Header().Get("X-Request-Id"),
			})
		},
	})

	h := handlers.NewServer(cfg, q, audit.NewLogger(q, logger), logger, m)
	authMW := middleware.AuthMiddleware{Sessions: q, CookieName: cfg.SessionCookieName}
	loginLimiter := middleware.NewLoginRateLimiter(10, time.Minute)
	exportLimiter := middleware.NewIPRateLimiterWithMaxEntries(30, time.Minute, cfg.RateLimitMaxIPs)
	imports := middleware.NewImportGuard()
	csrf := middleware.EnforceCSRF(cfg.CSRFEnforce)

	apiRouter := chi.NewRouter()

	apiRouter.Group(func(validated chi.Router) {
		validated.Use(validate)

		validated.With(loginLimiter.Middleware).Post("/auth/login", h.PostAuthLogin)
		validated.Get("/health", h.GetHealth)

		validated.Group(func(protected chi.Router) {
			protected.Use(authMW.RequireAuth)
			protected.Get("/auth/me", h.GetAuthMe)
			protected.Get("/auth/csrf", h.GetAuthCsrf)
			protected.With(csrf).Post("/auth/logout", h.PostAuthLogout)

			protected.With(middleware.RequirePermission(q, PermImportsRead)).Get("/imports/templates/{entity}", func(w http.ResponseWriter, r *http.Request) {
				h.GetImportTemplate(w, r, chi.URLParam(r, "entity"))
			})
			protected.With(middleware.RequirePermission(q, PermImportsRead)).Get("/imports/{importRunId}", func(w http.ResponseWriter, r *http.Request) {
				h.GetImportRun(w, r, chi.URLParam(r, "importRunId"))
			})
			protected.With(middleware.RequirePermission(q, PermImportsRead)).Get("/imports/{importRunId}/errors.csv", func(w http.ResponseWriter, r *http.Request) {
				h.GetImportRunErrorsCSV(w, r, chi.URLParam(r, "importRunId"))
			})
			protected.With(
				middleware.RequirePermission(q, PermExportsRead),
				exportLimiter.Middleware("Too many export requests"),
			).Get("/exports/{entity}", func(w http.ResponseWriter, r *http.Request) {
				h.GetExport(w, r, chi.URLParam(r, "entity"))
			})
		})
	})

	// Uploads skip body validation: the generic CSV decoder rejects ragged
	// rows that the importer reports per row. The handler checks the parts.
	apiRouter.Group(func(uploads chi.Router) {
		uploads.Use(authMW.RequireAuth)
		uploads.Use(middleware.RequirePermission(q, PermImportsRun))
		uploads.Use(csrf)
		uploads.Use(imports.Middleware)
		uploads.Post("/imports/dry-run", h.PostImportsDryRun)
		uploads.Post("/imports/apply", h.PostImportsApply)
	})

	r.Mount("/api", apiRouter)
	return r, nil
}
