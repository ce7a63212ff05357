package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/crmflow/api/internal/audit"
	"github.com/crmflow/api/internal/auth"
	"github.com/crmflow/api/internal/config"
	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/httpx"
	"github.com/crmflow/api/internal/metrics"
	"github.com/crmflow/api/internal/middleware"
	"github.com/crmflow/api/internal/store"
)

type AuthStore interface {
	ListUsersByEmail(ctx context.Context, email string) ([]store.LoginCandidate, error)
	CreateSession(ctx context.Context, arg store.CreateSessionParams) (uuid.UUID, error)
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	RevokeSessionByID(ctx context.Context, sessionID, tenantID uuid.UUID) (int64, error)
	UpdateUserPasswordHash(ctx context.Context, userID, tenantID uuid.UUID, passwordHash string) error
}

type ImportRunStore interface {
	CreateImportRun(ctx context.Context, arg store.CreateImportRunParams) (store.ImportRun, error)
	CompleteImportRun(ctx context.Context, arg store.CompleteImportRunParams) (store.ImportRun, error)
	GetImportRunByID(ctx context.Context, id, tenantID uuid.UUID) (store.ImportRun, error)
	InsertImportRowErrors(ctx context.Context, tenantID, runID uuid.UUID, rows []store.ImportRowError) (int64, error)
	ListImportRowErrors(ctx context.Context, tenantID, runID uuid.UUID, limit int) ([]store.ImportRowError, error)
}

// TenantStores scopes record and profile access to one tenant. actorID is
// recorded as created_by on inserts.
type TenantStores func(tenantID uuid.UUID, actorID *uuid.UUID) (crm.RecordStore, crm.ProfileStore)

type Deps struct {
	Auth    AuthStore
	Runs    ImportRunStore
	Stores  TenantStores
	Audit   *audit.Logger
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	Config   config.Config
	Auth     AuthStore
	Runs     ImportRunStore
	Stores   TenantStores
	Audit    *audit.Logger
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	validate *validator.Validate
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Config:   cfg,
		Auth:     deps.Auth,
		Runs:     deps.Runs,
		Stores:   deps.Stores,
		Audit:    deps.Audit,
		Logger:   logger,
		Metrics:  deps.Metrics,
		validate: validator.New(),
	}
}

// NewServer wires every dependency to one set of queries.
func NewServer(cfg config.Config, q *store.Queries, auditLogger *audit.Logger, logger *slog.Logger, m *metrics.Metrics) *Server {
	return New(cfg, Deps{
		Auth: q,
		Runs: q,
		Stores: func(tenantID uuid.UUID, actorID *uuid.UUID) (crm.RecordStore, crm.ProfileStore) {
			return q.Records(tenantID, actorID), q.Profiles(tenantID)
		},
		Audit:   auditLogger,
		Logger:  logger,
		Metrics: m,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
}

type tenantResponse struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}

type sessionResponse struct {
	User   userResponse   `json:"user"`
	Tenant tenantResponse `json:"tenant"`
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) PostAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate.Struct(req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "email and password are required", nil)
		return
	}

	users, err := s.Auth.ListUsersByEmail(r.Context(), req.Email)
	if err != nil {
		s.Logger.Error("login_lookup_failed", "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load user", nil)
		return
	}

	var matched *store.LoginCandidate
	for i := range users {
		user := users[i]
		if !user.IsActive {
			continue
		}
		ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Password verification failed", nil)
			return
		}
		if ok {
			matched = &user
			break
		}
	}
	if matched == nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
		return
	}

	if auth.DefaultParams.NeedsRehash(matched.PasswordHash) {
		if upgraded, err := auth.HashPassword(req.Password); err == nil {
			if err := s.Auth.UpdateUserPasswordHash(r.Context(), matched.ID, matched.TenantID, upgraded); err != nil {
				s.Logger.Warn("password_rehash_failed", "user_id", matched.ID.String(), "error", err)
			}
		}
	}

	if old, err := r.Cookie(s.Config.SessionCookieName); err == nil && old.Value != "" {
		_, _ = s.Auth.RevokeSessionByTokenHash(r.Context(), auth.HashToken(old.Value))
	}

	tokens, err := auth.NewSessionTokens()
	if err != nil {
		s.Logger.Error("session_token_failed", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create session", nil)
		return
	}

	expiresAt := time.Now().Add(s.Config.SessionTTL)
	if _, err := s.Auth.CreateSession(r.Context(), store.CreateSessionParams{
		TenantID:  matched.TenantID,
		UserID:    matched.ID,
		TokenHash: tokens.TokenHash,
		CSRFToken: tokens.CSRF,
		ExpiresAt: expiresAt,
	}); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to save session", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    tokens.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		Expires:  expiresAt,
	})

	userID := matched.ID
	s.Audit.Record(r.Context(), audit.Entry{
		TenantID:   matched.TenantID,
		UserID:     &userID,
		Action:     audit.ActionLogin,
		EntityType: "session",
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		User:   userResponse{ID: matched.ID, Email: matched.Email, FullName: matched.FullName},
		Tenant: tenantResponse{ID: matched.TenantID, Slug: matched.TenantSlug, Name: matched.TenantName},
	})
}

func (s *Server) PostAuthLogout(w http.ResponseWriter, r *http.Request) {
	actor, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}
	if _, err := s.Auth.RevokeSessionByID(r.Context(), actor.SessionID, tenantID); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to revoke session", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		MaxAge:   -1,
	})

	s.Audit.Record(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     audit.ActionLogout,
		EntityType: "session",
		RequestID:  middleware.RequestIDFromContext(r.Context()),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetAuthMe(w http.ResponseWriter, r *http.Request) {
	actor, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		User:   userResponse{ID: userID, Email: actor.Email, FullName: actor.FullName},
		Tenant: tenantResponse{ID: tenantID, Slug: actor.TenantSlug, Name: actor.TenantName},
	})
}

func (s *Server) GetAuthCsrf(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": actor.CSRFToken})
}

func requireActorIDs(w http.ResponseWriter, r *http.Request) (middleware.Actor, uuid.UUID, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return middleware.Actor{}, uuid.Nil, uuid.Nil, false
	}
	return actor, actor.TenantID, actor.UserID, true
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *appError) write(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, r, e.Status, e.Code, e.Message, e.Details)
}
