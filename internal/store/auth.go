package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LoginCandidate struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	TenantSlug   string
	TenantName   string
}

const listUsersByEmail = `
SELECT u.id, u.tenant_id, u.email, u.full_name, u.password_hash, u.is_active, t.slug, t.name
FROM users u
JOIN tenants t ON t.id = u.tenant_id
WHERE lower(u.email) = lower($1)
ORDER BY u.created_at
`

func (q *Queries) ListUsersByEmail(ctx context.Context, email string) ([]LoginCandidate, error) {
	rows, err := q.db.Query(ctx, listUsersByEmail, email)
	if err != nil {
		return nil, fmt.Errorf("list users by email: %w", err)
	}
	defer rows.Close()

	var out []LoginCandidate
	for rows.Next() {
		var c LoginCandidate
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Email, &c.FullName, &c.PasswordHash, &c.IsActive, &c.TenantSlug, &c.TenantName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type CreateSessionParams struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CSRFToken string
	ExpiresAt time.Time
}

const createSession = `
INSERT INTO sessions (tenant_id, user_id, token_hash, csrf_token, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createSession, arg.TenantID, arg.UserID, arg.TokenHash, arg.CSRFToken, arg.ExpiresAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

type SessionPrincipal struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Email      string
	FullName   string
	TenantSlug string
	TenantName string
	CSRFToken  string
	ExpiresAt  time.Time
}

const getSessionPrincipalByTokenHash = `
SELECT s.id, u.id, t.id, u.email, u.full_name, t.slug, t.name, s.csrf_token, s.expires_at
FROM sessions s
JOIN users u ON u.id = s.user_id AND u.tenant_id = s.tenant_id
JOIN tenants t ON t.id = s.tenant_id
WHERE s.token_hash = $1
  AND s.revoked_at IS NULL
  AND s.expires_at > now()
  AND u.is_active
`

func (q *Queries) GetSessionPrincipalByTokenHash(ctx context.Context, tokenHash string) (SessionPrincipal, error) {
	var p SessionPrincipal
	err := q.db.QueryRow(ctx, getSessionPrincipalByTokenHash, tokenHash).Scan(
		&p.SessionID, &p.UserID, &p.TenantID, &p.Email, &p.FullName, &p.TenantSlug, &p.TenantName, &p.CSRFToken, &p.ExpiresAt,
	)
	if err != nil {
		return SessionPrincipal{}, notFound(err)
	}
	return p, nil
}

func (q *Queries) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE sessions SET last_seen_at = now() WHERE id = $1`, sessionID)
	return err
}

func (q *Queries) RevokeSessionByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) RevokeSessionByID(ctx context.Context, sessionID, tenantID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL`, sessionID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("revoke session: %w", err)
	}
	return tag.RowsAffected(), nil
}

const userHasPermission = `
SELECT EXISTS (
  SELECT 1
  FROM user_roles ur
  JOIN role_permissions rp ON rp.role_id = ur.role_id
  JOIN permissions p ON p.id = rp.permission_id
  WHERE ur.user_id = $1 AND ur.tenant_id = $2 AND p.name = $3
)
`

func (q *Queries) UserHasPermission(ctx context.Context, userID, tenantID uuid.UUID, permission string) (bool, error) {
	var has bool
	if err := q.db.QueryRow(ctx, userHasPermission, userID, tenantID, permission).Scan(&has); err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return has, nil
}

// UpdateUserPasswordHash replaces a hash produced with outdated parameters.
func (q *Queries) UpdateUserPasswordHash(ctx context.Context, userID, tenantID uuid.UUID, passwordHash string) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET password_hash = $3 WHERE id = $1 AND tenant_id = $2`, userID, tenantID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}
