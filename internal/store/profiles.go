package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TenantProfiles is a crm.ProfileStore over the tenant's users.
type TenantProfiles struct {
	q        *Queries
	tenantID uuid.UUID
}

func (q *Queries) Profiles(tenantID uuid.UUID) *TenantProfiles {
	return &TenantProfiles{q: q, tenantID: tenantID}
}

const fetchDisplayNames = `
SELECT id::text, full_name
FROM users
WHERE tenant_id = $1 AND id::text = ANY($2::text[])
`

func (p *TenantProfiles) FetchDisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := p.q.db.Query(ctx, fetchDisplayNames, p.tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan display name: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

// Names are compared after lowercasing and collapsing whitespace. When two
// active users share a name the oldest account wins.
const fetchIDsByNames = `
SELECT DISTINCT ON (name_key) name_key, id::text
FROM (
  SELECT lower(regexp_replace(btrim(full_name), '\s+', ' ', 'g')) AS name_key, id, created_at
  FROM users
  WHERE tenant_id = $1 AND is_active
) u
WHERE name_key = ANY($2::text[])
ORDER BY name_key, created_at
`

func (p *TenantProfiles) FetchIDsByNames(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := p.q.db.Query(ctx, fetchIDsByNames, p.tenantID, names)
	if err != nil {
		return nil, fmt.Errorf("fetch ids by names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out[name] = id
	}
	return out, rows.Err()
}
