package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/crmflow/api/internal/auth"
	"github.com/crmflow/api/internal/db"
)

var permissionDescriptions = map[string]string{
	"imports.run":  "Upload CSV files for dry run or apply",
	"imports.read": "Read import runs, error reports and templates",
	"exports.read": "Download CSV and XLSX exports",
}

var roles = map[string]struct {
	description string
	permissions []string
}{
	"admin":    {"Tenant administrator", []string{"imports.run", "imports.read", "exports.read"}},
	"importer": {"Runs data imports", []string{"imports.run", "imports.read"}},
	"viewer":   {"Downloads exports", []string{"exports.read"}},
}

type seedUser struct {
	email    string
	fullName string
	role     string
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	email := envOrDefault("SEED_ADMIN_EMAIL", "admin@local.crm")
	password := envOrDefault("SEED_ADMIN_PASSWORD", "Admin12345!")
	tenantSlug := envOrDefault("SEED_TENANT_SLUG", "local-dev")
	tenantName := envOrDefault("SEED_TENANT_NAME", "Local Dev Tenant")

	users := []seedUser{
		{email, envOrDefault("SEED_ADMIN_NAME", "Local Admin"), "admin"},
		// owners referenced by name in the sample import files
		{"ada@local.crm", "Ada Lovelace", "importer"},
		{"grace@local.crm", "Grace Hopper", "viewer"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	var tenantID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO tenants (slug, name)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, tenantSlug, tenantName).Scan(&tenantID); err != nil {
		log.Fatalf("upsert tenant: %v", err)
	}

	for perm, description := range permissionDescriptions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO permissions (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		`, perm, description); err != nil {
			log.Fatalf("insert permission: %v", err)
		}
	}

	roleIDs, err := upsertRoles(ctx, tx, tenantID)
	if err != nil {
		log.Fatal(err)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	for _, u := range users {
		if err := upsertUser(ctx, tx, tenantID, u, passwordHash, roleIDs[u.role]); err != nil {
			log.Fatal(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit tx: %v", err)
	}

	fmt.Printf("Seed completed. Tenant=%s, admin=%s, password=%s (shared by all seeded users)\n", tenantSlug, email, password)
}

func upsertRoles(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) (map[string]uuid.UUID, error) {
	roleIDs := make(map[string]uuid.UUID, len(roles))
	for roleName, role := range roles {
		var roleID uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO roles (tenant_id, name, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, name) DO UPDATE SET description = EXCLUDED.description
			RETURNING id
		`, tenantID, roleName, role.description).Scan(&roleID); err != nil {
			return nil, fmt.Errorf("upsert role %s: %w", roleName, err)
		}
		roleIDs[roleName] = roleID

		for _, perm := range role.permissions {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT $1, p.id FROM permissions p WHERE p.name = $2
				ON CONFLICT DO NOTHING
			`, roleID, perm); err != nil {
				return nil, fmt.Errorf("insert role permission: %w", err)
			}
		}
	}
	return roleIDs, nil
}

func upsertUser(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, u seedUser, passwordHash string, roleID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (tenant_id, email, full_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT DO NOTHING
	`, tenantID, u.email, u.fullName, passwordHash); err != nil {
		return fmt.Errorf("insert user %s: %w", u.email, err)
	}

	var userID uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT id FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)
	`, tenantID, u.email).Scan(&userID); err != nil {
		return fmt.Errorf("find user %s: %w", u.email, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, tenant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, roleID, tenantID); err != nil {
		return fmt.Errorf("insert user role: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
