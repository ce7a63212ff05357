package identity

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/crmflow/api/internal/crm"
)

// Resolver maps user ids to display names and back with one batched
// round-trip per call. Lookup failures degrade to empty results.
type Resolver struct {
	profiles crm.ProfileStore
	logger   *slog.Logger
}

func NewResolver(profiles crm.ProfileStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{profiles: profiles, logger: logger}
}

// DisplayNames resolves every distinct id to a display name. Unknown ids map
// to "".
func (r *Resolver) DisplayNames(ctx context.Context, ids []string) map[string]string {
	distinct := distinctNonEmpty(ids, func(s string) string { return s })
	result := make(map[string]string, len(distinct))
	for _, id := range distinct {
		result[id] = ""
	}
	if len(distinct) == 0 {
		return result
	}

	names, err := r.profiles.FetchDisplayNames(ctx, distinct)
	if err != nil {
		r.logger.Warn("profile_lookup_failed", "direction", "names", "ids", len(distinct), "error", err)
		return result
	}
	for id, name := range names {
		if _, ok := result[id]; ok {
			result[id] = name
		}
	}
	return result
}

// IDsByNames resolves display names to ids. Values that already look like
// ids are not sent to the store. The result is keyed by NameKey.
func (r *Resolver) IDsByNames(ctx context.Context, values []string) map[string]string {
	names := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || IsIdentifier(v) {
			continue
		}
		names = append(names, v)
	}
	distinct := distinctNonEmpty(names, NameKey)
	result := make(map[string]string, len(distinct))
	if len(distinct) == 0 {
		return result
	}

	ids, err := r.profiles.FetchIDsByNames(ctx, distinct)
	if err != nil {
		r.logger.Warn("profile_lookup_failed", "direction", "ids", "names", len(distinct), "error", err)
		return result
	}
	for name, id := range ids {
		result[NameKey(name)] = id
	}
	return result
}

// MemberIDs checks values that look like ids against the tenant's users with
// one batched FetchDisplayNames. The result maps NameKey(id) to the stored id;
// ids the store does not return are absent. On lookup failure it is empty.
func (r *Resolver) MemberIDs(ctx context.Context, values []string) map[string]string {
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if IsIdentifier(v) {
			ids = append(ids, v)
		}
	}
	distinct := distinctNonEmpty(ids, NameKey)
	result := make(map[string]string, len(distinct))
	if len(distinct) == 0 {
		return result
	}

	names, err := r.profiles.FetchDisplayNames(ctx, distinct)
	if err != nil {
		r.logger.Warn("profile_lookup_failed", "direction", "members", "ids", len(distinct), "error", err)
		return result
	}
	for id := range names {
		result[NameKey(id)] = id
	}
	return result
}

// ResolveIdentifierFromName returns nameOrID unchanged when it is already an
// id, the id known for it by name otherwise, and fallbackID when neither
// applies.
func ResolveIdentifierFromName(nameOrID string, known map[string]string, fallbackID string) string {
	value := strings.TrimSpace(nameOrID)
	if value == "" {
		return fallbackID
	}
	if IsIdentifier(value) {
		return value
	}
	if id, ok := known[NameKey(value)]; ok && id != "" {
		return id
	}
	return fallbackID
}

func IsIdentifier(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil && len(strings.TrimSpace(value)) == 36
}

func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func distinctNonEmpty(values []string, key func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		k := key(strings.TrimSpace(v))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
