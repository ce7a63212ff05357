package middleware

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// ImportGuard lets each user run one import at a time. A second request
// while the first is in flight is rejected with 409.
type ImportGuard struct {
	mu       sync.Mutex
	inFlight map[guardKey]struct{}
}

type guardKey struct {
	tenant uuid.UUID
	user   uuid.UUID
}

func NewImportGuard() *ImportGuard {
	return &ImportGuard{inFlight: map[guardKey]struct{}{}}
}

func (g *ImportGuard) acquire(key guardKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *ImportGuard) release(key guardKey) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

func (g *ImportGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}
		key := guardKey{tenant: actor.TenantID, user: actor.UserID}
		if !g.acquire(key) {
			writeError(w, r, http.StatusConflict, "import_in_progress", "Another import is still running", nil)
			return
		}
		defer g.release(key)
		next.ServeHTTP(w, r)
	})
}
