package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/shared"
)

// Header names set by the upstream identity collaborator.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// ActorFromHeaders stores the actor announced by the upstream collaborator in the request
// context. Requests without an actor pass through and fail permission checks later.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor := shared.Actor{ID: id, Role: strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderActorRole)))}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require is RequireAll for a single permission.
func (m Middleware) Require(perm string) func(http.Handler) http.Handler {
	return m.RequireAll(perm)
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms))
}

func (m Middleware) require(required []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), actor)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Warn("rbac resolve permissions", slog.String("actor", actor.ID), slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			if hasAllPermissions(granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
