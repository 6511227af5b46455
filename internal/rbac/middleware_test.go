package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireByRole(t *testing.T) {
	mw := Middleware{Service: NewService()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	manage := ActorFromHeaders(mw.Require(PermStockManage)(ok))
	view := ActorFromHeaders(mw.Require(PermStockView)(ok))

	cases := []struct {
		name    string
		handler http.Handler
		id      string
		role    string
		status  int
	}{
		{"admin manages", manage, "u1", "ADMIN", http.StatusNoContent},
		{"manager manages", manage, "u2", "inventory_manager", http.StatusNoContent},
		{"viewer cannot manage", manage, "u3", "VIEWER", http.StatusForbidden},
		{"viewer views", view, "u3", "VIEWER", http.StatusNoContent},
		{"unknown role", view, "u4", "JANITOR", http.StatusForbidden},
		{"no actor", view, "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.id != "" {
				req.Header.Set(HeaderActorID, tc.id)
				req.Header.Set(HeaderActorRole, tc.role)
			}
			rec := httptest.NewRecorder()
			tc.handler.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWithGrantsOverridesRole(t *testing.T) {
	svc := NewService().WithGrants(RoleInventoryManager, PermStockView)
	mw := Middleware{Service: svc}
	h := ActorFromHeaders(mw.Require(PermStockManage)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderActorID, "u2")
	req.Header.Set(HeaderActorRole, "INVENTORY_MANAGER")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" viewer ")
	require.NoError(t, err)
	require.Equal(t, RoleViewer, role)
	_, err = ParseRole("")
	require.Error(t, err)
	for _, r := range Roles() {
		require.NotEmpty(t, r.Permissions())
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw := Middleware{Service: NewService()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	both := ActorFromHeaders(mw.RequireAll(PermStockView, " STOCK.MANAGE ")(ok))
	open := ActorFromHeaders(mw.RequireAll()(ok))

	call := func(h http.Handler, role string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req.Header.Set(HeaderActorID, "u1")
			req.Header.Set(HeaderActorRole, role)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, call(both, "ADMIN"))
	require.Equal(t, http.StatusForbidden, call(both, "VIEWER"))
	require.Equal(t, http.StatusNoContent, call(open, ""))
}
