package masterdata

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

type memoryRepo struct {
	categories []Category
	projects   []Project
}

func (m *memoryRepo) ListCategories(_ context.Context, _ ListFilters) ([]Category, int, error) {
	return m.categories, len(m.categories), nil
}

func (m *memoryRepo) CreateCategory(_ context.Context, c Category) (Category, error) {
	for _, existing := range m.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return Category{}, &shared.ConflictError{Entity: "category", Key: c.Name}
		}
	}
	m.categories = append(m.categories, c)
	return c, nil
}

func (m *memoryRepo) ListProjects(_ context.Context, f ListFilters) ([]Project, int, error) {
	var out []Project
	for _, p := range m.projects {
		if f.Status == "" || p.Status == f.Status {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetProject(_ context.Context, id uuid.UUID) (Project, error) {
	for _, p := range m.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Project{}, shared.NewNotFoundError("project", id)
}

func (m *memoryRepo) CreateProject(_ context.Context, p Project) (Project, error) {
	m.projects = append(m.projects, p)
	return p, nil
}

func TestCreateProjectDefaults(t *testing.T) {
	svc := NewService(&memoryRepo{})
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	project, err := svc.CreateProject(context.Background(), ProjectInput{Name: " Gala ", Location: "Hall A", StartDate: start})
	require.NoError(t, err)
	require.Equal(t, "Gala", project.Name)
	require.Equal(t, "OTHER", project.Type)
	require.Equal(t, ProjectPlanned, project.Status)

	end := start.AddDate(0, 0, -1)
	_, err = svc.CreateProject(context.Background(), ProjectInput{Name: "Gala", Location: "Hall A", StartDate: start, EndDate: &end})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProject(context.Background(), ProjectInput{Name: "Gala", Location: "Hall A", StartDate: start, Status: "PAUSED"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateCategoryRejectsDuplicates(t *testing.T) {
	svc := NewService(&memoryRepo{})
	_, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "Lighting"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(context.Background(), CategoryInput{Name: "lighting"})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.CreateCategory(context.Background(), CategoryInput{Name: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerRoutes(t *testing.T) {
	repo := &memoryRepo{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo), rbac.Middleware{Service: rbac.NewService()})
	r := chi.NewRouter()
	r.Use(rbac.ActorFromHeaders)
	h.MountRoutes(r)

	do := func(method, path, role, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(rbac.HeaderActorID, "u1")
		req.Header.Set(rbac.HeaderActorRole, role)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/categories", "VIEWER", `{"name":"Audio"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(http.MethodPost, "/categories", "ADMIN", `{"name":"Audio"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.categories, 1)

	rec = do(http.MethodPost, "/categories", "ADMIN", `{"name":"Audio"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPost, "/projects", "INVENTORY_MANAGER", `{"name":"Expo","location":"Pier 4","start_date":"2024-06-01T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(http.MethodGet, "/projects?status=PLANNED", "VIEWER", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Expo"`)

	rec = do(http.MethodGet, "/projects/"+uuid.NewString(), "VIEWER", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
