package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.PermStockView))
		r.Get("/categories", h.listCategories)
		r.Get("/projects", h.listProjects)
		r.Get("/projects/{id}", h.showProject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.PermStockManage))
		r.Post("/categories", h.createCategory)
		r.Post("/projects", h.createProject)
	})
}

type page[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	p, perPage := shared.PageFromQuery(r.URL.Query())
	categories, total, err := h.service.ListCategories(r.Context(), ListFilters{
		Search: r.URL.Query().Get("search"),
		Limit:  perPage,
		Offset: shared.Offset(p, perPage),
	})
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page[Category]{Data: categories, Pagination: shared.NewPagination(p, perPage, total)})
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, perPage := shared.PageFromQuery(q)
	projects, total, err := h.service.ListProjects(r.Context(), ListFilters{
		Search: q.Get("search"),
		Status: ProjectStatus(q.Get("status")),
		Limit:  perPage,
		Offset: shared.Offset(p, perPage),
	})
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("list projects", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page[Project]{Data: projects, Pagination: shared.NewPagination(p, perPage, total)})
}

func (h *Handler) showProject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var input ProjectInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	project, err := h.service.CreateProject(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, project)
}
