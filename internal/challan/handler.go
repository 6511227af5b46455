package challan

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

// HeaderIdempotencyKey lets clients retry challan creation safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// Handler exposes challan endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers challan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.PermStockView)).Get("/challans", h.list)
	r.With(h.rbac.Require(rbac.PermStockView)).Get("/challans/{id}", h.show)
	r.With(h.rbac.Require(rbac.PermStockManage)).Post("/challans", h.create)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.QueryUUID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromQuery(r.URL.Query())
	challans, total, err := h.service.List(r.Context(), Filter{ProjectID: projectID, Limit: perPage, Offset: shared.Offset(page, perPage)})
	if err != nil {
		h.logger.Error("list challans", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       challans,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.PerformedBy = actor.ID
	input.IdempotencyKey = strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	c, err := h.service.Create(r.Context(), input)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("create challan", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}
