package maintenance

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

// Handler exposes scrap, repair and maintenance endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler creates the maintenance handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers maintenance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.Require(rbac.PermStockView)
	manage := h.rbac.Require(rbac.PermStockManage)
	r.With(view).Get("/scrap", h.listScrap)
	r.With(manage).Post("/scrap", h.createScrap)
	r.With(manage).Post("/scrap/{id}/dispose", h.dispose)
	r.With(view).Get("/repairs", h.listRepairs)
	r.With(manage).Post("/repairs", h.createRepair)
	r.With(view).Get("/maintenance", h.listMaintenance)
}

func (h *Handler) listScrap(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListScrap(r.Context(), ScrapStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, "list scrap", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) createScrap(w http.ResponseWriter, r *http.Request) {
	var input ScrapInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.PerformedBy = actor.ID
	result, err := h.service.CreateScrap(r.Context(), input)
	if err != nil {
		h.respondError(w, "create scrap", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input DisposeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.ScrapID = id
	input.PerformedBy = actor.ID
	rec, err := h.service.DisposeScrap(r.Context(), input)
	if err != nil {
		h.respondError(w, "dispose scrap", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) listRepairs(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRepairs(r.Context(), RepairStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, "list repairs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) createRepair(w http.ResponseWriter, r *http.Request) {
	var input RepairInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.PerformedBy = actor.ID
	result, err := h.service.CreateRepair(r.Context(), input)
	if err != nil {
		h.respondError(w, "create repair", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listMaintenance(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListMaintenance(r.Context(), inventory.MaintenanceStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, "list maintenance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": records})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
