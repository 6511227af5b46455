package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler creates procurement handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.PermStockView)).Get("/", h.list)
		r.With(h.rbac.Require(rbac.PermStockView)).Get("/{id}", h.show)
		r.With(h.rbac.Require(rbac.PermStockManage)).Post("/", h.create)
		r.With(h.rbac.Require(rbac.PermStockManage)).Post("/{id}/receive", h.receive)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	orders, total, err := h.service.List(r.Context(), Filter{
		Status: Status(q.Get("status")),
		Vendor: q.Get("vendor"),
		Limit:  perPage,
		Offset: shared.Offset(page, perPage),
	})
	if err != nil {
		h.respondError(w, "list purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": shared.NewPagination(page, perPage, total)})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.PerformedBy = actor.ID
	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.PurchaseOrderID = id
	input.PerformedBy = actor.ID
	result, err := h.service.ReceiveDelivery(r.Context(), input)
	if err != nil {
		h.respondError(w, "receive delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
