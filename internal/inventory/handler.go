package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for the item registry and movement ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.PermStockView))
		r.Get("/items", h.listItems)
		r.Get("/items/{id}", h.getItem)
		r.Get("/items/{id}/ledger-check", h.ledgerCheck)
		r.Get("/movements", h.listMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.PermStockManage))
		r.Post("/items", h.createItem)
		r.Post("/movements", h.applyMovement)
		r.Post("/movements/manual", h.manualTransaction)
	})
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

type createItemResponse struct {
	Item            Item      `json:"item"`
	OpeningMovement *Movement `json:"opening_movement,omitempty"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	categoryID, err := httpx.QueryUUID(r, "category_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromQuery(q)
	items, total, err := h.service.ListItems(r.Context(), ItemFilter{
		CategoryID: categoryID,
		Condition:  Condition(q.Get("condition")),
		Search:     q.Get("search"),
		Limit:      perPage,
		Offset:     shared.Offset(page, perPage),
	})
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Item]{Data: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) ledgerCheck(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	check, err := h.service.VerifyItemLedger(r.Context(), id)
	if err != nil {
		h.fail(w, "ledger check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, struct {
		LedgerCheck
		Healthy bool `json:"healthy"`
	}{check, check.Healthy()})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, err := httpx.QueryUUID(r, "item_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	projectID, err := httpx.QueryUUID(r, "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromQuery(q)
	movements, total, err := h.service.ListMovements(r.Context(), MovementFilter{
		ItemID:    itemID,
		ProjectID: projectID,
		Type:      MovementType(q.Get("movement_type")),
		Limit:     perPage,
		Offset:    shared.Offset(page, perPage),
	})
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Movement]{Data: movements, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var input CreateItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.PerformedBy = actorID(r)
	item, opening, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		h.fail(w, "create item", err)
		return
	}
	resp := createItemResponse{Item: item}
	if input.OpeningQuantity > 0 {
		resp.OpeningMovement = &opening.Movement
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) applyMovement(w http.ResponseWriter, r *http.Request) {
	var input MovementInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.PerformedBy = actorID(r)
	result, err := h.service.ApplyMovement(r.Context(), input)
	if err != nil {
		h.fail(w, "apply movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) manualTransaction(w http.ResponseWriter, r *http.Request) {
	var input ManualInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.PerformedBy = actorID(r)
	result, err := h.service.RecordManualTransaction(r.Context(), input)
	if err != nil {
		h.fail(w, "manual transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}
