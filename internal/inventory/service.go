package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/eventstock/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id uuid.UUID) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	ItemMovements(ctx context.Context, itemID uuid.UUID) ([]Movement, error)
	DriftedItems(ctx context.Context) ([]LedgerCheck, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer is told about ledger outcomes after the unit of work has finished.
type Observer interface {
	MovementCommitted(ctx context.Context, m Movement)
	MovementRejected(ctx context.Context, t MovementType, err error)
}

// Observers fans a notification out to several observers.
type Observers []Observer

// MovementCommitted implements Observer.
func (o Observers) MovementCommitted(ctx context.Context, m Movement) {
	for _, obs := range o {
		if obs != nil {
			obs.MovementCommitted(ctx, m)
		}
	}
}

// MovementRejected implements Observer.
func (o Observers) MovementRejected(ctx context.Context, t MovementType, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.MovementRejected(ctx, t, err)
		}
	}
}

// NotifyCommitted is a nil-safe helper for services that produce movements.
func NotifyCommitted(ctx context.Context, obs Observer, movements ...Movement) {
	if obs == nil {
		return
	}
	for _, m := range movements {
		obs.MovementCommitted(ctx, m)
	}
}

// NotifyRejected reports insufficient-stock rejections only.
func NotifyRejected(ctx context.Context, obs Observer, t MovementType, err error) {
	if obs == nil || !errors.Is(err, shared.ErrInsufficientStock) {
		return
	}
	obs.MovementRejected(ctx, t, err)
}

// Service coordinates the item registry and movement ledger.
type Service struct {
	repo     RepositoryPort
	engine   *Engine
	audit    AuditPort
	observer Observer
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *Engine, audit AuditPort, observer Observer, logger *slog.Logger) *Service {
	if engine == nil {
		engine = NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, audit: audit, observer: observer, logger: logger}
}

// Engine exposes the engine so document services can share it.
func (s *Service) Engine() *Engine {
	return s.engine
}

// CreateItem registers an item. A positive opening quantity is booked as an INWARD movement
// in the same transaction, so the stored quantity always equals the ledger sum.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, Result, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Condition == "" {
		input.Condition = ConditionGood
	}
	if err := shared.Validate(input); err != nil {
		return Item{}, Result{}, err
	}
	if !input.Condition.Valid() {
		return Item{}, Result{}, shared.NewValidationError("condition", fmt.Sprintf("unknown condition %q", input.Condition))
	}
	if input.Cost != nil && !input.Cost.IsPositive() {
		return Item{}, Result{}, shared.NewValidationError("cost", "must be positive")
	}
	now := s.engine.now()
	item := Item{
		ID:              uuid.New(),
		CategoryID:      input.CategoryID,
		SubcategoryID:   input.SubcategoryID,
		Name:            input.Name,
		Description:     input.Description,
		Condition:       input.Condition,
		Cost:            input.Cost,
		Vendor:          input.Vendor,
		Remarks:         input.Remarks,
		CurrentLocation: input.CurrentLocation,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	var opening Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		if input.OpeningQuantity == 0 {
			return nil
		}
		res, err := s.engine.Apply(ctx, tx, MovementInput{
			ItemID:      item.ID,
			Type:        MovementInward,
			Quantity:    input.OpeningQuantity,
			Notes:       "Opening stock",
			PerformedBy: input.PerformedBy,
		})
		if err != nil {
			return err
		}
		opening = res
		item = res.Item
		return nil
	})
	if err != nil {
		return Item{}, Result{}, err
	}
	if input.OpeningQuantity > 0 {
		NotifyCommitted(ctx, s.observer, opening.Movement)
	}
	s.recordAudit(ctx, input.PerformedBy, "inventory:item.create", "item", item.ID, map[string]any{
		"name":             item.Name,
		"opening_quantity": input.OpeningQuantity,
	})
	return item, opening, nil
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	if id == uuid.Nil {
		return Item{}, shared.NewValidationError("id", "is required")
	}
	return s.repo.GetItem(ctx, id)
}

// ListItems lists items matching filter.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	if filter.Condition != "" && !filter.Condition.Valid() {
		return nil, 0, shared.NewValidationError("condition", fmt.Sprintf("unknown condition %q", filter.Condition))
	}
	return s.repo.ListItems(ctx, filter)
}

// ApplyMovement runs one stock movement in its own transaction.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (Result, error) {
	if err := input.validate(); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.engine.Apply(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		NotifyRejected(ctx, s.observer, input.Type, err)
		return Result{}, err
	}
	NotifyCommitted(ctx, s.observer, result.Movement)
	s.recordAudit(ctx, input.PerformedBy, fmt.Sprintf("inventory:%s", strings.ToLower(string(input.Type))), "stock_movement", result.Movement.ID, map[string]any{
		"item_id":           input.ItemID.String(),
		"quantity":          input.Quantity,
		"previous_quantity": result.Movement.PreviousQuantity,
		"new_quantity":      result.Movement.NewQuantity,
	})
	return result, nil
}

// RecordManualTransaction books a purchase or sale that did not come through a purchase order.
// Purchases with a unit price also update the item cost.
func (s *Service) RecordManualTransaction(ctx context.Context, input ManualInput) (Result, error) {
	if err := shared.Validate(input); err != nil {
		return Result{}, err
	}
	if input.UnitPrice != nil && !input.UnitPrice.IsPositive() {
		return Result{}, shared.NewValidationError("unit_price", "must be positive")
	}
	movement := MovementInput{
		ItemID:      input.ItemID,
		Type:        input.Type,
		Quantity:    input.Quantity,
		Notes:       manualNotes(input),
		PerformedBy: input.PerformedBy,
	}
	if input.Type == MovementPurchase && input.UnitPrice != nil {
		movement.CostUpdate = input.UnitPrice
	}
	return s.ApplyMovement(ctx, movement)
}

func manualNotes(input ManualInput) string {
	var b strings.Builder
	switch input.Type {
	case MovementPurchase:
		b.WriteString("Purchase")
	case MovementSale:
		b.WriteString("Sale")
	case MovementInward, MovementOutward, MovementReturn:
		b.WriteString(string(input.Type))
	}
	if input.Vendor != "" {
		b.WriteString(" - ")
		b.WriteString(input.Vendor)
	}
	if input.InvoiceNumber != "" {
		fmt.Fprintf(&b, " (Invoice: %s)", input.InvoiceNumber)
	}
	if input.Notes != "" {
		b.WriteString(". ")
		b.WriteString(input.Notes)
	}
	return b.String()
}

// ListMovements lists ledger entries, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, shared.NewValidationError("movement_type", fmt.Sprintf("unknown movement type %q", filter.Type))
	}
	return s.repo.ListMovements(ctx, filter)
}

// VerifyItemLedger replays the item's ledger in creation order and compares it with the
// stored quantity.
func (s *Service) VerifyItemLedger(ctx context.Context, itemID uuid.UUID) (LedgerCheck, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return LedgerCheck{}, err
	}
	movements, err := s.repo.ItemMovements(ctx, itemID)
	if err != nil {
		return LedgerCheck{}, err
	}
	return Replay(item, movements), nil
}

// VerifyLedger returns every item whose stored quantity disagrees with its ledger.
func (s *Service) VerifyLedger(ctx context.Context) ([]LedgerCheck, error) {
	return s.repo.DriftedItems(ctx)
}

// Replay folds movements (ascending creation order) into a LedgerCheck for item.
func Replay(item Item, movements []Movement) LedgerCheck {
	check := LedgerCheck{ItemID: item.ID, ItemName: item.Name, Actual: item.QuantityAvailable, Entries: len(movements)}
	running := 0
	for _, m := range movements {
		if !m.Consistent() || m.PreviousQuantity != running {
			check.Broken = append(check.Broken, m.ID)
		}
		running += m.Delta()
	}
	check.Expected = running
	return check
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entity string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: entity, EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
