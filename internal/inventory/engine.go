package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventstock/stockledger/internal/shared"
)

// TxRepository is the unit-of-work view of the item registry and movement ledger. Other
// packages embed it in their own transactional repositories so their document writes and
// the ledger writes share one transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItemStock(ctx context.Context, item Item) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	InsertMaintenanceRecord(ctx context.Context, rec MaintenanceRecord) error
}

// Engine applies movements against an open unit of work. It never opens or commits a
// transaction itself.
type Engine struct {
	clock func() time.Time
}

// NewEngine builds an Engine using the UTC wall clock.
func NewEngine() *Engine {
	return &Engine{clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock, used by tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	return &Engine{clock: clock}
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock()
}

// Apply locks the item, checks the delta rule and writes exactly one movement, one item
// update and, when the new condition needs it, one maintenance record.
func (e *Engine) Apply(ctx context.Context, tx TxRepository, in MovementInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	item, err := tx.GetItemForUpdate(ctx, in.ItemID)
	if err != nil {
		return Result{}, err
	}
	next, err := in.Type.Apply(item.QuantityAvailable, in.Quantity)
	if errors.Is(err, ErrQuantityOverflow) {
		return Result{}, shared.NewValidationError("quantity", fmt.Sprintf("would raise %s above %d", item.Name, MaxQuantity))
	}
	if err != nil {
		return Result{}, shared.NewValidationError("movement_type", err.Error())
	}
	if next < 0 {
		return Result{}, &shared.InsufficientStockError{
			ItemID:    item.ID.String(),
			ItemName:  item.Name,
			Available: item.QuantityAvailable,
			Requested: in.Quantity,
		}
	}

	now := e.now()
	movement, err := tx.InsertMovement(ctx, Movement{
		ID:               uuid.New(),
		ItemID:           item.ID,
		ProjectID:        in.ProjectID,
		PurchaseOrderID:  in.PurchaseOrderID,
		ChallanID:        in.ChallanID,
		Type:             in.Type,
		Quantity:         in.Quantity,
		PreviousQuantity: item.QuantityAvailable,
		NewQuantity:      next,
		ConditionAfter:   in.ConditionAfter,
		Notes:            in.Notes,
		PerformedBy:      in.PerformedBy,
		CreatedAt:        now,
	})
	if err != nil {
		return Result{}, err
	}

	item.QuantityAvailable = next
	if in.ConditionAfter != nil {
		item.Condition = *in.ConditionAfter
	}
	if in.CostUpdate != nil {
		cost := *in.CostUpdate
		item.Cost = &cost
	}
	item.UpdatedAt = now
	if err := tx.UpdateItemStock(ctx, item); err != nil {
		return Result{}, err
	}

	result := Result{Movement: movement, Item: item}
	if in.ConditionAfter != nil && in.ConditionAfter.NeedsMaintenance() {
		notes := in.Notes
		if notes == "" {
			notes = fmt.Sprintf("Item marked as %s during return", *in.ConditionAfter)
		}
		rec := MaintenanceRecord{
			ID:        uuid.New(),
			ItemID:    item.ID,
			Status:    MaintenancePending,
			Notes:     notes,
			CreatedAt: now,
		}
		if err := tx.InsertMaintenanceRecord(ctx, rec); err != nil {
			return Result{}, err
		}
		result.Maintenance = &rec
	}
	return result, nil
}

// RecordMarker writes a status-only ledger row (previous == new quantity) and applies the
// optional condition change. No maintenance record is opened.
func (e *Engine) RecordMarker(ctx context.Context, tx TxRepository, in MarkerInput) (Result, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if err := shared.Validate(in); err != nil {
		return Result{}, err
	}
	if !in.Type.Valid() {
		return Result{}, shared.NewValidationError("movement_type", fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.ConditionAfter != nil && !in.ConditionAfter.Valid() {
		return Result{}, shared.NewValidationError("condition_after", fmt.Sprintf("unknown condition %q", *in.ConditionAfter))
	}
	item, err := tx.GetItemForUpdate(ctx, in.ItemID)
	if err != nil {
		return Result{}, err
	}
	now := e.now()
	movement, err := tx.InsertMovement(ctx, Movement{
		ID:               uuid.New(),
		ItemID:           item.ID,
		Type:             in.Type,
		Quantity:         in.Quantity,
		PreviousQuantity: item.QuantityAvailable,
		NewQuantity:      item.QuantityAvailable,
		ConditionAfter:   in.ConditionAfter,
		StatusOnly:       true,
		Notes:            in.Notes,
		PerformedBy:      in.PerformedBy,
		CreatedAt:        now,
	})
	if err != nil {
		return Result{}, err
	}
	if in.ConditionAfter != nil {
		item.Condition = *in.ConditionAfter
		item.UpdatedAt = now
		if err := tx.UpdateItemStock(ctx, item); err != nil {
			return Result{}, err
		}
	}
	return Result{Movement: movement, Item: item}, nil
}

func (in MovementInput) validate() error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return shared.NewValidationError("movement_type", fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.ConditionAfter != nil && !in.ConditionAfter.Valid() {
		return shared.NewValidationError("condition_after", fmt.Sprintf("unknown condition %q", *in.ConditionAfter))
	}
	if in.CostUpdate != nil && in.CostUpdate.IsNegative() {
		return shared.NewValidationError("cost", "must not be negative")
	}
	return nil
}
