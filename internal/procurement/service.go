package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/shared"
)

// TxRepository is the procurement unit of work, sharing its transaction with the ledger.
type TxRepository interface {
	inventory.TxRepository
	InsertOrder(ctx context.Context, po PurchaseOrder) error
	InsertLine(ctx context.Context, line Line) error
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	GetLineForUpdate(ctx context.Context, poID, itemID uuid.UUID) (Line, error)
	UpdateLineReceived(ctx context.Context, line Line) error
	ListLines(ctx context.Context, poID uuid.UUID) ([]Line, error)
	UpdateStatus(ctx context.Context, poID uuid.UUID, status Status) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	NumberExists(ctx context.Context, number string) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	List(ctx context.Context, filter Filter) ([]PurchaseOrder, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase orders and their receipts.
type Service struct {
	repo     RepositoryPort
	engine   *inventory.Engine
	audit    AuditPort
	observer inventory.Observer
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, engine *inventory.Engine, audit AuditPort, observer inventory.Observer, logger *slog.Logger) *Service {
	if engine == nil {
		engine = inventory.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, audit: audit, observer: observer, logger: logger, clock: func() time.Time { return time.Now().UTC() }}
}

// Create registers a PENDING purchase order.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	input.Number = strings.TrimSpace(input.Number)
	input.Vendor = strings.Join(strings.Fields(input.Vendor), " ")
	if err := shared.Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	if input.TotalAmount != nil && !input.TotalAmount.IsPositive() {
		return PurchaseOrder{}, shared.NewValidationError("total_amount", "must be positive")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for i, l := range input.Lines {
		if l.UnitCost != nil && !l.UnitCost.IsPositive() {
			return PurchaseOrder{}, shared.NewValidationError(fmt.Sprintf("items[%d].unit_cost", i), "must be positive")
		}
		if _, dup := seen[l.ItemID]; dup {
			return PurchaseOrder{}, shared.NewValidationError(fmt.Sprintf("items[%d].item_id", i), "item appears more than once")
		}
		seen[l.ItemID] = struct{}{}
	}
	exists, err := s.repo.NumberExists(ctx, input.Number)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: check number: %w", err)
	}
	if exists {
		return PurchaseOrder{}, &shared.ConflictError{Entity: "purchase order", Key: input.Number, Message: "PO number already exists"}
	}

	po := PurchaseOrder{
		ID:           uuid.New(),
		Number:       input.Number,
		Vendor:       input.Vendor,
		OrderDate:    input.OrderDate,
		ExpectedDate: input.ExpectedDate,
		TotalAmount:  input.TotalAmount,
		Notes:        strings.TrimSpace(input.Notes),
		Status:       StatusPending,
		CreatedBy:    input.PerformedBy,
		CreatedAt:    s.clock(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po.Lines = nil
		if err := tx.InsertOrder(ctx, po); err != nil {
			return err
		}
		for _, l := range input.Lines {
			line := Line{
				ID:              uuid.New(),
				PurchaseOrderID: po.ID,
				ItemID:          l.ItemID,
				OrderedQuantity: l.OrderedQuantity,
				UnitCost:        l.UnitCost,
				Notes:           strings.TrimSpace(l.Notes),
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			po.Lines = append(po.Lines, line)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.PerformedBy, "procurement:po.create", po.ID, map[string]any{"number": po.Number, "lines": len(po.Lines)})
	return po, nil
}

// Get returns one purchase order with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List lists purchase orders. Vendor matches case-insensitively on a substring.
func (s *Service) List(ctx context.Context, filter Filter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, shared.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	filter.Vendor = strings.TrimSpace(filter.Vendor)
	return s.repo.List(ctx, filter)
}

// ReceiveDelivery books a delivery of one item against an order. The order header and the
// line are locked, the receipt is checked against the outstanding quantity, a PURCHASE
// movement is written and the order status is recomputed, all in one transaction.
func (s *Service) ReceiveDelivery(ctx context.Context, input ReceiveInput) (ReceiptResult, error) {
	input.Notes = strings.TrimSpace(input.Notes)
	if err := shared.Validate(input); err != nil {
		return ReceiptResult{}, err
	}
	var result ReceiptResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, input.PurchaseOrderID)
		if err != nil {
			return err
		}
		line, err := tx.GetLineForUpdate(ctx, po.ID, input.ItemID)
		if err != nil {
			return err
		}
		if input.Quantity > line.Remaining() {
			return &OverReceiptError{Requested: input.Quantity, Remaining: line.Remaining()}
		}
		line.ReceivedQuantity += input.Quantity
		if err := tx.UpdateLineReceived(ctx, line); err != nil {
			return err
		}
		notes := input.Notes
		if notes == "" {
			notes = "Received from PO " + po.Number
		}
		poID := po.ID
		res, err := s.engine.Apply(ctx, tx, inventory.MovementInput{
			ItemID:          input.ItemID,
			Type:            inventory.MovementPurchase,
			Quantity:        input.Quantity,
			PurchaseOrderID: &poID,
			Notes:           notes,
			PerformedBy:     input.PerformedBy,
			CostUpdate:      line.UnitCost,
		})
		if err != nil {
			return err
		}
		lines, err := tx.ListLines(ctx, po.ID)
		if err != nil {
			return err
		}
		status := DeriveStatus(po.Status, lines)
		if status != po.Status {
			if err := tx.UpdateStatus(ctx, po.ID, status); err != nil {
				return err
			}
		}
		result = ReceiptResult{Line: line, Movement: res.Movement, Status: status}
		return nil
	})
	if err != nil {
		return ReceiptResult{}, err
	}
	inventory.NotifyCommitted(ctx, s.observer, result.Movement)
	s.recordAudit(ctx, input.PerformedBy, "procurement:po.receive", input.PurchaseOrderID, map[string]any{
		"item_id":  input.ItemID.String(),
		"quantity": input.Quantity,
		"status":   string(result.Status),
	})
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: "purchase_order", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
