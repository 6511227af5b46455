package maintenance

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

// TxRepository is the maintenance unit of work, sharing its transaction with the ledger.
type TxRepository interface {
	inventory.TxRepository
	InsertScrap(ctx context.Context, rec ScrapRecord) error
	GetScrapForUpdate(ctx context.Context, id uuid.UUID) (ScrapRecord, error)
	UpdateScrapDisposal(ctx context.Context, rec ScrapRecord) error
	InsertRepair(ctx context.Context, entry RepairEntry) error
}

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListScrap(ctx context.Context, status ScrapStatus) ([]ScrapRecord, error)
	ListRepairs(ctx context.Context, status RepairStatus) ([]RepairEntry, error)
	ListMaintenance(ctx context.Context, status inventory.MaintenanceStatus) ([]inventory.MaintenanceRecord, error)
}

// Service handles scrap and repair intake.
type Service struct {
	repo     RepositoryPort
	engine   *inventory.Engine
	observer inventory.Observer
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *inventory.Engine, observer inventory.Observer, logger *slog.Logger) *Service {
	if engine == nil {
		engine = inventory.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, observer: observer, logger: logger, clock: func() time.Time { return time.Now().UTC() }}
}

// CreateScrap writes off one unit: the scrap record and an OUTWARD movement of one unit that
// leaves the item in SCRAP condition are committed together.
func (s *Service) CreateScrap(ctx context.Context, input ScrapInput) (ScrapResult, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	if err := shared.Validate(input); err != nil {
		return ScrapResult{}, err
	}
	rec := ScrapRecord{
		ID:            uuid.New(),
		ItemID:        input.ItemID,
		Reason:        input.Reason,
		DisposalNotes: strings.TrimSpace(input.DisposalNotes),
		ApprovedBy:    strings.TrimSpace(input.ApprovedBy),
		CreatedAt:     s.clock(),
	}
	scrap := inventory.ConditionScrap
	var result ScrapResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertScrap(ctx, rec); err != nil {
			return err
		}
		res, err := s.engine.Apply(ctx, tx, inventory.MovementInput{
			ItemID:         input.ItemID,
			Type:           inventory.MovementOutward,
			Quantity:       1,
			ConditionAfter: &scrap,
			Notes:          "Item scrapped: " + input.Reason,
			PerformedBy:    input.PerformedBy,
		})
		if err != nil {
			return err
		}
		result = ScrapResult{Scrap: rec, Movement: res.Movement, Item: res.Item}
		return nil
	})
	if err != nil {
		inventory.NotifyRejected(ctx, s.observer, inventory.MovementOutward, err)
		return ScrapResult{}, err
	}
	inventory.NotifyCommitted(ctx, s.observer, result.Movement)
	return result, nil
}

// DisposeScrap stamps the disposal details on a pending scrap record and logs the event as a
// status-only ledger row. Disposing twice is a conflict.
func (s *Service) DisposeScrap(ctx context.Context, input DisposeInput) (ScrapRecord, error) {
	input.DisposalNotes = strings.TrimSpace(input.DisposalNotes)
	if err := shared.Validate(input); err != nil {
		return ScrapRecord{}, err
	}
	if !input.Method.Valid() {
		return ScrapRecord{}, shared.NewValidationError("disposal_method", fmt.Sprintf("unknown disposal method %q", input.Method))
	}
	if input.ValueRealized != nil && input.ValueRealized.IsNegative() {
		return ScrapRecord{}, shared.NewValidationError("value_realized", "must not be negative")
	}
	var disposed ScrapRecord
	var marker inventory.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetScrapForUpdate(ctx, input.ScrapID)
		if err != nil {
			return err
		}
		if rec.Disposed() {
			return &shared.ConflictError{Entity: "scrap record", Key: rec.ID.String(), Message: "scrap already disposed"}
		}
		now := s.clock()
		method := input.Method
		rec.DisposalMethod = &method
		rec.DisposalDate = &now
		rec.ValueRealized = input.ValueRealized
		if input.DisposalNotes != "" {
			rec.DisposalNotes = input.DisposalNotes
		}
		if err := tx.UpdateScrapDisposal(ctx, rec); err != nil {
			return err
		}
		res, err := s.engine.RecordMarker(ctx, tx, inventory.MarkerInput{
			ItemID:      rec.ItemID,
			Type:        inventory.MovementOutward,
			Quantity:    1,
			Notes:       disposalNotes(input),
			PerformedBy: input.PerformedBy,
		})
		if err != nil {
			return err
		}
		disposed, marker = rec, res.Movement
		return nil
	})
	if err != nil {
		return ScrapRecord{}, err
	}
	inventory.NotifyCommitted(ctx, s.observer, marker)
	return disposed, nil
}

func disposalNotes(input DisposeInput) string {
	var b strings.Builder
	b.WriteString("Scrap disposed via ")
	b.WriteString(string(input.Method))
	if input.ValueRealized != nil && !input.ValueRealized.IsZero() {
		b.WriteString(". Value realized: ")
		b.WriteString(input.ValueRealized.StringFixed(2))
	}
	if input.DisposalNotes != "" {
		b.WriteString(". ")
		b.WriteString(input.DisposalNotes)
	}
	return b.String()
}

// CreateRepair opens a PENDING repair entry and marks the item REPAIR_NEEDED with a
// status-only ledger row. Quantity is unchanged.
func (s *Service) CreateRepair(ctx context.Context, input RepairInput) (RepairResult, error) {
	input.Notes = strings.TrimSpace(input.Notes)
	if err := shared.Validate(input); err != nil {
		return RepairResult{}, err
	}
	if input.RepairCost != nil && !input.RepairCost.IsPositive() {
		return RepairResult{}, shared.NewValidationError("repair_cost", "must be positive")
	}
	now := s.clock()
	entry := RepairEntry{
		ID:             uuid.New(),
		ItemID:         input.ItemID,
		AssignedTo:     strings.TrimSpace(input.AssignedTo),
		TechnicianName: strings.TrimSpace(input.TechnicianName),
		VendorName:     strings.TrimSpace(input.VendorName),
		RepairCost:     input.RepairCost,
		EstimatedDays:  input.EstimatedDays,
		Notes:          input.Notes,
		Status:         RepairPending,
		StartDate:      now,
		CreatedAt:      now,
	}
	notes := "Item sent for repair"
	if input.Notes != "" {
		notes += ": " + input.Notes
	}
	repair := inventory.ConditionRepairNeeded
	var result RepairResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertRepair(ctx, entry); err != nil {
			return err
		}
		res, err := s.engine.RecordMarker(ctx, tx, inventory.MarkerInput{
			ItemID:         input.ItemID,
			Type:           inventory.MovementOutward,
			Quantity:       1,
			ConditionAfter: &repair,
			Notes:          notes,
			PerformedBy:    input.PerformedBy,
		})
		if err != nil {
			return err
		}
		result = RepairResult{Repair: entry, Movement: res.Movement}
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}
	inventory.NotifyCommitted(ctx, s.observer, result.Movement)
	return result, nil
}

// ListScrap lists scrap records by status with a summary.
func (s *Service) ListScrap(ctx context.Context, status ScrapStatus) (ScrapList, error) {
	if status == "" {
		status = ScrapAll
	}
	if !status.Valid() {
		return ScrapList{}, shared.NewValidationError("status", fmt.Sprintf("unknown scrap status %q", status))
	}
	records, err := s.repo.ListScrap(ctx, status)
	if err != nil {
		return ScrapList{}, err
	}
	return ScrapList{Records: records, Summary: SummarizeScrap(records)}, nil
}

// ListRepairs lists repair entries, optionally by status, with a summary. An empty status
// or ALL lists everything.
func (s *Service) ListRepairs(ctx context.Context, status RepairStatus) (RepairList, error) {
	if status == "ALL" {
		status = ""
	}
	if status != "" && !status.Valid() {
		return RepairList{}, shared.NewValidationError("status", fmt.Sprintf("unknown repair status %q", status))
	}
	entries, err := s.repo.ListRepairs(ctx, status)
	if err != nil {
		return RepairList{}, err
	}
	return RepairList{Entries: entries, Summary: SummarizeRepairs(entries)}, nil
}

// ListMaintenance lists maintenance records opened by damaged returns.
func (s *Service) ListMaintenance(ctx context.Context, status inventory.MaintenanceStatus) ([]inventory.MaintenanceRecord, error) {
	if status != "" && !status.Valid() {
		return nil, shared.NewValidationError("status", fmt.Sprintf("unknown maintenance status %q", status))
	}
	return s.repo.ListMaintenance(ctx, status)
}
