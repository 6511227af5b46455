package challan

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/shared"
)

const idempotencyModule = "challan"

// TxRepository is the challan unit of work. It embeds the ledger so allocations and the
// document share one transaction.
type TxRepository interface {
	inventory.TxRepository
	ProjectExists(ctx context.Context, id uuid.UUID) error
	// NextSequence increments and returns the per-year counter. The counter row stays locked
	// until the transaction ends, and a rollback returns the number.
	NextSequence(ctx context.Context, year int) (int, error)
	InsertChallan(ctx context.Context, c Challan) error
	InsertLine(ctx context.Context, line Line) error
}

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Challan, error)
	List(ctx context.Context, filter Filter) ([]Challan, int, error)
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CreatedHook is told about every committed challan.
type CreatedHook interface {
	ChallanCreated(ctx context.Context, number string)
}

// Service creates challans.
type Service struct {
	repo        RepositoryPort
	engine      *inventory.Engine
	idempotency IdempotencyPort
	observer    inventory.Observer
	hook        CreatedHook
	logger      *slog.Logger
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *inventory.Engine, idempotency IdempotencyPort, observer inventory.Observer, logger *slog.Logger) *Service {
	if engine == nil {
		engine = inventory.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		engine:      engine,
		idempotency: idempotency,
		observer:    observer,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// WithHook registers a CreatedHook.
func (s *Service) WithHook(hook CreatedHook) *Service {
	s.hook = hook
	return s
}

// WithClock overrides the clock used for issue dates and numbering.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Create validates the request, checks every line against available stock and then, in one
// transaction, allocates a number, writes the challan and books one OUTWARD movement per line.
// Any failure leaves nothing behind.
func (s *Service) Create(ctx context.Context, input CreateInput) (Challan, error) {
	input = normalise(input)
	if err := shared.Validate(input); err != nil {
		return Challan{}, err
	}
	if !input.Direction.Valid() {
		return Challan{}, shared.NewValidationError("movement_direction", fmt.Sprintf("unknown direction %q", input.Direction))
	}
	input.Lines = mergeLines(input.Lines)
	for i, l := range input.Lines {
		if l.Quantity > inventory.MaxQuantity {
			return Challan{}, shared.NewValidationError(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be at most %d", inventory.MaxQuantity))
		}
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Challan{}, err
		}
	}

	issued := s.clock()
	challan := Challan{
		ID:                 uuid.New(),
		ProjectID:          input.ProjectID,
		CreatedBy:          input.PerformedBy,
		IssueDate:          issued,
		ExpectedReturnDate: input.ExpectedReturnDate,
		Remarks:            input.Remarks,
		TruckNumber:        input.TruckNumber,
		DriverName:         input.DriverName,
		DriverPhone:        input.DriverPhone,
		Direction:          input.Direction,
	}
	var movements []inventory.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		challan.Lines = nil
		if err := tx.ProjectExists(ctx, input.ProjectID); err != nil {
			return err
		}
		if err := preflight(ctx, tx, input.Lines); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, issued.Year())
		if err != nil {
			return err
		}
		challan.Number = FormatNumber(issued.Year(), seq)
		if err := tx.InsertChallan(ctx, challan); err != nil {
			return err
		}
		projectID := input.ProjectID
		for _, l := range input.Lines {
			res, err := s.engine.Apply(ctx, tx, inventory.MovementInput{
				ItemID:      l.ItemID,
				Type:        inventory.MovementOutward,
				Quantity:    l.Quantity,
				ProjectID:   &projectID,
				ChallanID:   &challan.ID,
				Notes:       "Allocated via Challan " + challan.Number,
				PerformedBy: input.PerformedBy,
			})
			if err != nil {
				return err
			}
			line := Line{
				ID:         uuid.New(),
				ChallanID:  challan.ID,
				ItemID:     l.ItemID,
				Quantity:   l.Quantity,
				Notes:      l.Notes,
				MovementID: res.Movement.ID,
			}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			challan.Lines = append(challan.Lines, line)
			movements = append(movements, res.Movement)
		}
		return nil
	})
	if err != nil {
		s.release(ctx, input.IdempotencyKey)
		inventory.NotifyRejected(ctx, s.observer, inventory.MovementOutward, err)
		return Challan{}, err
	}

	inventory.NotifyCommitted(ctx, s.observer, movements...)
	if s.hook != nil {
		s.hook.ChallanCreated(ctx, challan.Number)
	}
	s.logger.Info("challan created",
		slog.String("number", challan.Number),
		slog.String("project_id", challan.ProjectID.String()),
		slog.Int("lines", len(challan.Lines)))
	return challan, nil
}

// Get returns one challan with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Challan, error) {
	return s.repo.Get(ctx, id)
}

// List lists challans, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Challan, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) release(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

// preflight locks every referenced item in ascending id order and rejects the request on the
// first shortage, before anything is written.
func preflight(ctx context.Context, tx inventory.TxRepository, lines []LineInput) error {
	ordered := append([]LineInput(nil), lines...)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].ItemID[:], ordered[j].ItemID[:]) < 0
	})
	for _, l := range ordered {
		item, err := tx.GetItemForUpdate(ctx, l.ItemID)
		if err != nil {
			return err
		}
		if item.QuantityAvailable < l.Quantity {
			return &shared.InsufficientStockError{
				ItemID:    item.ID.String(),
				ItemName:  item.Name,
				Available: item.QuantityAvailable,
				Requested: l.Quantity,
			}
		}
	}
	return nil
}

// normalise trims free text, upper-cases the truck plate and defaults the direction.
func normalise(in CreateInput) CreateInput {
	in.Remarks = strings.TrimSpace(in.Remarks)
	in.TruckNumber = cases.Upper(language.Und).String(strings.Join(strings.Fields(in.TruckNumber), " "))
	in.DriverName = strings.TrimSpace(in.DriverName)
	in.DriverPhone = strings.TrimSpace(in.DriverPhone)
	in.Direction = Direction(strings.ToUpper(strings.TrimSpace(string(in.Direction))))
	if in.Direction == "" {
		in.Direction = DirectionOutward
	}
	in.Lines = append([]LineInput(nil), in.Lines...)
	for i := range in.Lines {
		in.Lines[i].Notes = strings.TrimSpace(in.Lines[i].Notes)
	}
	return in
}

// mergeLines folds repeated item lines so each item is checked and booked once.
func mergeLines(lines []LineInput) []LineInput {
	merged := make([]LineInput, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ItemID]; ok {
			merged[i].Quantity += l.Quantity
			if l.Notes != "" {
				if merged[i].Notes != "" {
					merged[i].Notes += "; "
				}
				merged[i].Notes += l.Notes
			}
			continue
		}
		index[l.ItemID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}
