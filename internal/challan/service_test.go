package challan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/inventory/inventorytest"
	"github.com/eventstock/stockledger/internal/shared"
)

type memoryRepo struct {
	store *inventorytest.Store

	mu        sync.Mutex
	projects  map[uuid.UUID]bool
	challans  map[uuid.UUID]Challan
	order     []uuid.UUID
	sequences map[int]int
}

type memorySnapshot struct {
	challans  map[uuid.UUID]Challan
	order     int
	sequences map[int]int
}

func newMemoryRepo(store *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		store:     store,
		projects:  map[uuid.UUID]bool{},
		challans:  map[uuid.UUID]Challan{},
		sequences: map[int]int{},
	}
}

func (r *memoryRepo) addProject() uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.projects[id] = true
	r.mu.Unlock()
	return id
}

func (r *memoryRepo) snapshot() memorySnapshot {
	challans := make(map[uuid.UUID]Challan, len(r.challans))
	for k, v := range r.challans {
		challans[k] = v
	}
	sequences := make(map[int]int, len(r.sequences))
	for k, v := range r.sequences {
		sequences[k] = v
	}
	return memorySnapshot{challans: challans, order: len(r.order), sequences: sequences}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := r.store.Atomically(ctx, func(itx inventory.TxRepository) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		snap := r.snapshot()
		if err := fn(ctx, &memoryTx{TxRepository: itx, repo: r}); err != nil {
			r.challans = snap.challans
			r.order = r.order[:snap.order]
			r.sequences = snap.sequences
			return err
		}
		return nil
	})
	return shared.WrapTx("challan: tx", err)
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (Challan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challans[id]
	if !ok {
		return Challan{}, shared.NewNotFoundError("challan", id)
	}
	return c, nil
}

func (r *memoryRepo) List(_ context.Context, filter Filter) ([]Challan, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Challan
	for i := len(r.order) - 1; i >= 0; i-- {
		c := r.challans[r.order[i]]
		if filter.ProjectID != nil && c.ProjectID != *filter.ProjectID {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.challans)
}

type memoryTx struct {
	inventory.TxRepository
	repo *memoryRepo
}

func (tx *memoryTx) ProjectExists(_ context.Context, id uuid.UUID) error {
	if !tx.repo.projects[id] {
		return shared.NewNotFoundError("project", id)
	}
	return nil
}

func (tx *memoryTx) NextSequence(_ context.Context, year int) (int, error) {
	tx.repo.sequences[year]++
	return tx.repo.sequences[year], nil
}

func (tx *memoryTx) InsertChallan(_ context.Context, c Challan) error {
	for _, existing := range tx.repo.challans {
		if existing.Number == c.Number {
			return &shared.ConflictError{Entity: "challan", Key: c.Number}
		}
	}
	tx.repo.challans[c.ID] = c
	tx.repo.order = append(tx.repo.order, c.ID)
	return nil
}

func (tx *memoryTx) InsertLine(_ context.Context, l Line) error {
	c := tx.repo.challans[l.ChallanID]
	c.Lines = append(c.Lines, l)
	tx.repo.challans[l.ChallanID] = c
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type countingHook struct {
	mu      sync.Mutex
	numbers []string
}

func (h *countingHook) ChallanCreated(_ context.Context, number string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.numbers = append(h.numbers, number)
}

type fixture struct {
	store   *inventorytest.Store
	repo    *memoryRepo
	idem    *memoryIdempotency
	hook    *countingHook
	service *Service
	project uuid.UUID
}

func newFixture(now time.Time) *fixture {
	store := inventorytest.New()
	repo := newMemoryRepo(store)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	hook := &countingHook{}
	svc := NewService(repo, nil, idem, nil, nil).WithHook(hook).WithClock(func() time.Time { return now })
	return &fixture{store: store, repo: repo, idem: idem, hook: hook, service: svc, project: repo.addProject()}
}

var issueDay = time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)

func TestCreateAllocatesStockAndNumbers(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chiavari chair", 50)
	y := f.store.Seed("Round table", 8)

	c, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 10}, {ItemID: y.ID, Quantity: 3, Notes: " linen "}},
		TruckNumber: "ka 01  ab 1234",
		PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, "CH-2024-001", c.Number)
	require.Equal(t, "KA 01 AB 1234", c.TruckNumber)
	require.Equal(t, DirectionOutward, c.Direction)
	require.Len(t, c.Lines, 2)
	require.Equal(t, "linen", c.Lines[1].Notes)
	require.Equal(t, 40, f.store.Item(x.ID).QuantityAvailable)
	require.Equal(t, 5, f.store.Item(y.ID).QuantityAvailable)

	movements := f.store.Movements(x.ID)
	last := movements[len(movements)-1]
	require.Equal(t, inventory.MovementOutward, last.Type)
	require.Equal(t, "Allocated via Challan CH-2024-001", last.Notes)
	require.Equal(t, c.ID, *last.ChallanID)
	require.Equal(t, f.project, *last.ProjectID)
	require.Equal(t, last.ID, c.Lines[0].MovementID)

	second, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 1}},
		PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, "CH-2024-002", second.Number)
	require.Equal(t, []string{"CH-2024-001", "CH-2024-002"}, f.hook.numbers)
}

func TestShortLineRejectsWholeChallan(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 50)
	y := f.store.Seed("Heater", 5)
	before := f.store.MovementCount()

	_, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 10}, {ItemID: y.ID, Quantity: 1000}},
		PerformedBy: "u1",
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, y.ID.String(), stockErr.ItemID)
	require.Equal(t, 5, stockErr.Available)
	require.Equal(t, 1000, stockErr.Requested)

	require.Equal(t, 50, f.store.Item(x.ID).QuantityAvailable)
	require.Equal(t, 5, f.store.Item(y.ID).QuantityAvailable)
	require.Equal(t, before, f.store.MovementCount())
	require.Zero(t, f.repo.count())

	c, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 10}},
		PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, "CH-2024-001", c.Number, "a rolled back challan must not consume a number")
}

func TestWriteFailureMidChallanRollsBackEverything(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 50)
	y := f.store.Seed("Table", 9)
	before := f.store.MovementCount()

	updates := 0
	f.store.Fail = func(op string) error {
		if op != "UpdateItemStock" {
			return nil
		}
		updates++
		if updates == 2 {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:      f.project,
		Lines:          []LineInput{{ItemID: x.ID, Quantity: 10}, {ItemID: y.ID, Quantity: 4}},
		PerformedBy:    "u1",
		IdempotencyKey: "req-1",
	})
	require.ErrorIs(t, err, shared.ErrTransaction)
	require.Equal(t, 50, f.store.Item(x.ID).QuantityAvailable)
	require.Equal(t, 9, f.store.Item(y.ID).QuantityAvailable)
	require.Equal(t, before, f.store.MovementCount())
	require.Zero(t, f.repo.count())
	require.False(t, f.idem.keys["req-1"], "failed request must release its idempotency key")
}

func TestConcurrentCreatesGetDistinctNumbers(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 100)
	const n = 25

	numbers := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			c, err := f.service.Create(context.Background(), CreateInput{
				ProjectID:   f.project,
				Lines:       []LineInput{{ItemID: x.ID, Quantity: 2}},
				PerformedBy: fmt.Sprintf("u%d", i),
			})
			if err != nil {
				return err
			}
			numbers[i] = c.Number
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seqs := make([]int, 0, n)
	for _, number := range numbers {
		year, seq, err := ParseNumber(number)
		require.NoError(t, err)
		require.Equal(t, 2024, year)
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for i, seq := range seqs {
		require.Equal(t, i+1, seq)
	}
	require.Equal(t, 100-2*n, f.store.Item(x.ID).QuantityAvailable)
	require.True(t, inventory.Replay(f.store.Item(x.ID), f.store.Movements(x.ID)).Healthy())
}

func TestNumberingRestartsEachYear(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 10)
	in := CreateInput{ProjectID: f.project, Lines: []LineInput{{ItemID: x.ID, Quantity: 1}}, PerformedBy: "u1"}

	_, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	f.service.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC) })
	c, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "CH-2025-001", c.Number)
}

func TestCreateRejectsBadRequests(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 10)

	_, err := f.service.Create(context.Background(), CreateInput{ProjectID: f.project, PerformedBy: "u1"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 5}, {ItemID: x.ID, Quantity: -1}},
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 1}},
		Direction:   "SIDEWAYS",
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), CreateInput{
		ProjectID:      uuid.New(),
		Lines:          []LineInput{{ItemID: x.ID, Quantity: 1}},
		PerformedBy:    "u1",
		IdempotencyKey: "req-9",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, f.idem.keys["req-9"])

	_, err = f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: uuid.New(), Quantity: 1}},
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, 10, f.store.Item(x.ID).QuantityAvailable)

	_, err = f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: inventory.MaxQuantity + 1}},
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: inventory.MaxQuantity}, {ItemID: x.ID, Quantity: inventory.MaxQuantity}},
		PerformedBy: "u1",
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "items[0].quantity", verr.Field)
	require.Equal(t, 10, f.store.Item(x.ID).QuantityAvailable)
}

func TestDuplicateLinesAreMerged(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 10)

	_, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 6}, {ItemID: x.ID, Quantity: 6}},
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	c, err := f.service.Create(context.Background(), CreateInput{
		ProjectID:   f.project,
		Lines:       []LineInput{{ItemID: x.ID, Quantity: 4, Notes: "stage"}, {ItemID: x.ID, Quantity: 3, Notes: "foyer"}},
		PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	require.Equal(t, 7, c.Lines[0].Quantity)
	require.Equal(t, "stage; foyer", c.Lines[0].Notes)
	require.Equal(t, 3, f.store.Item(x.ID).QuantityAvailable)
}

func TestIdempotentReplayIsConflict(t *testing.T) {
	f := newFixture(issueDay)
	x := f.store.Seed("Chair", 10)
	in := CreateInput{ProjectID: f.project, Lines: []LineInput{{ItemID: x.ID, Quantity: 1}}, PerformedBy: "u1", IdempotencyKey: "abc"}

	_, err := f.service.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = f.service.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 9, f.store.Item(x.ID).QuantityAvailable)
	require.Equal(t, 1, f.repo.count())
}

func TestNumberFormatting(t *testing.T) {
	require.Equal(t, "CH-2024-007", FormatNumber(2024, 7))
	require.Equal(t, "CH-2024-1234", FormatNumber(2024, 1234))

	year, seq, err := ParseNumber("CH-2031-042")
	require.NoError(t, err)
	require.Equal(t, 2031, year)
	require.Equal(t, 42, seq)

	for _, bad := range []string{"", "CH-24-001", "XX-2024-001", "CH-2024-01", "CH-2024-abc", "CH-2024-000"} {
		_, _, err := ParseNumber(bad)
		require.ErrorIs(t, err, ErrMalformedNumber, bad)
	}
}
