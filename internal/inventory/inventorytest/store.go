// Package inventorytest provides an in-memory item registry and movement ledger for tests of
// packages that run the stock ledger engine inside their own unit of work.
package inventorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/shared"
)

// Store is an in-memory inventory.RepositoryPort. Units of work are serialised by one mutex,
// which stands in for row locks, and rolled back by restoring a snapshot.
type Store struct {
	mu          sync.Mutex
	items       map[uuid.UUID]inventory.Item
	movements   []inventory.Movement
	maintenance []inventory.MaintenanceRecord
	seq         int64

	// Fail, when set, is consulted before every write with the operation name
	// ("InsertMovement", "UpdateItemStock", "InsertItem", "InsertMaintenanceRecord").
	// A non-nil result aborts the write.
	Fail func(op string) error
}

// New returns an empty Store.
func New() *Store {
	return &Store{items: make(map[uuid.UUID]inventory.Item)}
}

type snapshot struct {
	items       map[uuid.UUID]inventory.Item
	movements   int
	maintenance int
	seq         int64
}

func (s *Store) snapshot() snapshot {
	items := make(map[uuid.UUID]inventory.Item, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	return snapshot{items: items, movements: len(s.movements), maintenance: len(s.maintenance), seq: s.seq}
}

func (s *Store) restore(snap snapshot) {
	s.items = snap.items
	s.movements = s.movements[:snap.movements]
	s.maintenance = s.maintenance[:snap.maintenance]
	s.seq = snap.seq
}

// Atomically runs fn as one unit of work. Callers that keep their own documents in memory
// snapshot them inside fn; the ledger state is restored here when fn fails.
func (s *Store) Atomically(ctx context.Context, fn func(inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(&tx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	err := s.Atomically(ctx, func(tx inventory.TxRepository) error {
		return fn(ctx, tx)
	})
	return shared.WrapTx("inventory: tx", err)
}

// Seed registers an item with an opening INWARD movement so the ledger invariant holds.
func (s *Store) Seed(name string, quantity int) inventory.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	item := inventory.Item{
		ID:                uuid.New(),
		CategoryID:        uuid.New(),
		Name:              name,
		QuantityAvailable: quantity,
		Condition:         inventory.ConditionGood,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.items[item.ID] = item
	if quantity > 0 {
		s.seq++
		s.movements = append(s.movements, inventory.Movement{
			ID:          uuid.New(),
			Seq:         s.seq,
			ItemID:      item.ID,
			Type:        inventory.MovementInward,
			Quantity:    quantity,
			NewQuantity: quantity,
			Notes:       "Opening stock",
			PerformedBy: "seed",
			CreatedAt:   now,
		})
	}
	return item
}

// Item returns the stored item.
func (s *Store) Item(id uuid.UUID) inventory.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

// Movements returns every movement of itemID in creation order.
func (s *Store) Movements(itemID uuid.UUID) []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemMovements(itemID)
}

// MovementCount returns the size of the whole ledger.
func (s *Store) MovementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movements)
}

// MaintenanceRecords returns every maintenance record.
func (s *Store) MaintenanceRecords() []inventory.MaintenanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.MaintenanceRecord(nil), s.maintenance...)
}

// Corrupt overwrites an item's stored quantity without a movement.
func (s *Store) Corrupt(id uuid.UUID, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[id]
	item.QuantityAvailable = quantity
	s.items[id] = item
}

func (s *Store) itemMovements(itemID uuid.UUID) []inventory.Movement {
	var out []inventory.Movement
	for _, m := range s.movements {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out
}

// GetItem implements inventory.RepositoryPort.
func (s *Store) GetItem(_ context.Context, id uuid.UUID) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return inventory.Item{}, shared.NewNotFoundError("item", id)
	}
	return item, nil
}

// ListItems implements inventory.RepositoryPort.
func (s *Store) ListItems(_ context.Context, filter inventory.ItemFilter) ([]inventory.Item, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Item
	for _, item := range s.items {
		if filter.CategoryID != nil && item.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.Condition != "" && item.Condition != filter.Condition {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, filter.Limit, filter.Offset), len(out), nil
}

// ListMovements implements inventory.RepositoryPort.
func (s *Store) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Movement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.ItemID != nil && m.ItemID != *filter.ItemID {
			continue
		}
		if filter.ProjectID != nil && (m.ProjectID == nil || *m.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
	}
	return page(out, filter.Limit, filter.Offset), len(out), nil
}

// ItemMovements implements inventory.RepositoryPort.
func (s *Store) ItemMovements(_ context.Context, itemID uuid.UUID) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemMovements(itemID), nil
}

// DriftedItems implements inventory.RepositoryPort.
func (s *Store) DriftedItems(_ context.Context) ([]inventory.LedgerCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.LedgerCheck
	for _, item := range s.items {
		check := inventory.Replay(item, s.itemMovements(item.ID))
		if !check.Healthy() {
			out = append(out, check)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out, nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

type tx struct {
	store *Store
}

func (t *tx) fail(op string) error {
	if t.store.Fail == nil {
		return nil
	}
	return t.store.Fail(op)
}

func (t *tx) GetItemForUpdate(_ context.Context, id uuid.UUID) (inventory.Item, error) {
	item, ok := t.store.items[id]
	if !ok {
		return inventory.Item{}, shared.NewNotFoundError("item", id)
	}
	return item, nil
}

func (t *tx) InsertItem(_ context.Context, item inventory.Item) error {
	if err := t.fail("InsertItem"); err != nil {
		return err
	}
	t.store.items[item.ID] = item
	return nil
}

func (t *tx) UpdateItemStock(_ context.Context, item inventory.Item) error {
	if err := t.fail("UpdateItemStock"); err != nil {
		return err
	}
	if _, ok := t.store.items[item.ID]; !ok {
		return shared.NewNotFoundError("item", item.ID)
	}
	t.store.items[item.ID] = item
	return nil
}

func (t *tx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	if err := t.fail("InsertMovement"); err != nil {
		return inventory.Movement{}, err
	}
	t.store.seq++
	m.Seq = t.store.seq
	t.store.movements = append(t.store.movements, m)
	return m, nil
}

func (t *tx) InsertMaintenanceRecord(_ context.Context, rec inventory.MaintenanceRecord) error {
	if err := t.fail("InsertMaintenanceRecord"); err != nil {
		return err
	}
	t.store.maintenance = append(t.store.maintenance, rec)
	return nil
}
