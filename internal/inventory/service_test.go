package inventory_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/inventory/inventorytest"
	"github.com/eventstock/stockledger/internal/shared"
)

type recordingObserver struct {
	mu        sync.Mutex
	committed []inventory.Movement
	rejected  []inventory.MovementType
}

func (o *recordingObserver) MovementCommitted(_ context.Context, m inventory.Movement) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.committed = append(o.committed, m)
}

func (o *recordingObserver) MovementRejected(_ context.Context, t inventory.MovementType, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, t)
}

var fixedNow = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

func newService(store *inventorytest.Store, obs inventory.Observer) *inventory.Service {
	engine := inventory.NewEngine().WithClock(func() time.Time { return fixedNow })
	return inventory.NewService(store, engine, nil, obs, nil)
}

func TestOutwardMovementReducesStock(t *testing.T) {
	store := inventorytest.New()
	obs := &recordingObserver{}
	svc := newService(store, obs)
	item := store.Seed("Folding chair", 50)

	res, err := svc.ApplyMovement(context.Background(), inventory.MovementInput{
		ItemID:      item.ID,
		Type:        inventory.MovementOutward,
		Quantity:    20,
		PerformedBy: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, 50, res.Movement.PreviousQuantity)
	require.Equal(t, 30, res.Movement.NewQuantity)
	require.Equal(t, 20, res.Movement.Quantity)
	require.Equal(t, 30, res.Item.QuantityAvailable)
	require.Equal(t, 30, store.Item(item.ID).QuantityAvailable)
	require.Equal(t, fixedNow, res.Movement.CreatedAt)
	require.Len(t, store.Movements(item.ID), 2)
	require.Len(t, obs.committed, 1)
	require.Nil(t, res.Maintenance)
}

func TestRejectedMovementLeavesNoTrace(t *testing.T) {
	store := inventorytest.New()
	obs := &recordingObserver{}
	svc := newService(store, obs)
	item := store.Seed("Stage light", 30)
	before := store.MovementCount()

	for i := 0; i < 2; i++ {
		_, err := svc.ApplyMovement(context.Background(), inventory.MovementInput{
			ItemID:      item.ID,
			Type:        inventory.MovementOutward,
			Quantity:    31,
			PerformedBy: "u1",
		})
		var stockErr *shared.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		require.Equal(t, 30, stockErr.Available)
		require.Equal(t, 31, stockErr.Requested)
		require.Equal(t, 30, store.Item(item.ID).QuantityAvailable)
		require.Equal(t, before, store.MovementCount())
	}
	require.Len(t, obs.rejected, 2)
	require.Empty(t, obs.committed)
}

func TestValidationHappensBeforeTransaction(t *testing.T) {
	store := inventorytest.New()
	store.Fail = func(op string) error { return errors.New("store touched") }
	svc := newService(store, nil)
	item := store.Seed("Table", 4)

	cases := []inventory.MovementInput{
		{ItemID: item.ID, Type: inventory.MovementOutward, Quantity: 0, PerformedBy: "u1"},
		{ItemID: item.ID, Type: "TRANSFER", Quantity: 1, PerformedBy: "u1"},
		{ItemID: item.ID, Type: inventory.MovementInward, Quantity: 1},
		{Type: inventory.MovementInward, Quantity: 1, PerformedBy: "u1"},
	}
	for _, in := range cases {
		_, err := svc.ApplyMovement(context.Background(), in)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestMissingItemIsNotFound(t *testing.T) {
	svc := newService(inventorytest.New(), nil)
	_, err := svc.ApplyMovement(context.Background(), inventory.MovementInput{
		ItemID:      uuid.New(),
		Type:        inventory.MovementInward,
		Quantity:    1,
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDamagedReturnOpensMaintenanceRecord(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store, nil)
	item := store.Seed("Speaker", 1)
	damaged := inventory.ConditionDamaged

	res, err := svc.ApplyMovement(context.Background(), inventory.MovementInput{
		ItemID:         item.ID,
		Type:           inventory.MovementReturn,
		Quantity:       2,
		ConditionAfter: &damaged,
		PerformedBy:    "u1",
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Item.QuantityAvailable)
	require.Equal(t, inventory.ConditionDamaged, store.Item(item.ID).Condition)
	require.NotNil(t, res.Maintenance)
	require.Equal(t, inventory.MaintenancePending, res.Maintenance.Status)
	require.Equal(t, "Item marked as DAMAGED during return", res.Maintenance.Notes)
	require.Len(t, store.MaintenanceRecords(), 1)
}

func TestFailedUpdateRollsBackMovement(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store, nil)
	item := store.Seed("Truss", 6)
	store.Fail = func(op string) error {
		if op == "UpdateItemStock" {
			return errors.New("disk full")
		}
		return nil
	}
	before := store.MovementCount()

	_, err := svc.ApplyMovement(context.Background(), inventory.MovementInput{
		ItemID:      item.ID,
		Type:        inventory.MovementOutward,
		Quantity:    1,
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrTransaction)
	require.Equal(t, before, store.MovementCount())
	require.Equal(t, 6, store.Item(item.ID).QuantityAvailable)
}

func TestRecordMarkerKeepsQuantity(t *testing.T) {
	store := inventorytest.New()
	engine := inventory.NewEngine()
	item := store.Seed("Generator", 5)
	repair := inventory.ConditionRepairNeeded

	var res inventory.Result
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		res, err = engine.RecordMarker(ctx, tx, inventory.MarkerInput{
			ItemID:         item.ID,
			Type:           inventory.MovementOutward,
			ConditionAfter: &repair,
			Notes:          "Item sent for repair: hum",
			PerformedBy:    "u1",
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, res.Movement.StatusOnly)
	require.Equal(t, 1, res.Movement.Quantity)
	require.Equal(t, res.Movement.PreviousQuantity, res.Movement.NewQuantity)
	require.Equal(t, 5, store.Item(item.ID).QuantityAvailable)
	require.Equal(t, inventory.ConditionRepairNeeded, store.Item(item.ID).Condition)
	require.Empty(t, store.MaintenanceRecords())
	require.True(t, inventory.Replay(store.Item(item.ID), store.Movements(item.ID)).Healthy())
}

func TestManualPurchaseUpdatesCost(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store, nil)
	item := store.Seed("Backdrop", 0)
	price := decimal.RequireFromString("125.50")

	res, err := svc.RecordManualTransaction(context.Background(), inventory.ManualInput{
		Type:          inventory.MovementPurchase,
		ItemID:        item.ID,
		Quantity:      4,
		UnitPrice:     &price,
		Vendor:        "Acme Rentals",
		InvoiceNumber: "INV-77",
		Notes:         "rush order",
		PerformedBy:   "u1",
	})
	require.NoError(t, err)
	require.Equal(t, 4, res.Item.QuantityAvailable)
	require.True(t, price.Equal(*store.Item(item.ID).Cost))
	require.Equal(t, "Purchase - Acme Rentals (Invoice: INV-77). rush order", res.Movement.Notes)

	_, err = svc.RecordManualTransaction(context.Background(), inventory.ManualInput{
		Type:        inventory.MovementSale,
		ItemID:      item.ID,
		Quantity:    9,
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = svc.RecordManualTransaction(context.Background(), inventory.ManualInput{
		Type:        inventory.MovementInward,
		ItemID:      item.ID,
		Quantity:    1,
		PerformedBy: "u1",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateItemBooksOpeningStock(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store, nil)

	item, opening, err := svc.CreateItem(context.Background(), inventory.CreateItemInput{
		CategoryID:      uuid.New(),
		Name:            "  Round table ",
		OpeningQuantity: 12,
		PerformedBy:     "u1",
	})
	require.NoError(t, err)
	require.Equal(t, "Round table", item.Name)
	require.Equal(t, 12, item.QuantityAvailable)
	require.Equal(t, inventory.ConditionGood, item.Condition)
	require.Equal(t, "Opening stock", opening.Movement.Notes)

	check, err := svc.VerifyItemLedger(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, check.Healthy())
	require.Equal(t, 1, check.Entries)
}

func TestVerifyLedgerReportsDrift(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store, nil)
	healthy := store.Seed("Chair", 3)
	drifted := store.Seed("Tent", 8)
	store.Corrupt(drifted.ID, 11)

	checks, err := svc.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, drifted.ID, checks[0].ItemID)
	require.Equal(t, 8, checks[0].Expected)
	require.Equal(t, 11, checks[0].Actual)

	check, err := svc.VerifyItemLedger(context.Background(), healthy.ID)
	require.NoError(t, err)
	require.True(t, check.Healthy())
}

func TestLedgerSumHoldsUnderRandomMovements(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store, nil)
	item := store.Seed("Cable", 20)
	types := []inventory.MovementType{
		inventory.MovementInward, inventory.MovementOutward, inventory.MovementReturn,
		inventory.MovementPurchase, inventory.MovementSale,
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		_, err := svc.ApplyMovement(context.Background(), inventory.MovementInput{
			ItemID:      item.ID,
			Type:        types[rng.Intn(len(types))],
			Quantity:    1 + rng.Intn(9),
			PerformedBy: "u1",
		})
		if err != nil {
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
		}
	}
	current := store.Item(item.ID)
	require.GreaterOrEqual(t, current.QuantityAvailable, 0)
	for _, m := range store.Movements(item.ID) {
		require.True(t, m.Consistent(), "movement %s breaks the delta rule", m.ID)
	}
	require.True(t, inventory.Replay(current, store.Movements(item.ID)).Healthy())
}

func TestMovementTypeSign(t *testing.T) {
	for _, tc := range []struct {
		typ  inventory.MovementType
		sign int
	}{
		{inventory.MovementInward, 1},
		{inventory.MovementReturn, 1},
		{inventory.MovementPurchase, 1},
		{inventory.MovementOutward, -1},
		{inventory.MovementSale, -1},
	} {
		sign, err := tc.typ.Sign()
		require.NoError(t, err)
		require.Equal(t, tc.sign, sign, tc.typ)
	}
	_, err := inventory.MovementType("LOAN").Sign()
	require.ErrorIs(t, err, inventory.ErrUnknownMovementType)
}

func TestOversizedQuantityIsValidationError(t *testing.T) {
	store := inventorytest.New()
	obs := &recordingObserver{}
	svc := newService(store, obs)
	ctx := context.Background()
	item := store.Seed("Chair", 1)

	_, err := svc.ApplyMovement(ctx, inventory.MovementInput{
		ItemID: item.ID, Type: inventory.MovementInward, Quantity: math.MaxInt, PerformedBy: "u1",
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Quantity", verr.Field)
	require.NotErrorIs(t, err, shared.ErrInsufficientStock)

	full := store.Seed("Cable tie", inventory.MaxQuantity-1)
	_, err = svc.ApplyMovement(ctx, inventory.MovementInput{
		ItemID: full.ID, Type: inventory.MovementInward, Quantity: 2, PerformedBy: "u1",
	})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "quantity", verr.Field)
	require.Equal(t, inventory.MaxQuantity-1, store.Item(full.ID).QuantityAvailable)
	require.Len(t, store.Movements(full.ID), 1)
	require.Len(t, store.Movements(item.ID), 1)
	require.Empty(t, obs.committed)
}

func TestMovementTypeApplyBounds(t *testing.T) {
	next, err := inventory.MovementInward.Apply(inventory.MaxQuantity-1, 1)
	require.NoError(t, err)
	require.Equal(t, inventory.MaxQuantity, next)

	_, err = inventory.MovementInward.Apply(inventory.MaxQuantity, 1)
	require.ErrorIs(t, err, inventory.ErrQuantityOverflow)

	_, err = inventory.MovementReturn.Apply(0, math.MaxInt)
	require.ErrorIs(t, err, inventory.ErrQuantityOverflow)

	next, err = inventory.MovementOutward.Apply(5, 7)
	require.NoError(t, err)
	require.Equal(t, -2, next)
}
