package inventory

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Condition is the physical state of an item.
type Condition string

const (
	ConditionGood         Condition = "GOOD"
	ConditionRepairNeeded Condition = "REPAIR_NEEDED"
	ConditionDamaged      Condition = "DAMAGED"
	ConditionScrap        Condition = "SCRAP"
	ConditionInTransit    Condition = "IN_TRANSIT"
)

// Valid reports whether c is part of the vocabulary.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionRepairNeeded, ConditionDamaged, ConditionScrap, ConditionInTransit:
		return true
	}
	return false
}

// NeedsMaintenance reports whether moving an item into c opens a maintenance record.
func (c Condition) NeedsMaintenance() bool {
	switch c {
	case ConditionRepairNeeded, ConditionDamaged:
		return true
	case ConditionGood, ConditionScrap, ConditionInTransit:
		return false
	}
	return false
}

// MovementType classifies a ledger entry and fixes the sign of its delta.
type MovementType string

const (
	MovementInward   MovementType = "INWARD"
	MovementOutward  MovementType = "OUTWARD"
	MovementReturn   MovementType = "RETURN"
	MovementPurchase MovementType = "PURCHASE"
	MovementSale     MovementType = "SALE"
)

// ErrUnknownMovementType is returned for values outside the vocabulary.
var ErrUnknownMovementType = errors.New("inventory: unknown movement type")

// MaxQuantity is the largest quantity a single item or movement can hold (INTEGER columns).
// Input structs repeat it as lte=2147483647.
const MaxQuantity = math.MaxInt32

// ErrQuantityOverflow reports a movement whose result would exceed MaxQuantity.
var ErrQuantityOverflow = errors.New("inventory: quantity overflow")

// Valid reports whether t is part of the vocabulary.
func (t MovementType) Valid() bool {
	_, err := t.Sign()
	return err == nil
}

// Sign returns +1 for stock-increasing types and -1 for stock-decreasing ones.
func (t MovementType) Sign() (int, error) {
	switch t {
	case MovementInward, MovementReturn, MovementPurchase:
		return 1, nil
	case MovementOutward, MovementSale:
		return -1, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMovementType, string(t))
}

// Apply computes the quantity after moving quantity units. The result may be negative;
// callers reject that. Results above MaxQuantity fail with ErrQuantityOverflow.
func (t MovementType) Apply(previous, quantity int) (int, error) {
	sign, err := t.Sign()
	if err != nil {
		return previous, err
	}
	if quantity < 0 || quantity > MaxQuantity || previous > MaxQuantity {
		return previous, fmt.Errorf("%w: %d", ErrQuantityOverflow, quantity)
	}
	next := previous + sign*quantity
	if next > MaxQuantity {
		return previous, fmt.Errorf("%w: %d + %d exceeds %d", ErrQuantityOverflow, previous, quantity, MaxQuantity)
	}
	return next, nil
}

// MaintenanceStatus tracks a maintenance record.
type MaintenanceStatus string

const (
	MaintenancePending    MaintenanceStatus = "PENDING"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
)

// Valid reports whether s is part of the vocabulary.
func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenancePending, MaintenanceInProgress, MaintenanceCompleted:
		return true
	}
	return false
}

// Item is one stockable unit type. QuantityAvailable is only changed by the ledger engine.
type Item struct {
	ID                uuid.UUID        `json:"id"`
	CategoryID        uuid.UUID        `json:"category_id"`
	SubcategoryID     *uuid.UUID       `json:"subcategory_id,omitempty"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	QuantityAvailable int              `json:"quantity_available"`
	Condition         Condition        `json:"condition"`
	Cost              *decimal.Decimal `json:"cost,omitempty"`
	Vendor            string           `json:"vendor,omitempty"`
	Remarks           string           `json:"remarks,omitempty"`
	CurrentLocation   string           `json:"current_location,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Movement is an immutable ledger entry.
type Movement struct {
	ID               uuid.UUID    `json:"id"`
	Seq              int64        `json:"seq"`
	ItemID           uuid.UUID    `json:"item_id"`
	ProjectID        *uuid.UUID   `json:"project_id,omitempty"`
	PurchaseOrderID  *uuid.UUID   `json:"purchase_order_id,omitempty"`
	ChallanID        *uuid.UUID   `json:"challan_id,omitempty"`
	Type             MovementType `json:"movement_type"`
	Quantity         int          `json:"quantity"`
	PreviousQuantity int          `json:"previous_quantity"`
	NewQuantity      int          `json:"new_quantity"`
	ConditionAfter   *Condition   `json:"condition_after,omitempty"`
	StatusOnly       bool         `json:"status_only"`
	Notes            string       `json:"notes,omitempty"`
	PerformedBy      string       `json:"performed_by"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Delta is the signed quantity change recorded by the entry.
func (m Movement) Delta() int {
	return m.NewQuantity - m.PreviousQuantity
}

// Consistent reports whether the entry obeys the delta rule of its type. Status-only rows
// must leave the quantity unchanged.
func (m Movement) Consistent() bool {
	if m.Quantity <= 0 {
		return false
	}
	if m.StatusOnly {
		return m.NewQuantity == m.PreviousQuantity
	}
	sign, err := m.Type.Sign()
	if err != nil {
		return false
	}
	return m.Delta() == sign*m.Quantity && m.NewQuantity >= 0
}

// MaintenanceRecord is opened when an item turns REPAIR_NEEDED or DAMAGED.
type MaintenanceRecord struct {
	ID        uuid.UUID         `json:"id"`
	ItemID    uuid.UUID         `json:"item_id"`
	Status    MaintenanceStatus `json:"status"`
	Notes     string            `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Result is what one engine invocation produced.
type Result struct {
	Movement    Movement           `json:"movement"`
	Item        Item               `json:"item"`
	Maintenance *MaintenanceRecord `json:"maintenance,omitempty"`
}

// MovementInput requests one quantity change.
type MovementInput struct {
	ItemID          uuid.UUID    `json:"item_id" validate:"required"`
	Type            MovementType `json:"movement_type" validate:"required"`
	Quantity        int          `json:"quantity" validate:"gt=0,lte=2147483647"`
	ProjectID       *uuid.UUID   `json:"project_id,omitempty"`
	PurchaseOrderID *uuid.UUID   `json:"-"`
	ChallanID       *uuid.UUID   `json:"-"`
	ConditionAfter  *Condition   `json:"condition_after,omitempty"`
	Notes           string       `json:"notes,omitempty" validate:"max=1000"`
	PerformedBy     string       `json:"-" validate:"required"`
	// CostUpdate replaces the item's cost in the same write when set.
	CostUpdate *decimal.Decimal `json:"-"`
}

// MarkerInput records a condition event as a ledger row without changing quantity.
type MarkerInput struct {
	ItemID         uuid.UUID    `validate:"required"`
	Type           MovementType `validate:"required"`
	Quantity       int          `validate:"gt=0,lte=2147483647"`
	ConditionAfter *Condition
	Notes          string `validate:"max=1000"`
	PerformedBy    string `validate:"required"`
}

// ManualInput records a purchase or sale outside of a purchase order.
type ManualInput struct {
	Type          MovementType     `json:"type" validate:"required,oneof=PURCHASE SALE"`
	ItemID        uuid.UUID        `json:"item_id" validate:"required"`
	Quantity      int              `json:"quantity" validate:"gt=0,lte=2147483647"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Vendor        string           `json:"vendor,omitempty" validate:"max=255"`
	InvoiceNumber string           `json:"invoice_number,omitempty" validate:"max=100"`
	Notes         string           `json:"notes,omitempty" validate:"max=1000"`
	PerformedBy   string           `json:"-" validate:"required"`
}

// CreateItemInput registers a new item with an optional opening quantity.
type CreateItemInput struct {
	CategoryID      uuid.UUID        `json:"category_id" validate:"required"`
	SubcategoryID   *uuid.UUID       `json:"subcategory_id,omitempty"`
	Name            string           `json:"name" validate:"required,max=255"`
	Description     string           `json:"description,omitempty" validate:"max=1000"`
	OpeningQuantity int              `json:"quantity_available" validate:"gte=0,lte=2147483647"`
	Condition       Condition        `json:"condition,omitempty"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
	Vendor          string           `json:"vendor,omitempty" validate:"max=255"`
	Remarks         string           `json:"remarks,omitempty" validate:"max=1000"`
	CurrentLocation string           `json:"current_location,omitempty" validate:"max=255"`
	PerformedBy     string           `json:"-" validate:"required"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	CategoryID *uuid.UUID
	Condition  Condition
	Search     string
	Limit      int
	Offset     int
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ItemID    *uuid.UUID
	ProjectID *uuid.UUID
	Type      MovementType
	Limit     int
	Offset    int
}

// LedgerCheck compares an item's stored quantity with its replayed ledger.
type LedgerCheck struct {
	ItemID   uuid.UUID   `json:"item_id"`
	ItemName string      `json:"item_name,omitempty"`
	Expected int         `json:"expected"`
	Actual   int         `json:"actual"`
	Entries  int         `json:"entries"`
	Broken   []uuid.UUID `json:"broken,omitempty"`
}

// Healthy reports whether stored quantity equals the ledger sum and every row is consistent.
func (c LedgerCheck) Healthy() bool {
	return c.Expected == c.Actual && c.Actual >= 0 && len(c.Broken) == 0
}
