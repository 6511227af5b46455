package procurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/shared"
)

// Status is the receiving state of a purchase order.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusFullyReceived     Status = "FULLY_RECEIVED"
)

// Valid reports whether s is part of the vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartiallyReceived, StatusFullyReceived:
		return true
	}
	return false
}

// DeriveStatus recomputes the order status from its lines. Orders whose lines are all
// complete are FULLY_RECEIVED, orders with any receipt are PARTIALLY_RECEIVED, and anything
// else keeps current.
func DeriveStatus(current Status, lines []Line) Status {
	if len(lines) == 0 {
		return current
	}
	complete, started := true, false
	for _, l := range lines {
		if l.ReceivedQuantity < l.OrderedQuantity {
			complete = false
		}
		if l.ReceivedQuantity > 0 {
			started = true
		}
	}
	switch {
	case complete:
		return StatusFullyReceived
	case started:
		return StatusPartiallyReceived
	}
	return current
}

// PurchaseOrder is a vendor order whose deliveries feed the ledger.
type PurchaseOrder struct {
	ID           uuid.UUID        `json:"id"`
	Number       string           `json:"po_number"`
	Vendor       string           `json:"vendor"`
	OrderDate    time.Time        `json:"order_date"`
	ExpectedDate *time.Time       `json:"expected_date,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Status       Status           `json:"status"`
	CreatedBy    string           `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	Lines        []Line           `json:"items"`
}

// Line is one ordered item. ReceivedQuantity never exceeds OrderedQuantity.
type Line struct {
	ID               uuid.UUID        `json:"id"`
	PurchaseOrderID  uuid.UUID        `json:"purchase_order_id"`
	ItemID           uuid.UUID        `json:"item_id"`
	OrderedQuantity  int              `json:"ordered_quantity"`
	ReceivedQuantity int              `json:"received_quantity"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	Notes            string           `json:"notes,omitempty"`
}

// Remaining is the quantity still expected.
func (l Line) Remaining() int {
	return l.OrderedQuantity - l.ReceivedQuantity
}

// LineInput orders one item.
type LineInput struct {
	ItemID          uuid.UUID        `json:"item_id" validate:"required"`
	OrderedQuantity int              `json:"ordered_quantity" validate:"gt=0,lte=2147483647"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	Notes           string           `json:"notes,omitempty" validate:"max=500"`
}

// CreateInput registers a purchase order.
type CreateInput struct {
	Number       string           `json:"po_number" validate:"required,max=50"`
	Vendor       string           `json:"vendor" validate:"required,max=255"`
	OrderDate    time.Time        `json:"order_date" validate:"required"`
	ExpectedDate *time.Time       `json:"expected_date,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	Notes        string           `json:"notes,omitempty" validate:"max=1000"`
	Lines        []LineInput      `json:"items" validate:"dive"`
	PerformedBy  string           `json:"-" validate:"required"`
}

// ReceiveInput books one delivery against one order line.
type ReceiveInput struct {
	PurchaseOrderID uuid.UUID `json:"-" validate:"required"`
	ItemID          uuid.UUID `json:"item_id" validate:"required"`
	Quantity        int       `json:"quantity_received" validate:"gt=0,lte=2147483647"`
	Notes           string    `json:"notes,omitempty" validate:"max=1000"`
	PerformedBy     string    `json:"-" validate:"required"`
}

// ReceiptResult is what ReceiveDelivery produced.
type ReceiptResult struct {
	Line     Line               `json:"po_item"`
	Movement inventory.Movement `json:"movement"`
	Status   Status             `json:"new_status"`
}

// Filter narrows purchase order listings.
type Filter struct {
	Status Status
	Vendor string
	Limit  int
	Offset int
}

// OverReceiptError rejects a delivery larger than what is still outstanding.
type OverReceiptError struct {
	Requested int
	Remaining int
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("cannot receive %d: only %d remaining", e.Requested, e.Remaining)
}

// Is makes OverReceiptError a validation failure.
func (e *OverReceiptError) Is(target error) bool { return target == shared.ErrValidation }
