package challan

import (
	"time"

	"github.com/google/uuid"
)

// Direction records which way the truck travels. The ledger lines of a challan are always
// OUTWARD allocations regardless of direction.
type Direction string

const (
	DirectionOutward Direction = "OUTWARD"
	DirectionInward  Direction = "INWARD"
)

// Valid reports whether d is part of the vocabulary.
func (d Direction) Valid() bool {
	switch d {
	case DirectionOutward, DirectionInward:
		return true
	}
	return false
}

// Challan is a dispatch document allocating stock to a project.
type Challan struct {
	ID                 uuid.UUID  `json:"id"`
	Number             string     `json:"number"`
	ProjectID          uuid.UUID  `json:"project_id"`
	CreatedBy          string     `json:"created_by"`
	IssueDate          time.Time  `json:"issue_date"`
	ExpectedReturnDate *time.Time `json:"expected_return_date,omitempty"`
	Remarks            string     `json:"remarks,omitempty"`
	TruckNumber        string     `json:"truck_number,omitempty"`
	DriverName         string     `json:"driver_name,omitempty"`
	DriverPhone        string     `json:"driver_phone,omitempty"`
	Direction          Direction  `json:"direction"`
	Lines              []Line     `json:"lines"`
}

// Line is one item allocated by a challan, linked to the movement that booked it.
type Line struct {
	ID         uuid.UUID `json:"id"`
	ChallanID  uuid.UUID `json:"challan_id"`
	ItemID     uuid.UUID `json:"item_id"`
	Quantity   int       `json:"quantity"`
	Notes      string    `json:"notes,omitempty"`
	MovementID uuid.UUID `json:"movement_id"`
}

// LineInput requests one allocation.
type LineInput struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"gt=0,lte=2147483647"`
	Notes    string    `json:"notes,omitempty" validate:"max=500"`
}

// CreateInput requests a new challan.
type CreateInput struct {
	ProjectID          uuid.UUID   `json:"project_id" validate:"required"`
	Lines              []LineInput `json:"items" validate:"min=1,dive"`
	ExpectedReturnDate *time.Time  `json:"expected_return_date,omitempty"`
	Remarks            string      `json:"remarks,omitempty" validate:"max=1000"`
	TruckNumber        string      `json:"truck_number,omitempty" validate:"max=50"`
	DriverName         string      `json:"driver_name,omitempty" validate:"max=100"`
	DriverPhone        string      `json:"driver_phone,omitempty" validate:"max=20"`
	Direction          Direction   `json:"movement_direction,omitempty"`
	PerformedBy        string      `json:"-" validate:"required"`
	IdempotencyKey     string      `json:"-" validate:"max=128"`
}

// Filter narrows challan listings.
type Filter struct {
	ProjectID *uuid.UUID
	Limit     int
	Offset    int
}
