package maintenance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventstock/stockledger/internal/inventory"
)

// DisposalMethod is how a scrapped unit left the business.
type DisposalMethod string

const (
	DisposalSold      DisposalMethod = "SOLD"
	DisposalRecycled  DisposalMethod = "RECYCLED"
	DisposalDiscarded DisposalMethod = "DISCARDED"
	DisposalDonated   DisposalMethod = "DONATED"
	DisposalAuctioned DisposalMethod = "AUCTIONED"
)

// Valid reports whether m is part of the vocabulary.
func (m DisposalMethod) Valid() bool {
	switch m {
	case DisposalSold, DisposalRecycled, DisposalDiscarded, DisposalDonated, DisposalAuctioned:
		return true
	}
	return false
}

// RepairStatus tracks a repair queue entry.
type RepairStatus string

const (
	RepairPending   RepairStatus = "PENDING"
	RepairInRepair  RepairStatus = "IN_REPAIR"
	RepairCompleted RepairStatus = "COMPLETED"
	RepairScrapped  RepairStatus = "SCRAPPED"
)

// Valid reports whether s is part of the vocabulary.
func (s RepairStatus) Valid() bool {
	switch s {
	case RepairPending, RepairInRepair, RepairCompleted, RepairScrapped:
		return true
	}
	return false
}

// ScrapStatus filters scrap listings.
type ScrapStatus string

const (
	ScrapAll      ScrapStatus = "ALL"
	ScrapPending  ScrapStatus = "PENDING"
	ScrapDisposed ScrapStatus = "DISPOSED"
)

// Valid reports whether s is part of the vocabulary.
func (s ScrapStatus) Valid() bool {
	switch s {
	case ScrapAll, ScrapPending, ScrapDisposed:
		return true
	}
	return false
}

// ScrapRecord tracks one unit written off. It is pending until DisposalDate is set.
type ScrapRecord struct {
	ID             uuid.UUID        `json:"id"`
	ItemID         uuid.UUID        `json:"item_id"`
	Reason         string           `json:"reason"`
	DisposalMethod *DisposalMethod  `json:"disposal_method,omitempty"`
	DisposalDate   *time.Time       `json:"disposal_date,omitempty"`
	ValueRealized  *decimal.Decimal `json:"value_realized,omitempty"`
	DisposalNotes  string           `json:"disposal_notes,omitempty"`
	ApprovedBy     string           `json:"approved_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Disposed reports whether the record has been disposed.
func (r ScrapRecord) Disposed() bool {
	return r.DisposalDate != nil
}

// RepairEntry is a unit sent for repair.
type RepairEntry struct {
	ID             uuid.UUID        `json:"id"`
	ItemID         uuid.UUID        `json:"item_id"`
	AssignedTo     string           `json:"assigned_to,omitempty"`
	TechnicianName string           `json:"technician_name,omitempty"`
	VendorName     string           `json:"vendor_name,omitempty"`
	RepairCost     *decimal.Decimal `json:"repair_cost,omitempty"`
	EstimatedDays  *int             `json:"estimated_days,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Status         RepairStatus     `json:"status"`
	StartDate      time.Time        `json:"start_date"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ScrapInput writes off one unit of an item.
type ScrapInput struct {
	ItemID        uuid.UUID `json:"item_id" validate:"required"`
	Reason        string    `json:"reason" validate:"required,max=500"`
	ApprovedBy    string    `json:"approved_by,omitempty" validate:"max=100"`
	DisposalNotes string    `json:"disposal_notes,omitempty" validate:"max=1000"`
	PerformedBy   string    `json:"-" validate:"required"`
}

// DisposeInput closes a pending scrap record.
type DisposeInput struct {
	ScrapID       uuid.UUID        `json:"-" validate:"required"`
	Method        DisposalMethod   `json:"disposal_method" validate:"required"`
	ValueRealized *decimal.Decimal `json:"value_realized,omitempty"`
	DisposalNotes string           `json:"disposal_notes,omitempty" validate:"max=1000"`
	PerformedBy   string           `json:"-" validate:"required"`
}

// RepairInput sends one unit for repair.
type RepairInput struct {
	ItemID         uuid.UUID        `json:"item_id" validate:"required"`
	AssignedTo     string           `json:"assigned_to_user_id,omitempty" validate:"max=100"`
	TechnicianName string           `json:"technician_name,omitempty" validate:"max=100"`
	VendorName     string           `json:"vendor_name,omitempty" validate:"max=255"`
	RepairCost     *decimal.Decimal `json:"repair_cost,omitempty"`
	EstimatedDays  *int             `json:"estimated_days,omitempty" validate:"omitempty,gt=0"`
	Notes          string           `json:"notes,omitempty" validate:"max=1000"`
	PerformedBy    string           `json:"-" validate:"required"`
}

// ScrapResult is what CreateScrap produced.
type ScrapResult struct {
	Scrap    ScrapRecord        `json:"scrap"`
	Movement inventory.Movement `json:"movement"`
	Item     inventory.Item     `json:"item"`
}

// RepairResult is what CreateRepair produced.
type RepairResult struct {
	Repair   RepairEntry        `json:"repair"`
	Movement inventory.Movement `json:"movement"`
}

// ScrapSummary aggregates a scrap listing.
type ScrapSummary struct {
	Total              int             `json:"total"`
	Pending            int             `json:"pending"`
	Disposed           int             `json:"disposed"`
	TotalValueRealized decimal.Decimal `json:"total_value_realized"`
}

// ScrapList is a scrap listing with its summary.
type ScrapList struct {
	Records []ScrapRecord `json:"scrap_records"`
	Summary ScrapSummary  `json:"summary"`
}

// RepairSummary aggregates a repair listing.
type RepairSummary struct {
	Total     int             `json:"total"`
	Pending   int             `json:"pending"`
	InRepair  int             `json:"in_repair"`
	Completed int             `json:"completed"`
	Scrapped  int             `json:"scrapped"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// RepairList is a repair listing with its summary.
type RepairList struct {
	Entries []RepairEntry `json:"repairs"`
	Summary RepairSummary `json:"summary"`
}

// SummarizeScrap counts records and totals the value realized.
func SummarizeScrap(records []ScrapRecord) ScrapSummary {
	summary := ScrapSummary{Total: len(records), TotalValueRealized: decimal.Zero}
	for _, r := range records {
		if r.Disposed() {
			summary.Disposed++
		} else {
			summary.Pending++
		}
		if r.ValueRealized != nil {
			summary.TotalValueRealized = summary.TotalValueRealized.Add(*r.ValueRealized)
		}
	}
	return summary
}

// SummarizeRepairs counts entries per status and totals the repair cost.
func SummarizeRepairs(entries []RepairEntry) RepairSummary {
	summary := RepairSummary{Total: len(entries), TotalCost: decimal.Zero}
	for _, e := range entries {
		switch e.Status {
		case RepairPending:
			summary.Pending++
		case RepairInRepair:
			summary.InRepair++
		case RepairCompleted:
			summary.Completed++
		case RepairScrapped:
			summary.Scrapped++
		}
		if e.RepairCost != nil {
			summary.TotalCost = summary.TotalCost.Add(*e.RepairCost)
		}
	}
	return summary
}
