package maintenance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/platform/db"
	"github.com/eventstock/stockledger/internal/shared"
)

// Repository persists scrap records and repair entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx runs fn inside one read-committed transaction shared with the ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTxOptions(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
	return shared.WrapTx("maintenance: tx", err)
}

const scrapColumns = `id, item_id, reason, disposal_method, disposal_date, value_realized, disposal_notes, approved_by, created_at`

const repairColumns = `id, item_id, assigned_to, technician_name, vendor_name, repair_cost, estimated_days, notes, status, start_date, created_at`

func scanScrap(row pgx.Row) (ScrapRecord, error) {
	var rec ScrapRecord
	var method *string
	err := row.Scan(&rec.ID, &rec.ItemID, &rec.Reason, &method, &rec.DisposalDate, &rec.ValueRealized,
		&rec.DisposalNotes, &rec.ApprovedBy, &rec.CreatedAt)
	if method != nil {
		m := DisposalMethod(*method)
		rec.DisposalMethod = &m
	}
	return rec, err
}

func scanRepair(row pgx.Row) (RepairEntry, error) {
	var e RepairEntry
	var status string
	err := row.Scan(&e.ID, &e.ItemID, &e.AssignedTo, &e.TechnicianName, &e.VendorName, &e.RepairCost,
		&e.EstimatedDays, &e.Notes, &status, &e.StartDate, &e.CreatedAt)
	e.Status = RepairStatus(status)
	return e, err
}

// ListScrap returns scrap records newest first.
func (r *Repository) ListScrap(ctx context.Context, status ScrapStatus) ([]ScrapRecord, error) {
	query := `SELECT ` + scrapColumns + ` FROM scrap_records`
	switch status {
	case ScrapPending:
		query += ` WHERE disposal_date IS NULL`
	case ScrapDisposed:
		query += ` WHERE disposal_date IS NOT NULL`
	case ScrapAll:
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ScrapRecord{}
	for rows.Next() {
		rec, err := scanScrap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRepairs returns repair entries newest first. An empty status lists all.
func (r *Repository) ListRepairs(ctx context.Context, status RepairStatus) ([]RepairEntry, error) {
	query := `SELECT ` + repairColumns + ` FROM repair_entries`
	var args []any
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RepairEntry{}
	for rows.Next() {
		e, err := scanRepair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListMaintenance returns maintenance records newest first. An empty status lists all.
func (r *Repository) ListMaintenance(ctx context.Context, status inventory.MaintenanceStatus) ([]inventory.MaintenanceRecord, error) {
	query := `SELECT id, item_id, status, notes, created_at FROM maintenance_records`
	var args []any
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.MaintenanceRecord{}
	for rows.Next() {
		var rec inventory.MaintenanceRecord
		var s string
		if err := rows.Scan(&rec.ID, &rec.ItemID, &s, &rec.Notes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = inventory.MaintenanceStatus(s)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertScrap(ctx context.Context, rec ScrapRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO scrap_records (id, item_id, reason, disposal_notes, approved_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.ItemID, rec.Reason, rec.DisposalNotes, rec.ApprovedBy, rec.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return shared.NewNotFoundError("item", rec.ItemID)
	}
	return err
}

func (r *txRepository) GetScrapForUpdate(ctx context.Context, id uuid.UUID) (ScrapRecord, error) {
	rec, err := scanScrap(r.tx.QueryRow(ctx, `SELECT `+scrapColumns+` FROM scrap_records WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ScrapRecord{}, shared.NewNotFoundError("scrap record", id)
	}
	return rec, err
}

func (r *txRepository) UpdateScrapDisposal(ctx context.Context, rec ScrapRecord) error {
	var method *string
	if rec.DisposalMethod != nil {
		m := string(*rec.DisposalMethod)
		method = &m
	}
	tag, err := r.tx.Exec(ctx, `UPDATE scrap_records SET disposal_method=$2, disposal_date=$3, value_realized=$4, disposal_notes=$5
		WHERE id=$1`, rec.ID, method, rec.DisposalDate, rec.ValueRealized, rec.DisposalNotes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("scrap record", rec.ID)
	}
	return nil
}

func (r *txRepository) InsertRepair(ctx context.Context, e RepairEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO repair_entries (`+repairColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.ItemID, e.AssignedTo, e.TechnicianName, e.VendorName, e.RepairCost, e.EstimatedDays, e.Notes,
		string(e.Status), e.StartDate, e.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return shared.NewNotFoundError("item", e.ItemID)
	}
	return err
}
