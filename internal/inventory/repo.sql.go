package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventstock/stockledger/internal/platform/db"
	"github.com/eventstock/stockledger/internal/shared"
)

// Repository persists items and the movement ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction. Document repositories embed it.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a read-committed transaction. Store failures are
// reported as shared.TransactionError; domain errors pass through.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTxOptions(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
	return shared.WrapTx("inventory: tx", err)
}

const itemColumns = `id, category_id, subcategory_id, name, description, quantity_available, condition, cost, vendor, remarks, current_location, created_at, updated_at`

const movementColumns = `id, seq, item_id, project_id, purchase_order_id, challan_id, movement_type, quantity, previous_quantity, new_quantity, condition_after, status_only, notes, performed_by, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.CategoryID, &item.SubcategoryID, &item.Name, &item.Description, &item.QuantityAvailable,
		&item.Condition, &item.Cost, &item.Vendor, &item.Remarks, &item.CurrentLocation, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Seq, &m.ItemID, &m.ProjectID, &m.PurchaseOrderID, &m.ChallanID, &m.Type, &m.Quantity,
		&m.PreviousQuantity, &m.NewQuantity, &m.ConditionAfter, &m.StatusOnly, &m.Notes, &m.PerformedBy, &m.CreatedAt)
	return m, err
}

// GetItem loads one item without locking.
func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.NewNotFoundError("item", id)
	}
	return item, err
}

// ListItems returns a page of items and the total count.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	var where []string
	var args []any
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if filter.Condition != "" {
		args = append(args, string(filter.Condition))
		where = append(where, fmt.Sprintf("condition=$%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM items%s ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d`, itemColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// ListMovements returns ledger entries newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	var where []string
	var args []any
	if filter.ItemID != nil {
		args = append(args, *filter.ItemID)
		where = append(where, fmt.Sprintf("item_id=$%d", len(args)))
	}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		where = append(where, fmt.Sprintf("project_id=$%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("movement_type=$%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM stock_movements%s ORDER BY seq DESC LIMIT $%d OFFSET $%d`, movementColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	movements, err := collectMovements(rows)
	return movements, total, err
}

// ItemMovements returns the full ledger of one item in creation order.
func (r *Repository) ItemMovements(ctx context.Context, itemID uuid.UUID) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE item_id=$1 ORDER BY seq ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

// DriftedItems aggregates every item's ledger and returns those that disagree with the
// stored quantity or contain rows breaking the delta rule.
func (r *Repository) DriftedItems(ctx context.Context) ([]LedgerCheck, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.name, i.quantity_available,
	COALESCE(SUM(m.new_quantity - m.previous_quantity), 0)::int AS expected,
	COUNT(m.id)::int AS entries,
	COALESCE(array_agg(m.id) FILTER (WHERE
		(m.status_only AND m.new_quantity <> m.previous_quantity) OR
		(NOT m.status_only AND m.movement_type IN ('INWARD','RETURN','PURCHASE') AND m.new_quantity - m.previous_quantity <> m.quantity) OR
		(NOT m.status_only AND m.movement_type IN ('OUTWARD','SALE') AND m.previous_quantity - m.new_quantity <> m.quantity)
	), '{}') AS broken
FROM items i
LEFT JOIN stock_movements m ON m.item_id = i.id
GROUP BY i.id, i.name, i.quantity_available
HAVING i.quantity_available <> COALESCE(SUM(m.new_quantity - m.previous_quantity), 0)
	OR bool_or(
		(m.status_only AND m.new_quantity <> m.previous_quantity) OR
		(NOT m.status_only AND m.movement_type IN ('INWARD','RETURN','PURCHASE') AND m.new_quantity - m.previous_quantity <> m.quantity) OR
		(NOT m.status_only AND m.movement_type IN ('OUTWARD','SALE') AND m.previous_quantity - m.new_quantity <> m.quantity)
	)
ORDER BY i.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	checks := []LedgerCheck{}
	for rows.Next() {
		var c LedgerCheck
		if err := rows.Scan(&c.ItemID, &c.ItemName, &c.Actual, &c.Expected, &c.Entries, &c.Broken); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.NewNotFoundError("item", id)
	}
	return item, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO items (`+itemColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		item.ID, item.CategoryID, item.SubcategoryID, item.Name, item.Description, item.QuantityAvailable, string(item.Condition),
		item.Cost, item.Vendor, item.Remarks, item.CurrentLocation, item.CreatedAt, item.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return shared.NewNotFoundError("category", item.CategoryID)
	}
	return err
}

func (r *txRepository) UpdateItemStock(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET quantity_available=$2, condition=$3, cost=$4, updated_at=$5 WHERE id=$1`,
		item.ID, item.QuantityAvailable, string(item.Condition), item.Cost, item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("inventory: update item %s: %d rows affected", item.ID, tag.RowsAffected())
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	var condition *string
	if m.ConditionAfter != nil {
		c := string(*m.ConditionAfter)
		condition = &c
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (id, item_id, project_id, purchase_order_id, challan_id, movement_type, quantity, previous_quantity, new_quantity, condition_after, status_only, notes, performed_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING seq`,
		m.ID, m.ItemID, m.ProjectID, m.PurchaseOrderID, m.ChallanID, string(m.Type), m.Quantity, m.PreviousQuantity, m.NewQuantity,
		condition, m.StatusOnly, m.Notes, m.PerformedBy, m.CreatedAt).Scan(&m.Seq)
	if db.IsForeignKeyViolation(err) && m.ProjectID != nil && db.ConstraintName(err) == "stock_movements_project_id_fkey" {
		return Movement{}, shared.NewNotFoundError("project", *m.ProjectID)
	}
	return m, err
}

func (r *txRepository) InsertMaintenanceRecord(ctx context.Context, rec MaintenanceRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO maintenance_records (id, item_id, status, notes, created_at) VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.ItemID, string(rec.Status), rec.Notes, rec.CreatedAt)
	return err
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 200
	}
	return limit
}
