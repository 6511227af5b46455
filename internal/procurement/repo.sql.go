package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/platform/db"
	"github.com/eventstock/stockledger/internal/shared"
)

// Repository persists purchase orders.
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
	return shared.WrapTx("procurement: tx", err)
}

const orderColumns = `id, po_number, vendor, order_date, expected_date, total_amount, notes, status, created_by, created_at`

const lineColumns = `id, purchase_order_id, item_id, ordered_quantity, received_quantity, unit_cost, notes`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.Vendor, &po.OrderDate, &po.ExpectedDate, &po.TotalAmount, &po.Notes,
		&po.Status, &po.CreatedBy, &po.CreatedAt)
	return po, err
}

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.PurchaseOrderID, &l.ItemID, &l.OrderedQuantity, &l.ReceivedQuantity, &l.UnitCost, &l.Notes)
	return l, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listLines(ctx context.Context, q querier, where string, arg any) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM purchase_order_items WHERE `+where+` ORDER BY position`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// NumberExists reports whether an order already uses number.
func (r *Repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE po_number=$1)`, number).Scan(&exists)
	return exists, err
}

// Get loads an order with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.NewNotFoundError("purchase order", id)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = listLines(ctx, r.pool, "purchase_order_id=$1", po.ID)
	return po, err
}

// List returns orders newest first with their lines.
func (r *Repository) List(ctx context.Context, filter Filter) ([]PurchaseOrder, int, error) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Vendor != "" {
		args = append(args, "%"+filter.Vendor+"%")
		conds = append(conds, fmt.Sprintf("vendor ILIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders%s ORDER BY order_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	orders := []PurchaseOrder{}
	ids := []uuid.UUID{}
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		orders = append(orders, po)
		ids = append(ids, po.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return orders, total, nil
	}
	lines, err := listLines(ctx, r.pool, "purchase_order_id = ANY($1)", ids)
	if err != nil {
		return nil, 0, err
	}
	byOrder := make(map[uuid.UUID][]Line, len(ids))
	for _, l := range lines {
		byOrder[l.PurchaseOrderID] = append(byOrder[l.PurchaseOrderID], l)
	}
	for i := range orders {
		orders[i].Lines = byOrder[orders[i].ID]
	}
	return orders, total, nil
}

func (r *txRepository) InsertOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		po.ID, po.Number, po.Vendor, po.OrderDate, po.ExpectedDate, po.TotalAmount, po.Notes, string(po.Status), po.CreatedBy, po.CreatedAt)
	if db.IsUniqueViolation(err) {
		return &shared.ConflictError{Entity: "purchase order", Key: po.Number, Message: "PO number already exists"}
	}
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, l Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_items (`+lineColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.PurchaseOrderID, l.ItemID, l.OrderedQuantity, l.ReceivedQuantity, l.UnitCost, l.Notes)
	if db.IsForeignKeyViolation(err) {
		return shared.NewNotFoundError("item", l.ItemID)
	}
	return err
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.NewNotFoundError("purchase order", id)
	}
	return po, err
}

func (r *txRepository) GetLineForUpdate(ctx context.Context, poID, itemID uuid.UUID) (Line, error) {
	l, err := scanLine(r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM purchase_order_items WHERE purchase_order_id=$1 AND item_id=$2 FOR UPDATE`, poID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, &shared.NotFoundError{Entity: "purchase order item", ID: itemID.String()}
	}
	return l, err
}

func (r *txRepository) UpdateLineReceived(ctx context.Context, l Line) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET received_quantity=$2 WHERE id=$1`, l.ID, l.ReceivedQuantity)
	return err
}

func (r *txRepository) ListLines(ctx context.Context, poID uuid.UUID) ([]Line, error) {
	return listLines(ctx, r.tx, "purchase_order_id=$1", poID)
}

func (r *txRepository) UpdateStatus(ctx context.Context, poID uuid.UUID, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, poID, string(status))
	return err
}
