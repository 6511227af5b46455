package challan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/platform/db"
	"github.com/eventstock/stockledger/internal/shared"
)

// Repository persists challans in PostgreSQL.
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
	return shared.WrapTx("challan: tx", err)
}

const challanColumns = `id, number, project_id, created_by, issue_date, expected_return_date, remarks, truck_number, driver_name, driver_phone, direction`

func scanChallan(row pgx.Row) (Challan, error) {
	var c Challan
	err := row.Scan(&c.ID, &c.Number, &c.ProjectID, &c.CreatedBy, &c.IssueDate, &c.ExpectedReturnDate, &c.Remarks,
		&c.TruckNumber, &c.DriverName, &c.DriverPhone, &c.Direction)
	return c, err
}

// Get loads a challan and its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Challan, error) {
	c, err := scanChallan(r.pool.QueryRow(ctx, `SELECT `+challanColumns+` FROM challans WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Challan{}, shared.NewNotFoundError("challan", id)
	}
	if err != nil {
		return Challan{}, err
	}
	lines, err := r.lines(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return Challan{}, err
	}
	c.Lines = lines[c.ID]
	return c, nil
}

// List returns challans newest first with their lines.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Challan, int, error) {
	where, args := "", []any{}
	if filter.ProjectID != nil {
		where = " WHERE project_id=$1"
		args = append(args, *filter.ProjectID)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM challans`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM challans%s ORDER BY issue_date DESC, number DESC LIMIT $%d OFFSET $%d`,
		challanColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	challans := []Challan{}
	ids := []uuid.UUID{}
	for rows.Next() {
		c, err := scanChallan(rows)
		if err != nil {
			return nil, 0, err
		}
		challans = append(challans, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	lines, err := r.lines(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range challans {
		challans[i].Lines = lines[challans[i].ID]
	}
	return challans, total, nil
}

func (r *Repository) lines(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Line, error) {
	out := make(map[uuid.UUID][]Line, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, challan_id, item_id, quantity, notes, movement_id
FROM challan_lines WHERE challan_id = ANY($1) ORDER BY position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ChallanID, &l.ItemID, &l.Quantity, &l.Notes, &l.MovementID); err != nil {
			return nil, err
		}
		out[l.ChallanID] = append(out[l.ChallanID], l)
	}
	return out, rows.Err()
}

func (r *txRepository) ProjectExists(ctx context.Context, id uuid.UUID) error {
	var found uuid.UUID
	err := r.tx.QueryRow(ctx, `SELECT id FROM projects WHERE id=$1 FOR SHARE`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NewNotFoundError("project", id)
	}
	return err
}

func (r *txRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO challan_sequences (year, last_seq) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_seq = challan_sequences.last_seq + 1
RETURNING last_seq`, year).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertChallan(ctx context.Context, c Challan) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO challans (`+challanColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Number, c.ProjectID, c.CreatedBy, c.IssueDate, c.ExpectedReturnDate, c.Remarks,
		c.TruckNumber, c.DriverName, c.DriverPhone, string(c.Direction))
	if db.IsUniqueViolation(err) {
		return &shared.ConflictError{Entity: "challan", Key: c.Number}
	}
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, l Line) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO challan_lines (id, challan_id, item_id, quantity, notes, movement_id) VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.ChallanID, l.ItemID, l.Quantity, l.Notes, l.MovementID)
	return err
}
