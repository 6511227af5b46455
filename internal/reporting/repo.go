package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventstock/stockledger/internal/inventory"
)

// Repository computes summaries from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockSummary aggregates the item registry.
func (r *Repository) StockSummary(ctx context.Context) (Summary, error) {
	out := Summary{ByCondition: map[inventory.Condition]int{}, ByCategory: []CategoryTotal{}, GeneratedAt: time.Now().UTC()}

	rows, err := r.pool.Query(ctx, `SELECT c.id::text, c.name, COUNT(i.id), COALESCE(SUM(i.quantity_available),0)::bigint,
			COUNT(i.id) FILTER (WHERE i.quantity_available = 0),
			COALESCE(SUM(i.quantity_available * i.cost),0)::numeric
		FROM categories c JOIN items i ON i.category_id = c.id
		GROUP BY c.id, c.name ORDER BY c.name`)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ct CategoryTotal
		var outOfStock int
		if err := rows.Scan(&ct.CategoryID, &ct.CategoryName, &ct.Items, &ct.Units, &outOfStock, &ct.StockValue); err != nil {
			return Summary{}, err
		}
		out.Items += ct.Items
		out.Units += ct.Units
		out.OutOfStock += outOfStock
		out.StockValue = out.StockValue.Add(ct.StockValue)
		out.ByCategory = append(out.ByCategory, ct)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	condRows, err := r.pool.Query(ctx, `SELECT condition, COUNT(*) FROM items GROUP BY condition`)
	if err != nil {
		return Summary{}, err
	}
	defer condRows.Close()
	for condRows.Next() {
		var cond string
		var n int
		if err := condRows.Scan(&cond, &n); err != nil {
			return Summary{}, err
		}
		out.ByCondition[inventory.Condition(cond)] = n
	}
	return out, condRows.Err()
}
