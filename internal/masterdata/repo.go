package masterdata

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

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func (r *repo) ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error) {
	where, args := "", []any{}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = " WHERE name ILIKE $1"
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM categories`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit(filters.Limit), filters.Offset)
	query := fmt.Sprintf(`SELECT id, name, description, created_at FROM categories%s ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		categories = append(categories, c)
	}
	return categories, total, rows.Err()
}

func (r *repo) CreateCategory(ctx context.Context, category Category) (Category, error) {
	query := `INSERT INTO categories (id, name, description, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, category.ID, category.Name, category.Description, category.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Category{}, &shared.ConflictError{Entity: "category", Key: category.Name}
	}
	return category, err
}

const projectColumns = `id, name, type, location, start_date, end_date, status, created_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Location, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt)
	return p, err
}

func (r *repo) ListProjects(ctx context.Context, filters ListFilters) ([]Project, int, error) {
	var conds []string
	args := []any{}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit(filters.Limit), filters.Offset)
	query := fmt.Sprintf(`SELECT %s FROM projects%s ORDER BY start_date DESC LIMIT $%d OFFSET $%d`, projectColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}

func (r *repo) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, shared.NewNotFoundError("project", id)
	}
	return p, err
}

func (r *repo) CreateProject(ctx context.Context, project Project) (Project, error) {
	query := `INSERT INTO projects (` + projectColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query, project.ID, project.Name, project.Type, project.Location, project.StartDate,
		project.EndDate, string(project.Status), project.CreatedAt)
	return project, err
}

func limit(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}
