package masterdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventstock/stockledger/internal/shared"
)

// service implements Service interface
type service struct {
	repo  Repository
	clock func() time.Time
}

// NewService creates a new master data service
func NewService(repo Repository) Service {
	return &service{repo: repo, clock: func() time.Time { return time.Now().UTC() }}
}

func (s *service) ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error) {
	return s.repo.ListCategories(ctx, filters)
}

func (s *service) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.Validate(input); err != nil {
		return Category{}, err
	}
	return s.repo.CreateCategory(ctx, Category{
		ID:          uuid.New(),
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   s.clock(),
	})
}

func (s *service) ListProjects(ctx context.Context, filters ListFilters) ([]Project, int, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, 0, shared.NewValidationError("status", fmt.Sprintf("unknown project status %q", filters.Status))
	}
	return s.repo.ListProjects(ctx, filters)
}

func (s *service) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	if id == uuid.Nil {
		return Project{}, shared.NewValidationError("id", "is required")
	}
	return s.repo.GetProject(ctx, id)
}

func (s *service) CreateProject(ctx context.Context, input ProjectInput) (Project, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Location = strings.TrimSpace(input.Location)
	if input.Type == "" {
		input.Type = "OTHER"
	}
	if input.Status == "" {
		input.Status = ProjectPlanned
	}
	if err := shared.Validate(input); err != nil {
		return Project{}, err
	}
	if !input.Status.Valid() {
		return Project{}, shared.NewValidationError("status", fmt.Sprintf("unknown project status %q", input.Status))
	}
	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return Project{}, shared.NewValidationError("end_date", "must not be before start_date")
	}
	return s.repo.CreateProject(ctx, Project{
		ID:        uuid.New(),
		Name:      input.Name,
		Type:      strings.ToUpper(input.Type),
		Location:  input.Location,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Status:    input.Status,
		CreatedAt: s.clock(),
	})
}
