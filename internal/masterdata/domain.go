package masterdata

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category groups items. Names are unique.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectStatus tracks the lifecycle of an event project.
type ProjectStatus string

const (
	ProjectPlanned   ProjectStatus = "PLANNED"
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectCancelled ProjectStatus = "CANCELLED"
)

// Valid reports whether s is part of the vocabulary.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanned, ProjectActive, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// Project is an event that stock is dispatched to.
type Project struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Location  string        `json:"location"`
	StartDate time.Time     `json:"start_date"`
	EndDate   *time.Time    `json:"end_date,omitempty"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// CategoryInput creates a category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description,omitempty" validate:"max=1000"`
}

// ProjectInput creates a project.
type ProjectInput struct {
	Name      string        `json:"name" validate:"required,max=255"`
	Type      string        `json:"type,omitempty" validate:"max=50"`
	Location  string        `json:"location" validate:"required,max=500"`
	StartDate time.Time     `json:"start_date" validate:"required"`
	EndDate   *time.Time    `json:"end_date,omitempty"`
	Status    ProjectStatus `json:"status,omitempty"`
}

// ListFilters represents list filters shared by master data listings.
type ListFilters struct {
	Search string
	Status ProjectStatus
	Limit  int
	Offset int
}

// Repository persists master data.
type Repository interface {
	ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	ListProjects(ctx context.Context, filters ListFilters) ([]Project, int, error)
	GetProject(ctx context.Context, id uuid.UUID) (Project, error)
	CreateProject(ctx context.Context, project Project) (Project, error)
}

// Service exposes master data business logic.
type Service interface {
	ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error)
	CreateCategory(ctx context.Context, input CategoryInput) (Category, error)
	ListProjects(ctx context.Context, filters ListFilters) ([]Project, int, error)
	GetProject(ctx context.Context, id uuid.UUID) (Project, error)
	CreateProject(ctx context.Context, input ProjectInput) (Project, error)
}
