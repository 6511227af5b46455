package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventstock/stockledger/internal/inventory"
)

// CategoryTotal aggregates items of one category.
type CategoryTotal struct {
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Items        int             `json:"items"`
	Units        int64           `json:"units"`
	StockValue   decimal.Decimal `json:"stock_value"`
}

// Summary is a point-in-time view of stock on hand.
type Summary struct {
	Items       int                         `json:"items"`
	Units       int64                       `json:"units"`
	OutOfStock  int                         `json:"out_of_stock"`
	StockValue  decimal.Decimal             `json:"stock_value"`
	ByCondition map[inventory.Condition]int `json:"by_condition"`
	ByCategory  []CategoryTotal             `json:"by_category"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// Source computes a fresh summary.
type Source interface {
	StockSummary(ctx context.Context) (Summary, error)
}

// Service serves cached stock summaries and invalidates them whenever a movement commits.
type Service struct {
	source Source
	cache  *Cache
	logger *slog.Logger
}

// NewService wires a Source with a Cache helper.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

// Summary returns the stock summary, from cache when the ledger has not moved since it was built.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "summary")
	if errors.Is(err, ErrCacheUnavailable) {
		s.logger.Warn("reporting: serving uncached summary", slog.Any("error", err))
		return s.load(ctx)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: build key: %w", err)
	}
	var out Summary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.source.StockSummary(ctx)
	})
	if errors.Is(err, ErrCacheUnavailable) {
		s.logger.Warn("reporting: serving uncached summary", slog.Any("error", err))
		return s.load(ctx)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: summary: %w", err)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context) (Summary, error) {
	out, err := s.source.StockSummary(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: summary: %w", err)
	}
	return out, nil
}

// MovementCommitted bumps the cache version.
func (s *Service) MovementCommitted(ctx context.Context, m inventory.Movement) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("reporting: bump cache", slog.Any("error", err), slog.String("movement_id", m.ID.String()))
	}
}

// MovementRejected is a no-op; rejected movements leave stock unchanged.
func (s *Service) MovementRejected(context.Context, inventory.MovementType, error) {}
