package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventstock/stockledger/internal/inventory"
	"github.com/eventstock/stockledger/internal/shared"
)

// LedgerMetrics counts committed movements, stock rejections and challans.
type LedgerMetrics struct {
	movements  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	challans   prometheus.Counter
}

// NewLedgerMetrics registers the ledger collectors.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_movements_total",
		Help: "Committed ledger movements by type.",
	}, []string{"type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_stock_rejections_total",
		Help: "Movements rejected for insufficient stock, by type.",
	}, []string{"type"})
	challans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_challans_total",
		Help: "Committed challans.",
	})
	registerer.MustRegister(movements, rejections, challans)
	return &LedgerMetrics{movements: movements, rejections: rejections, challans: challans}
}

// MovementCommitted implements inventory.Observer.
func (m *LedgerMetrics) MovementCommitted(_ context.Context, mv inventory.Movement) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(string(mv.Type)).Inc()
}

// MovementRejected implements inventory.Observer.
func (m *LedgerMetrics) MovementRejected(_ context.Context, t inventory.MovementType, err error) {
	if m == nil || !errors.Is(err, shared.ErrInsufficientStock) {
		return
	}
	m.rejections.WithLabelValues(string(t)).Inc()
}

// ChallanCreated implements challan.CreatedHook.
func (m *LedgerMetrics) ChallanCreated(context.Context, string) {
	if m == nil {
		return
	}
	m.challans.Inc()
}
