package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/eventstock/stockledger/internal/inventory"
	jobmetrics "github.com/eventstock/stockledger/internal/jobs"
	"github.com/eventstock/stockledger/internal/rbac"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeVerifier struct {
	candidates []inventory.LedgerCheck
	recheck    map[uuid.UUID]inventory.LedgerCheck
	err        error

	mu      sync.Mutex
	checked []uuid.UUID
}

func (f *fakeVerifier) VerifyLedger(context.Context) ([]inventory.LedgerCheck, error) {
	return f.candidates, f.err
}

func (f *fakeVerifier) VerifyItemLedger(_ context.Context, id uuid.UUID) (inventory.LedgerCheck, error) {
	f.mu.Lock()
	f.checked = append(f.checked, id)
	f.mu.Unlock()
	return f.recheck[id], nil
}

func TestLedgerIntegrityConfirmsDrift(t *testing.T) {
	drifted, settled := uuid.New(), uuid.New()
	verifier := &fakeVerifier{
		candidates: []inventory.LedgerCheck{{ItemID: drifted, Expected: 5, Actual: 4}, {ItemID: settled, Expected: 3, Actual: 2}},
		recheck: map[uuid.UUID]inventory.LedgerCheck{
			drifted: {ItemID: drifted, ItemName: "Chair", Expected: 5, Actual: 4},
			settled: {ItemID: settled, Expected: 2, Actual: 2},
		},
	}
	job := NewLedgerIntegrityJob(verifier, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	got, err := job.Run(context.Background(), LedgerIntegrityPayload{RequestedBy: RequesterCron})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, drifted, got[0].ItemID)
	require.ElementsMatch(t, []uuid.UUID{drifted, settled}, verifier.checked)

	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{RequestedBy: RequesterAPI})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerIntegrity, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestLedgerIntegrityPropagatesFailure(t *testing.T) {
	job := NewLedgerIntegrityJob(&fakeVerifier{err: errors.New("db down")}, discard, nil)
	_, err := job.Run(context.Background(), LedgerIntegrityPayload{})
	require.EqualError(t, err, "db down")

	bad := asynq.NewTask(TaskLedgerIntegrity, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

type fakePurger struct {
	olderThan time.Duration
}

func (f *fakePurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 3, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &fakePurger{}
	job := NewIdempotencyCleanupJob(purger, 48*time.Hour, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, purger.olderThan)

	task, err = NewIdempotencyCleanupTask(IdempotencyCleanupPayload{Retention: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, purger.olderThan)
}

type fakeEnqueuer struct {
	calls int
}

func (f *fakeEnqueuer) EnqueueLedgerScan(context.Context) (string, error) {
	f.calls++
	if f.calls > 1 {
		return "", asynq.ErrDuplicateTask
	}
	return "task-1", nil
}

func TestScanHandler(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewHandler(nil, enq, rbac.Middleware{Service: rbac.NewService()}, discard)
	r := chi.NewRouter()
	r.Use(rbac.ActorFromHeaders)
	h.MountAPIRoutes(r)
	r.Route("/jobs", h.MountRoutes)

	post := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/ledger/scan", nil)
		req.Header.Set(rbac.HeaderActorID, "ops")
		req.Header.Set(rbac.HeaderActorRole, role)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusForbidden, post("VIEWER").Code)
	rec := post("ADMIN")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "task-1")
	require.Equal(t, 1, enq.calls)
	require.Equal(t, http.StatusConflict, post("ADMIN").Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

func TestEnqueueLedgerScanIsUniquePerMinute(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	id, err := client.EnqueueLedgerScan(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = client.EnqueueLedgerScan(ctx)
	require.ErrorIs(t, err, asynq.ErrDuplicateTask)

	mr.FastForward(ledgerScanUniqueFor + time.Second)
	_, err = client.EnqueueLedgerScan(ctx)
	require.NoError(t, err)
}
