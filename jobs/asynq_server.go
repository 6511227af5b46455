package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/eventstock/stockledger/internal/platform/httpx"
	"github.com/eventstock/stockledger/internal/rbac"
	"github.com/eventstock/stockledger/internal/shared"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// ledgerScanUniqueFor bounds how often on-demand scans can be queued.
const ledgerScanUniqueFor = time.Minute

// EnqueueLedgerScan enqueues an on-demand integrity scan. Only one scan may be queued per
// minute across all callers; a duplicate returns asynq.ErrDuplicateTask.
func (c *Client) EnqueueLedgerScan(ctx context.Context) (string, error) {
	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{RequestedBy: RequesterAPI})
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Unique(ledgerScanUniqueFor))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// ScanEnqueuer enqueues integrity scans.
type ScanEnqueuer interface {
	EnqueueLedgerScan(ctx context.Context) (string, error)
}

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability and on-demand scans.
type Handler struct {
	inspector QueueInspector
	enqueuer  ScanEnqueuer
	rbac      rbac.Middleware
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, enqueuer ScanEnqueuer, rbac rbac.Middleware, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, enqueuer: enqueuer, rbac: rbac, logger: logger}
}

// MountRoutes attaches the queue health route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

// MountAPIRoutes attaches the scan trigger to the versioned API.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.PermStockManage)).Post("/ledger/scan", h.scan)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	out := queueHealth{Queue: QueueDefault}
	if info != nil {
		out = queueHealth{Queue: info.Queue, Pending: info.Pending}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := h.enqueuer.EnqueueLedgerScan(r.Context())
	if errors.Is(err, asynq.ErrDuplicateTask) {
		httpx.RespondError(w, &shared.ConflictError{Entity: "ledger scan", Message: "a ledger scan is already queued"})
		return
	}
	if err != nil {
		h.logger.Error("enqueue ledger scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("ledger scan queued", slog.String("task_id", id), slog.String("actor_id", actor.ID))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}
