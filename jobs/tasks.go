package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity replays every item's ledger against its stored quantity.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// RequesterAPI marks scans triggered through the HTTP API. The payload of such scans is
	// constant so asynq's payload-derived uniqueness lock covers every caller.
	RequesterAPI = "api"
	// RequesterCron marks scheduled scans.
	RequesterCron = "cron"
)

// LedgerIntegrityPayload identifies who triggered a scan. It must not carry per-request
// values such as timestamps.
type LedgerIntegrityPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for idempotency key cleanup.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
