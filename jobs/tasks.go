package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every sweep runs on.
	QueueDefault = "default"

	TaskSalesMarkOverdue = "sales:mark_overdue"
	TaskQuotationsExpire = "quotations:expire"
	TaskCreditRefresh    = "credit:refresh"
	TaskIdempotencyPurge = "idempotency:purge"

	defaultBatchSize = 500
	defaultRetention = 72 * time.Hour
	asOfLayout       = "2006-01-02"
)

// SweepPayload parameterises the overdue and expiry sweeps. An empty AsOf
// means the current day.
type SweepPayload struct {
	AsOf      string `json:"as_of,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

func (p SweepPayload) asOf(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now, nil
	}
	t, err := time.Parse(asOfLayout, p.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("jobs: as_of %q: %w", p.AsOf, err)
	}
	return t, nil
}

func (p SweepPayload) batch() int {
	if p.BatchSize <= 0 {
		return defaultBatchSize
	}
	return p.BatchSize
}

// PurgePayload sets how long idempotency keys are kept.
type PurgePayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

func (p PurgePayload) retention() time.Duration {
	if p.RetentionHours <= 0 {
		return defaultRetention
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewTask builds a task of taskType carrying payload as JSON. A nil payload
// becomes an empty object.
func NewTask(taskType string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return asynq.NewTask(taskType, body, opts...), nil
}

// KnownTask reports whether taskType is one of the sweeps.
func KnownTask(taskType string) bool {
	switch taskType {
	case TaskSalesMarkOverdue, TaskQuotationsExpire, TaskCreditRefresh, TaskIdempotencyPurge:
		return true
	}
	return false
}

func decode(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
