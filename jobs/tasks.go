package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurrenceGenerate materialises recurring obligations for a month.
	TaskRecurrenceGenerate = "recurrence:generate"
	// TaskCashflowWarmup pre-computes the current month summary after the
	// nightly generation so the first dashboard hit is warm.
	TaskCashflowWarmup = "cashflow:warmup"
)

// GeneratePayload selects the month a generation run covers. A zero payload
// means "the month the task runs in".
type GeneratePayload struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// Resolve fills the current month for zero fields.
func (p GeneratePayload) Resolve(now time.Time) (int, time.Month) {
	if p.Year == 0 || p.Month == 0 {
		return now.Year(), now.Month()
	}
	return p.Year, time.Month(p.Month)
}

// NewGenerateTask constructs a recurrence generation task.
func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurrenceGenerate, data), nil
}

// NewCashflowWarmupTask constructs a cache warmup task.
func NewCashflowWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskCashflowWarmup, nil)
}
