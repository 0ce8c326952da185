package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/brasato/brasato/internal/jobs"
	"github.com/brasato/brasato/internal/recurrence"
)

// NewRecurrenceGenerateHandler builds the handler that runs one generation
// pass. Idempotency lives in the recurrence service, so asynq retries and
// overlapping cron fires are harmless.
func NewRecurrenceGenerateHandler(svc *recurrence.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("recurrence_generate")
		var payload GeneratePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				_ = tracker.End(err)
				return asynq.SkipRetry
			}
		}
		year, month := payload.Resolve(time.Now().UTC())

		result, err := svc.Generate(ctx, year, month)
		if err != nil {
			logger.Error("recurrence generation failed",
				"year", year, "month", int(month), "error", err)
			return tracker.End(err)
		}
		metrics.AddGenerated("generated", result.Generated)
		metrics.AddGenerated("skipped", result.Skipped)
		metrics.AddGenerated("failed", len(result.Failures))
		for _, f := range result.Failures {
			logger.Warn("rule skipped during generation",
				"rule_id", f.RuleID, "rule", f.RuleName, "reason", f.Reason)
		}
		return tracker.End(nil)
	}
}
