package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brasato/brasato/internal/cashflow"
	jobmetrics "github.com/brasato/brasato/internal/jobs"
	"github.com/brasato/brasato/internal/shared"
)

// NewCashflowWarmupHandler builds the handler that pre-computes the current
// month summary, both views, so the dashboard never pays the cold query.
func NewCashflowWarmupHandler(svc *cashflow.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("cashflow_warmup")
		for _, includePending := range []bool{false, true} {
			if _, err := svc.Summary(ctx, shared.PeriodThisMonth, time.Time{}, time.Time{}, includePending); err != nil {
				logger.Warn("cashflow warmup failed", "pending", includePending, "error", err)
				return tracker.End(err)
			}
		}
		return tracker.End(nil)
	}
}
