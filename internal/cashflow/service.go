package cashflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

// LedgerPort is the read surface the aggregator consumes. The aggregator
// never writes: it resolves periods, caches, and annotates.
type LedgerPort interface {
	Summary(ctx context.Context, win shared.Window, includePending bool) (ledger.Summary, error)
	ReconciliationReport(ctx context.Context, f ledger.ReconciliationFilter) (ledger.ReconciliationReport, error)
	ListPending(ctx context.Context, f ledger.ListFilter) ([]ledger.Movement, error)
}

// SummaryView is a summary annotated with the window it covers.
type SummaryView struct {
	ledger.Summary
	Period string    `json:"period"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// ReconciliationQuery narrows the reconciliation report by period.
type ReconciliationQuery struct {
	Period     string
	From       time.Time
	To         time.Time
	Reconciled *bool
	GatewayID  string
}

// Service is the cash-flow read model over the movement store.
type Service struct {
	store  LedgerPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

func NewService(store LedgerPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

// Summary resolves the period and serves the aggregate, collapsing concurrent
// identical requests onto one store query.
func (s *Service) Summary(ctx context.Context, period string, from, to time.Time, includePending bool) (SummaryView, error) {
	win, err := shared.ResolvePeriod(period, s.now(), from, to)
	if err != nil {
		return SummaryView{}, shared.NewValidationError("INVALID_PERIOD", err.Error())
	}
	if period == "" {
		period = shared.PeriodThisMonth
	}

	key, err := s.cache.BuildKey(ctx, keySummary(period, win.From, win.To, includePending)...)
	if err != nil {
		s.logger.Warn("cashflow cache key failed", "error", err)
		key = strings.Join(keySummary(period, win.From, win.To, includePending), ":")
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var view SummaryView
		err := s.cache.FetchJSON(ctx, key, &view, func(ctx context.Context) (interface{}, error) {
			sum, err := s.store.Summary(ctx, win, includePending)
			if err != nil {
				return nil, err
			}
			return SummaryView{Summary: sum, Period: period, From: win.From, To: win.To}, nil
		})
		return view, err
	})
	if err != nil {
		return SummaryView{}, err
	}
	return v.(SummaryView), nil
}

// ReconciliationReport resolves the period and passes through uncached; the
// report is the worklist of an active reconciliation session and must not lag
// behind the toggles it drives.
func (s *Service) ReconciliationReport(ctx context.Context, q ReconciliationQuery) (ledger.ReconciliationReport, error) {
	win, err := shared.ResolvePeriod(q.Period, s.now(), q.From, q.To)
	if err != nil {
		return ledger.ReconciliationReport{}, shared.NewValidationError("INVALID_PERIOD", err.Error())
	}
	return s.store.ReconciliationReport(ctx, ledger.ReconciliationFilter{
		From:       win.From,
		To:         win.To,
		Reconciled: q.Reconciled,
		GatewayID:  q.GatewayID,
	})
}

// BumpOnWrite adapts the cache bump to the write-side invalidation hook the
// ledger and the settlement coordinators call after committing.
type BumpOnWrite struct {
	Cache  *Cache
	Logger *slog.Logger
}

func (b *BumpOnWrite) Bump(ctx context.Context) {
	if err := b.Cache.Bump(ctx); err != nil && b.Logger != nil {
		b.Logger.Warn("cashflow cache bump failed", "error", err)
	}
}

// PendingObligations lists Pending movements inside the period, the payables
// and receivables view.
func (s *Service) PendingObligations(ctx context.Context, period string, from, to time.Time, movType ledger.MovementType) ([]ledger.Movement, error) {
	win, err := shared.ResolvePeriod(period, s.now(), from, to)
	if err != nil {
		return nil, shared.NewValidationError("INVALID_PERIOD", err.Error())
	}
	return s.store.ListPending(ctx, ledger.ListFilter{
		From: win.From,
		To:   win.To,
		Type: movType,
	})
}
