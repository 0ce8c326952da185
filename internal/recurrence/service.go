package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

// Service manages recurring obligation rules and generates their Pending
// movements month by month.
type Service struct {
	repo       RepositoryPort
	audit      shared.AuditPort
	logger     *slog.Logger
	invalidate ledger.Invalidator
}

func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// SetInvalidator wires the cash-flow cache bump hook. Optional.
func (s *Service) SetInvalidator(inv ledger.Invalidator) { s.invalidate = inv }

// CreateRule validates and stores a new recurring rule.
func (s *Service) CreateRule(ctx context.Context, in CreateInput, actorID int64) (Rule, error) {
	if err := validateCreate(in); err != nil {
		return Rule{}, err
	}
	category := in.Category
	if category == "" {
		category = defaultCategory(in.Kind)
	}
	rule, err := s.repo.InsertRule(ctx, Rule{
		Kind:           in.Kind,
		Name:           in.Name,
		Description:    in.Description,
		Category:       category,
		Subcategory:    in.Subcategory,
		Value:          shared.Round2(in.Value),
		Schedule:       in.Schedule,
		DayOfMonth:     in.DayOfMonth,
		Month:          in.Month,
		Weekday:        time.Weekday(in.Weekday),
		SenderReceiver: in.SenderReceiver,
		Notes:          in.Notes,
	})
	if err != nil {
		return Rule{}, err
	}
	s.recordAudit(ctx, actorID, "recurrence.create", rule.ID, map[string]any{"name": rule.Name})
	return rule, nil
}

// UpdateRule applies a partial patch. The schedule kind is immutable; changing
// cadence means retiring the rule and creating a new one, which keeps already
// generated periods attributable.
func (s *Service) UpdateRule(ctx context.Context, id int64, in UpdateInput, actorID int64) (Rule, error) {
	if in == (UpdateInput{}) {
		return Rule{}, ErrNoUpdates
	}
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if !rule.IsActive {
		return Rule{}, ErrRuleInactive
	}
	if in.Name != nil {
		rule.Name = *in.Name
	}
	if in.Description != nil {
		rule.Description = *in.Description
	}
	if in.Category != nil {
		rule.Category = *in.Category
	}
	if in.Subcategory != nil {
		rule.Subcategory = *in.Subcategory
	}
	if in.Value != nil {
		if *in.Value <= 0 {
			return Rule{}, shared.NewValidationError("INVALID_RULE", "recurrence: value must be greater than zero")
		}
		rule.Value = shared.Round2(*in.Value)
	}
	if in.DayOfMonth != nil {
		rule.DayOfMonth = *in.DayOfMonth
	}
	if in.Month != nil {
		rule.Month = *in.Month
	}
	if in.Weekday != nil {
		if *in.Weekday < time.Sunday || *in.Weekday > time.Saturday {
			return Rule{}, ErrInvalidSchedule
		}
		rule.Weekday = *in.Weekday
	}
	if in.SenderReceiver != nil {
		rule.SenderReceiver = *in.SenderReceiver
	}
	if in.Notes != nil {
		rule.Notes = *in.Notes
	}
	if rule.Name == "" {
		return Rule{}, shared.NewValidationError("INVALID_RULE", "recurrence: name is required")
	}
	if err := validateSchedule(rule.Schedule, rule.DayOfMonth, rule.Month); err != nil {
		return Rule{}, err
	}
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return Rule{}, err
	}
	s.recordAudit(ctx, actorID, "recurrence.update", id, nil)
	return rule, nil
}

// DeactivateRule retires a rule. Future generation runs skip it; movements
// already generated stay in the ledger.
func (s *Service) DeactivateRule(ctx context.Context, id, actorID int64) error {
	if err := s.repo.SoftDeleteRule(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "recurrence.deactivate", id, nil)
	return nil
}

// GetRule loads one rule.
func (s *Service) GetRule(ctx context.Context, id int64) (Rule, error) {
	return s.repo.GetRule(ctx, id)
}

// ListRules returns rules, active only unless includeInactive is set.
func (s *Service) ListRules(ctx context.Context, includeInactive bool) ([]Rule, error) {
	return s.repo.ListRules(ctx, includeInactive)
}

// Generate produces the Pending movements every active rule owes for the
// given month. The run is idempotent: a movement that already exists for its
// (rule, period) pair is counted as skipped, and a failing rule is reported
// without stopping the others. Re-running after a partial failure only fills
// the gaps.
func (s *Service) Generate(ctx context.Context, year int, month time.Month) (GenerationResult, error) {
	if year < 2000 || year > 2100 || month < time.January || month > time.December {
		return GenerationResult{}, ErrInvalidMonth
	}
	rules, err := s.repo.ListRules(ctx, false)
	if err != nil {
		return GenerationResult{}, err
	}

	result := GenerationResult{Year: year, Month: month}
	for _, rule := range rules {
		occs, err := Occurrences(rule, year, month)
		if err != nil {
			result.Failures = append(result.Failures, RuleFailure{
				RuleID: rule.ID, RuleName: rule.Name, Reason: err.Error(),
			})
			continue
		}
		for _, occ := range occs {
			date := occ.Date
			_, err := s.repo.InsertMovement(ctx, ledger.Movement{
				Type:              rule.MovementType(),
				Value:             rule.Value,
				Category:          rule.Category,
				Subcategory:       rule.Subcategory,
				Description:       fmt.Sprintf("%s (%s)", rule.Name, occ.PeriodKey),
				MovementDate:      &date,
				PaymentStatus:     ledger.StatusPending,
				SenderReceiver:    rule.SenderReceiver,
				RelatedEntityType: rule.EntityType(),
				RelatedEntityID:   rule.ID,
				RecurrencePeriod:  occ.PeriodKey,
				Notes:             rule.Notes,
			})
			switch {
			case err == nil:
				result.Generated++
			case errors.Is(err, ledger.ErrDuplicateRecurrence):
				result.Skipped++
			default:
				result.Failures = append(result.Failures, RuleFailure{
					RuleID: rule.ID, RuleName: rule.Name, Reason: err.Error(),
				})
			}
		}
	}

	s.logger.Info("recurrence generation finished",
		"year", year, "month", int(month),
		"generated", result.Generated,
		"skipped", result.Skipped,
		"failures", len(result.Failures))
	if result.Generated > 0 && s.invalidate != nil {
		s.invalidate.Bump(ctx)
	}
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, ruleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "recurrence_rule",
		EntityID: strconv.FormatInt(ruleID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "rule_id", ruleID, "error", err)
	}
}
