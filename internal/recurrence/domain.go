package recurrence

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/brasato/brasato/internal/ledger"
	"github.com/brasato/brasato/internal/shared"
)

// RuleKind separates fixed-cost rules from recurring tax obligations. Both
// generate Pending movements the same way; the kind decides the movement type
// and the related entity tag.
type RuleKind string

const (
	KindExpense RuleKind = "rule"
	KindTax     RuleKind = "tax"
)

// ScheduleKind is the recurrence cadence.
type ScheduleKind string

const (
	ScheduleMonthly ScheduleKind = "MONTHLY"
	ScheduleWeekly  ScheduleKind = "WEEKLY"
	ScheduleYearly  ScheduleKind = "YEARLY"
)

// Rule describes one recurring obligation. DayOfMonth applies to MONTHLY and
// YEARLY schedules (clamped to short months), Month to YEARLY only, Weekday to
// WEEKLY only.
type Rule struct {
	ID             int64
	Kind           RuleKind
	Name           string
	Description    string
	Category       string
	Subcategory    string
	Value          float64
	Schedule       ScheduleKind
	DayOfMonth     int
	Month          time.Month
	Weekday        time.Weekday
	SenderReceiver string
	Notes          string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MovementType maps the rule kind to the ledger movement type it generates.
func (r Rule) MovementType() ledger.MovementType {
	if r.Kind == KindTax {
		return ledger.TypeTax
	}
	return ledger.TypeExpense
}

// EntityType maps the rule kind to the related entity tag on generated
// movements.
func (r Rule) EntityType() ledger.EntityType {
	if r.Kind == KindTax {
		return ledger.EntityRecurringTax
	}
	return ledger.EntityRecurrenceRule
}

// CreateInput carries a new rule. Tags drive the structural validation;
// schedule field cross-checks happen in validateSchedule.
type CreateInput struct {
	Kind           RuleKind     `validate:"required,oneof=rule tax"`
	Name           string       `validate:"required,max=200"`
	Description    string       `validate:"max=500"`
	Category       string       `validate:"max=100"`
	Subcategory    string       `validate:"max=100"`
	Value          float64      `validate:"gt=0"`
	Schedule       ScheduleKind `validate:"required,oneof=MONTHLY WEEKLY YEARLY"`
	DayOfMonth     int          `validate:"min=0,max=31"`
	Month          time.Month   `validate:"min=0,max=12"`
	Weekday        int          `validate:"min=0,max=6"`
	SenderReceiver string       `validate:"max=200"`
	Notes          string       `validate:"max=500"`
}

// UpdateInput is a partial rule patch. Nil fields are left untouched. Every
// schedule field may move within the rule's schedule kind; only the kind
// itself is immutable.
type UpdateInput struct {
	Name           *string
	Description    *string
	Category       *string
	Subcategory    *string
	Value          *float64
	DayOfMonth     *int
	Month          *time.Month
	Weekday        *time.Weekday
	SenderReceiver *string
	Notes          *string
}

// GenerationResult reports one generation run. Skipped counts movements that
// already existed for their period; Failures isolates broken rules so one bad
// rule never blocks the rest.
type GenerationResult struct {
	Year      int
	Month     time.Month
	Generated int
	Skipped   int
	Failures  []RuleFailure
}

// RuleFailure records a rule the generator could not process.
type RuleFailure struct {
	RuleID   int64
	RuleName string
	Reason   string
}

var (
	ErrRuleNotFound    = shared.NewNotFoundError("RULE_NOT_FOUND", "recurrence: rule not found")
	ErrRuleInactive    = shared.NewConflictError("RULE_INACTIVE", "recurrence: rule has been deactivated")
	ErrInvalidSchedule = shared.NewValidationError("INVALID_SCHEDULE", "recurrence: schedule fields do not match the schedule kind")
	ErrInvalidMonth    = shared.NewValidationError("INVALID_GENERATION_MONTH", "recurrence: generation month out of range")
	ErrNoUpdates       = shared.NewValidationError("NO_UPDATES", "recurrence: no fields to update")
)

var validate = validator.New()

func validateCreate(in CreateInput) error {
	if err := validate.Struct(in); err != nil {
		return shared.NewValidationError("INVALID_RULE", fmt.Sprintf("recurrence: %v", err))
	}
	return validateSchedule(in.Schedule, in.DayOfMonth, in.Month)
}

func validateSchedule(kind ScheduleKind, day int, month time.Month) error {
	switch kind {
	case ScheduleMonthly:
		if day < 1 || day > 31 {
			return ErrInvalidSchedule
		}
	case ScheduleYearly:
		if day < 1 || day > 31 || month < time.January || month > time.December {
			return ErrInvalidSchedule
		}
	case ScheduleWeekly:
		// weekday zero value (Sunday) is valid, nothing further to check
	default:
		return ErrInvalidSchedule
	}
	return nil
}

// defaultCategory fills the category for rules created without one.
func defaultCategory(kind RuleKind) string {
	if kind == KindTax {
		return ledger.CategoryTaxes
	}
	return ledger.CategoryFixedCosts
}
