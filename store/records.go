package store

import (
	"time"

	"github.com/LovationAdmin/finance-api/models"
)

// RecordKey points at the bookkeeping fields every planning row carries.
type RecordKey struct {
	ID        *string
	OwnerID   *string
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// recordDef maps a planning model onto its table. fields returns pointers
// into rec in the same order as columns; they serve both as query args and
// as scan targets.
type recordDef[T any] struct {
	table   string
	columns []string
	key     func(rec *T) RecordKey
	fields  func(rec *T) []any
}

var loanDef = recordDef[models.Loan]{
	table:   "loans",
	columns: []string{"name", "lender", "amount", "interest_rate", "due_date", "is_paid", "paid_at", "notes"},
	key: func(l *models.Loan) RecordKey {
		return RecordKey{&l.ID, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt}
	},
	fields: func(l *models.Loan) []any {
		return []any{&l.Name, &l.Lender, &l.Amount, &l.InterestRate, &l.DueDate, &l.IsPaid, &l.PaidAt, &l.Notes}
	},
}

var subscriptionDef = recordDef[models.Subscription]{
	table:   "subscriptions",
	columns: []string{"name", "amount", "billing_cycle", "next_billing_date", "category", "active"},
	key: func(s *models.Subscription) RecordKey {
		return RecordKey{&s.ID, &s.OwnerID, &s.CreatedAt, &s.UpdatedAt}
	},
	fields: func(s *models.Subscription) []any {
		return []any{&s.Name, &s.Amount, &s.BillingCycle, &s.NextBillingDate, &s.Category, &s.Active}
	},
}

var budgetDef = recordDef[models.Budget]{
	table:   "budgets",
	columns: []string{"name", "category", "amount", "period_start", "period_end"},
	key: func(b *models.Budget) RecordKey {
		return RecordKey{&b.ID, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt}
	},
	fields: func(b *models.Budget) []any {
		return []any{&b.Name, &b.Category, &b.Amount, &b.PeriodStart, &b.PeriodEnd}
	},
}

var goalDef = recordDef[models.Goal]{
	table:   "goals",
	columns: []string{"name", "target_amount", "current_amount", "deadline"},
	key: func(g *models.Goal) RecordKey {
		return RecordKey{&g.ID, &g.OwnerID, &g.CreatedAt, &g.UpdatedAt}
	},
	fields: func(g *models.Goal) []any {
		return []any{&g.Name, &g.TargetAmount, &g.CurrentAmount, &g.Deadline}
	},
}
