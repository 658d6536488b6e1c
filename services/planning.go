package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/pagination"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/store"
)

const EventPlanningChanged = "planning.changed"

// Planner is owner-scoped CRUD for one planning entity. In is the sanitized
// input shape; apply merges it into a new or existing row.
type Planner[T, In any] struct {
	store    store.Store
	notifier Notifier
	now      func() time.Time

	entity  string
	records func(q store.Queries) store.Records[T]
	apply   func(rec *T, in In, now time.Time) error
}

type (
	LoanService         = Planner[models.Loan, sanitize.LoanInput]
	SubscriptionService = Planner[models.Subscription, sanitize.SubscriptionInput]
	BudgetService       = Planner[models.Budget, sanitize.BudgetInput]
	GoalService         = Planner[models.Goal, sanitize.GoalInput]
)

func NewLoanService(s store.Store, n Notifier) *LoanService {
	return &LoanService{
		store: s, notifier: notifierOrNop(n), now: time.Now,
		entity:  "loan",
		records: store.Queries.Loans,
		apply: func(l *models.Loan, in sanitize.LoanInput, now time.Time) error {
			sanitize.ApplyLoan(l, in, now)
			return nil
		},
	}
}

func NewSubscriptionService(s store.Store, n Notifier) *SubscriptionService {
	return &SubscriptionService{
		store: s, notifier: notifierOrNop(n), now: time.Now,
		entity:  "subscription",
		records: store.Queries.Subscriptions,
		apply: func(sub *models.Subscription, in sanitize.SubscriptionInput, _ time.Time) error {
			sanitize.ApplySubscription(sub, in)
			return nil
		},
	}
}

func NewBudgetService(s store.Store, n Notifier) *BudgetService {
	return &BudgetService{
		store: s, notifier: notifierOrNop(n), now: time.Now,
		entity:  "budget",
		records: store.Queries.Budgets,
		apply: func(b *models.Budget, in sanitize.BudgetInput, _ time.Time) error {
			return sanitize.ApplyBudget(b, in)
		},
	}
}

func NewGoalService(s store.Store, n Notifier) *GoalService {
	return &GoalService{
		store: s, notifier: notifierOrNop(n), now: time.Now,
		entity:  "goal",
		records: store.Queries.Goals,
		apply: func(g *models.Goal, in sanitize.GoalInput, _ time.Time) error {
			sanitize.ApplyGoal(g, in)
			return nil
		},
	}
}

func (p *Planner[T, In]) Create(ctx context.Context, ownerID string, in In) (*T, error) {
	now := p.now().UTC()
	rec := new(T)
	if err := p.apply(rec, in, now); err != nil {
		return nil, err
	}

	st := p.records(p.store).Key(rec)
	*st.ID = uuid.NewString()
	*st.OwnerID = ownerID
	*st.CreatedAt = now
	*st.UpdatedAt = now

	if err := p.records(p.store).Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert %s: %w", p.entity, err)
	}

	p.notifier.Notify(ownerID, EventPlanningChanged)
	return rec, nil
}

func (p *Planner[T, In]) Update(ctx context.Context, ownerID, id string, in In) (*T, error) {
	records := p.records(p.store)
	rec, err := records.Get(ctx, ownerID, id)
	if err != nil {
		return nil, notFound(err, p.entity)
	}

	now := p.now().UTC()
	if err := p.apply(rec, in, now); err != nil {
		return nil, err
	}
	*p.records(p.store).Key(rec).UpdatedAt = now

	if err := records.Update(ctx, rec); err != nil {
		return nil, notFound(err, p.entity)
	}

	p.notifier.Notify(ownerID, EventPlanningChanged)
	return rec, nil
}

func (p *Planner[T, In]) Delete(ctx context.Context, ownerID, id string) error {
	if err := p.records(p.store).Delete(ctx, ownerID, id); err != nil {
		return notFound(err, p.entity)
	}
	p.notifier.Notify(ownerID, EventPlanningChanged)
	return nil
}

func (p *Planner[T, In]) Get(ctx context.Context, ownerID, id string) (*T, error) {
	rec, err := p.records(p.store).Get(ctx, ownerID, id)
	if err != nil {
		return nil, notFound(err, p.entity)
	}
	return rec, nil
}

func (p *Planner[T, In]) List(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[T], error) {
	records := p.records(p.store)
	total, err := records.Count(ctx, ownerID)
	if err != nil {
		return pagination.Page[T]{}, err
	}

	rows, err := records.List(ctx, ownerID, params.PageSize, params.Skip())
	if err != nil {
		return pagination.Page[T]{}, err
	}
	return pagination.New(rows, params, total), nil
}
