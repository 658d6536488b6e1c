package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/pagination"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/store"
)

func parse[In any](t *testing.T, parser func(sanitize.Payload, bool) (In, error), body string, partial bool) In {
	t.Helper()
	p, err := sanitize.Decode([]byte(body))
	require.NoError(t, err)
	in, err := parser(p, partial)
	require.NoError(t, err)
	return in
}

func TestLoanService_PaidAtIsDerived(t *testing.T) {
	svc := NewLoanService(store.NewMemory(), nil)
	now := clock
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	loan, err := svc.Create(ctx, owner, parse(t, sanitize.ParseLoan,
		`{"name":"Car","amount":"15000.00","paidAt":"2020-01-01","ownerId":"intruder"}`, false))
	require.NoError(t, err)
	assert.False(t, loan.IsPaid)
	assert.Nil(t, loan.PaidAt)
	assert.Equal(t, owner, loan.OwnerID)
	assert.NotEmpty(t, loan.ID)

	now = clock.Add(48 * time.Hour)
	loan, err = svc.Update(ctx, owner, loan.ID, parse(t, sanitize.ParseLoan, `{"isPaid":true}`, true))
	require.NoError(t, err)
	require.NotNil(t, loan.PaidAt)
	assert.Equal(t, now, *loan.PaidAt)
	assert.Equal(t, "Car", loan.Name)

	now = clock.Add(96 * time.Hour)
	loan, err = svc.Update(ctx, owner, loan.ID, parse(t, sanitize.ParseLoan, `{"notes":"early payoff"}`, true))
	require.NoError(t, err)
	require.NotNil(t, loan.PaidAt)
	assert.Equal(t, clock.Add(48*time.Hour), *loan.PaidAt, "untouched when isPaid is absent")

	loan, err = svc.Update(ctx, owner, loan.ID, parse(t, sanitize.ParseLoan, `{"isPaid":false}`, true))
	require.NoError(t, err)
	assert.Nil(t, loan.PaidAt)

	stored, err := svc.Get(ctx, owner, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan, stored)
}

func TestBudgetService_RejectsInvertedPeriod(t *testing.T) {
	svc := NewBudgetService(store.NewMemory(), nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, owner, parse(t, sanitize.ParseBudget,
		`{"name":"Food","amount":800,"periodStart":"2024-03-01","periodEnd":"2024-03-31"}`, false))
	require.NoError(t, err)

	_, err = svc.Update(ctx, owner, b.ID, parse(t, sanitize.ParseBudget, `{"periodEnd":"2024-02-01"}`, true))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	stored, err := svc.Get(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.PeriodEnd, stored.PeriodEnd)
}

func TestPlanner_OwnerScopedCRUD(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	subs := NewSubscriptionService(s, n)
	goals := NewGoalService(s, n)
	ctx := context.Background()

	sub, err := subs.Create(ctx, owner, parse(t, sanitize.ParseSubscription, `{"name":"Music","amount":"21.90"}`, false))
	require.NoError(t, err)
	assert.Equal(t, sanitize.CycleMonthly, sub.BillingCycle)
	assert.True(t, sub.Active)

	_, err = subs.Get(ctx, "someone-else", sub.ID)
	assert.True(t, apperr.IsNotFound(err))
	err = subs.Delete(ctx, "someone-else", sub.ID)
	assert.True(t, apperr.IsNotFound(err))

	for range 3 {
		_, err := goals.Create(ctx, owner, parse(t, sanitize.ParseGoal, `{"name":"Trip","targetAmount":5000}`, false))
		require.NoError(t, err)
	}
	page, err := goals.List(ctx, owner, pagination.Params{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.TotalCount)
	assert.False(t, page.HasNextPage)

	require.NoError(t, subs.Delete(ctx, owner, sub.ID))
	_, err = subs.Update(ctx, owner, sub.ID, parse(t, sanitize.ParseSubscription, `{"active":false}`, true))
	assert.True(t, apperr.IsNotFound(err))

	assert.Len(t, n.Events(), 5)
}
