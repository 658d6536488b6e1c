package sanitize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/models"
)

// reader keeps the first field error so parsers can read fields in sequence.
type reader struct {
	p   Payload
	err error
}

func (r *reader) str(field string) Optional[string] {
	if r.err != nil {
		return Optional[string]{}
	}
	v, err := r.p.String(field)
	r.err = err
	return v
}

func (r *reader) dec(field string) Optional[decimal.Decimal] {
	if r.err != nil {
		return Optional[decimal.Decimal]{}
	}
	v, err := r.p.Decimal(field)
	r.err = err
	return v
}

func (r *reader) date(field string) Optional[time.Time] {
	if r.err != nil {
		return Optional[time.Time]{}
	}
	v, err := r.p.Date(field)
	r.err = err
	return v
}

func (r *reader) boolean(field string) Optional[bool] {
	if r.err != nil {
		return Optional[bool]{}
	}
	v, err := r.p.Bool(field)
	r.err = err
	return v
}

// need fails when a mandatory field is absent or null.
func need[T any](r *reader, field string, o Optional[T]) T {
	if r.err != nil {
		var zero T
		return zero
	}
	v, err := required(field, o)
	r.err = err
	return v
}

// notNull fails when a present field is null. Used by patches for columns
// that cannot be cleared.
func notNull[T any](r *reader, field string, o Optional[T]) {
	if r.err == nil && o.Set && o.Value == nil {
		r.err = apperr.Validation(field, field+" cannot be null")
	}
}

func (r *reader) check(field string, o Optional[string], tag string) {
	if r.err == nil && o.Value != nil {
		r.err = checkVar(field, *o.Value, tag)
	}
}

func assign[T any](dst *T, o Optional[T]) {
	if o.Value != nil {
		*dst = *o.Value
	}
}

func assignPtr[T any](dst **T, o Optional[T]) {
	if o.Set {
		*dst = o.Value
	}
}

// TransactionInput is the allow-listed body of a transaction create or update.
// Currency is never read; it always comes from the resolved account.
type TransactionInput struct {
	Description string
	Category    *string
	Amount      decimal.Decimal
	Date        time.Time
	AccountID   *string
	IsRecurring bool
}

func ParseTransaction(p Payload) (TransactionInput, error) {
	r := &reader{p: p}
	in := TransactionInput{
		Description: need(r, "description", r.str("description")),
		Category:    r.str("category").Value,
		Amount:      need(r, "amount", r.dec("amount")),
		Date:        need(r, "date", r.date("date")),
		AccountID:   r.str("accountId").Value,
	}
	assign(&in.IsRecurring, r.boolean("isRecurring"))
	r.check("description", Optional[string]{Value: &in.Description}, "max=255")
	if r.err != nil {
		return TransactionInput{}, r.err
	}
	return in, nil
}

// AccountInput creates a manual account. The initial balance is accepted here
// and nowhere else.
type AccountInput struct {
	Name     string
	Currency string
	Balance  decimal.Decimal
	Mask     *string
	Type     *string
}

func ParseAccount(p Payload) (AccountInput, error) {
	r := &reader{p: p}
	in := AccountInput{
		Name:     models.DefaultAccountName,
		Currency: models.DefaultCurrency,
	}

	name := r.str("name")
	currency := r.str("currency")
	balance := r.dec("balance")
	mask := r.str("mask")
	kind := r.str("type")

	if currency.Value != nil {
		upper := strings.ToUpper(*currency.Value)
		currency.Value = &upper
	}
	r.check("name", name, "max=120")
	r.check("currency", currency, "iso4217")
	r.check("mask", mask, "max=32")
	r.check("type", kind, "max=40")
	if r.err != nil {
		return AccountInput{}, r.err
	}

	assign(&in.Name, name)
	assign(&in.Currency, currency)
	assign(&in.Balance, balance)
	in.Mask = mask.Value
	in.Type = kind.Value
	return in, nil
}

// AccountPatch updates a manual account. Balance is not part of it.
type AccountPatch struct {
	Name Optional[string]
	Mask Optional[string]
	Type Optional[string]
}

func ParseAccountPatch(p Payload) (AccountPatch, error) {
	r := &reader{p: p}
	in := AccountPatch{
		Name: r.str("name"),
		Mask: r.str("mask"),
		Type: r.str("type"),
	}
	notNull(r, "name", in.Name)
	r.check("name", in.Name, "max=120")
	r.check("mask", in.Mask, "max=32")
	r.check("type", in.Type, "max=40")
	if r.err != nil {
		return AccountPatch{}, r.err
	}
	return in, nil
}

// LoanInput carries presence flags so the same shape serves create and patch.
// paidAt is derived, never read.
type LoanInput struct {
	Name         Optional[string]
	Lender       Optional[string]
	Amount       Optional[decimal.Decimal]
	InterestRate Optional[decimal.Decimal]
	DueDate      Optional[time.Time]
	IsPaid       Optional[bool]
	Notes        Optional[string]
}

// ParseLoan reads a loan body. With partial unset, name and amount are mandatory.
func ParseLoan(p Payload, partial bool) (LoanInput, error) {
	r := &reader{p: p}
	in := LoanInput{
		Name:         r.str("name"),
		Lender:       r.str("lender"),
		Amount:       r.dec("amount"),
		InterestRate: r.dec("interestRate"),
		DueDate:      r.date("dueDate"),
		IsPaid:       r.boolean("isPaid"),
		Notes:        r.str("notes"),
	}
	if partial {
		notNull(r, "name", in.Name)
		notNull(r, "amount", in.Amount)
	} else {
		need(r, "name", in.Name)
		need(r, "amount", in.Amount)
	}
	notNull(r, "isPaid", in.IsPaid)
	r.check("name", in.Name, "max=120")
	if r.err != nil {
		return LoanInput{}, r.err
	}
	return in, nil
}

// ApplyLoan merges in into l. paidAt is set when isPaid flips to true,
// cleared whenever isPaid is false, and otherwise left alone.
func ApplyLoan(l *models.Loan, in LoanInput, now time.Time) {
	assign(&l.Name, in.Name)
	assignPtr(&l.Lender, in.Lender)
	assign(&l.Amount, in.Amount)
	assignPtr(&l.InterestRate, in.InterestRate)
	assignPtr(&l.DueDate, in.DueDate)
	assignPtr(&l.Notes, in.Notes)

	if in.IsPaid.Value == nil {
		return
	}
	switch paid := *in.IsPaid.Value; {
	case paid && !l.IsPaid:
		t := now.UTC()
		l.PaidAt = &t
	case !paid:
		l.PaidAt = nil
	}
	l.IsPaid = *in.IsPaid.Value
}

const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
	CycleWeekly  = "weekly"
)

type SubscriptionInput struct {
	Name            Optional[string]
	Amount          Optional[decimal.Decimal]
	BillingCycle    Optional[string]
	NextBillingDate Optional[time.Time]
	Category        Optional[string]
	Active          Optional[bool]
}

// ParseSubscription reads a subscription body. A new subscription defaults to
// a monthly cycle and is active.
func ParseSubscription(p Payload, partial bool) (SubscriptionInput, error) {
	r := &reader{p: p}
	in := SubscriptionInput{
		Name:            r.str("name"),
		Amount:          r.dec("amount"),
		BillingCycle:    r.str("billingCycle"),
		NextBillingDate: r.date("nextBillingDate"),
		Category:        r.str("category"),
		Active:          r.boolean("active"),
	}
	if in.BillingCycle.Value != nil {
		lower := strings.ToLower(*in.BillingCycle.Value)
		in.BillingCycle.Value = &lower
	}
	if partial {
		notNull(r, "name", in.Name)
		notNull(r, "amount", in.Amount)
		notNull(r, "billingCycle", in.BillingCycle)
		notNull(r, "active", in.Active)
	} else {
		need(r, "name", in.Name)
		need(r, "amount", in.Amount)
		if in.BillingCycle.Value == nil {
			in.BillingCycle = some(CycleMonthly)
		}
		if in.Active.Value == nil {
			in.Active = some(true)
		}
	}
	r.check("name", in.Name, "max=120")
	r.check("billingCycle", in.BillingCycle, "oneof=monthly yearly weekly")
	if r.err != nil {
		return SubscriptionInput{}, r.err
	}
	return in, nil
}

func ApplySubscription(s *models.Subscription, in SubscriptionInput) {
	assign(&s.Name, in.Name)
	assign(&s.Amount, in.Amount)
	assign(&s.BillingCycle, in.BillingCycle)
	assignPtr(&s.NextBillingDate, in.NextBillingDate)
	assignPtr(&s.Category, in.Category)
	assign(&s.Active, in.Active)
}

type BudgetInput struct {
	Name        Optional[string]
	Category    Optional[string]
	Amount      Optional[decimal.Decimal]
	PeriodStart Optional[time.Time]
	PeriodEnd   Optional[time.Time]
}

func ParseBudget(p Payload, partial bool) (BudgetInput, error) {
	r := &reader{p: p}
	in := BudgetInput{
		Name:        r.str("name"),
		Category:    r.str("category"),
		Amount:      r.dec("amount"),
		PeriodStart: r.date("periodStart"),
		PeriodEnd:   r.date("periodEnd"),
	}
	if partial {
		notNull(r, "name", in.Name)
		notNull(r, "amount", in.Amount)
		notNull(r, "periodStart", in.PeriodStart)
	} else {
		need(r, "name", in.Name)
		need(r, "amount", in.Amount)
		need(r, "periodStart", in.PeriodStart)
	}
	r.check("name", in.Name, "max=120")
	if r.err != nil {
		return BudgetInput{}, r.err
	}
	return in, nil
}

// ApplyBudget merges in into b and rejects a period that ends before it starts.
func ApplyBudget(b *models.Budget, in BudgetInput) error {
	next := *b
	assign(&next.Name, in.Name)
	assignPtr(&next.Category, in.Category)
	assign(&next.Amount, in.Amount)
	assign(&next.PeriodStart, in.PeriodStart)
	assignPtr(&next.PeriodEnd, in.PeriodEnd)

	if next.PeriodEnd != nil && next.PeriodEnd.Before(next.PeriodStart) {
		return apperr.Validation("periodEnd", "periodEnd must not be before periodStart")
	}
	*b = next
	return nil
}

type GoalInput struct {
	Name          Optional[string]
	TargetAmount  Optional[decimal.Decimal]
	CurrentAmount Optional[decimal.Decimal]
	Deadline      Optional[time.Time]
}

func ParseGoal(p Payload, partial bool) (GoalInput, error) {
	r := &reader{p: p}
	in := GoalInput{
		Name:          r.str("name"),
		TargetAmount:  r.dec("targetAmount"),
		CurrentAmount: r.dec("currentAmount"),
		Deadline:      r.date("deadline"),
	}
	if partial {
		notNull(r, "name", in.Name)
		notNull(r, "targetAmount", in.TargetAmount)
	} else {
		need(r, "name", in.Name)
		need(r, "targetAmount", in.TargetAmount)
	}
	if in.CurrentAmount.Set && in.CurrentAmount.Value == nil {
		in.CurrentAmount = some(decimal.Zero)
	}
	r.check("name", in.Name, "max=120")
	if r.err != nil {
		return GoalInput{}, r.err
	}
	return in, nil
}

func ApplyGoal(g *models.Goal, in GoalInput) {
	assign(&g.Name, in.Name)
	assign(&g.TargetAmount, in.TargetAmount)
	assign(&g.CurrentAmount, in.CurrentAmount)
	assignPtr(&g.Deadline, in.Deadline)
}

type SyncImportInput struct {
	ItemID string
}

func ParseSyncImport(p Payload) (SyncImportInput, error) {
	r := &reader{p: p}
	in := SyncImportInput{ItemID: need(r, "itemId", r.str("itemId"))}
	r.check("itemId", Optional[string]{Value: &in.ItemID}, "max=128")
	if r.err != nil {
		return SyncImportInput{}, r.err
	}
	return in, nil
}
