package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Loan struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"-"`
	Name         string           `json:"name"`
	Lender       *string          `json:"lender"`
	Amount       decimal.Decimal  `json:"amount"`
	InterestRate *decimal.Decimal `json:"interestRate"`
	DueDate      *time.Time       `json:"dueDate"`
	IsPaid       bool             `json:"isPaid"`
	PaidAt       *time.Time       `json:"paidAt"`
	Notes        *string          `json:"notes"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type Subscription struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"-"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	BillingCycle    string          `json:"billingCycle"`
	NextBillingDate *time.Time      `json:"nextBillingDate"`
	Category        *string         `json:"category"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type Budget struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"-"`
	Name        string          `json:"name"`
	Category    *string         `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   *time.Time      `json:"periodEnd"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Goal struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"-"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Deadline      *time.Time      `json:"deadline"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
