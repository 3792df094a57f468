package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet history entry kinds.
const (
	EntryIn     = "IN"
	EntryOut    = "OUT"
	EntryFundIn = "FUND_IN"
)

// UserStats is the per-user financial state row.
type UserStats struct {
	UserID        uuid.UUID       `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	WalletSalary  decimal.Decimal `json:"wallet_salary"`
	// UniFund is the earmarked savings balance offset against plan obligations.
	UniFund    decimal.Decimal `json:"wealth_uni_fund"`
	ActivePlan string          `json:"active_uni_plan"`
	UpdatedAt  time.Time       `json:"updated_at,omitempty"`
}

// LiquidBalance is the spendable wallet balance plus the earmarked fund.
func (s UserStats) LiquidBalance() decimal.Decimal {
	return s.WalletBalance.Add(s.UniFund)
}

// WalletEntry is an append-only wallet/fund movement.
type WalletEntry struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
}

// CoachingSession is income from one coaching block.
type CoachingSession struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Date       string          `json:"date"`
	ClientName string          `json:"client_name"`
	Amount     decimal.Decimal `json:"amount"`
	Location   string          `json:"location"`
	Paid       bool            `json:"paid"`
}

// PriorityExpense is a user-tracked purchase goal.
type PriorityExpense struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	TargetDate  string          `json:"target_date"`
	IsFulfilled bool            `json:"is_fulfilled"`
}

// RecurringExpense is a standing monthly debit.
type RecurringExpense struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Title        string          `json:"title"`
	Amount       decimal.Decimal `json:"amount"`
	PeriodMonths int             `json:"period_months"`
}

// FitnessLog is one planned training run.
type FitnessLog struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Phase       string    `json:"phase"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	DistanceCmd string    `json:"distance_cmd"`
	Completed   bool      `json:"completed"`
}
