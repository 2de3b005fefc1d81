package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default presentation values for new goals
const (
	DefaultGoalIcon  = "🎯"
	DefaultGoalColor = "cyan"
)

// Goal is a savings target tracked locally
type Goal struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Target   decimal.Decimal `json:"target"`
	Current  decimal.Decimal `json:"current"`
	Deadline *time.Time      `json:"deadline,omitempty"`
	Icon     string          `json:"icon"`
	Color    string          `json:"color"`
}

// Deposit returns the goal's new current amount after adding amount,
// clamped to the target. Non-positive amounts leave it unchanged.
func (g Goal) Deposit(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return g.Current
	}
	return decimal.Min(g.Target, g.Current.Add(amount))
}

// IsComplete reports whether the goal reached its target
func (g Goal) IsComplete() bool {
	return g.Current.GreaterThanOrEqual(g.Target)
}

// Percent returns the completion percentage rounded to the nearest integer
func (g Goal) Percent() int {
	if !g.Target.IsPositive() {
		return 0
	}
	pct := g.Current.Mul(decimal.NewFromInt(100)).Div(g.Target).Round(0)
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	return int(pct.IntPart())
}
