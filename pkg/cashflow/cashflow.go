// Package cashflow reduces a classified transaction stream into
// month-normalized income, expense, and per-category totals.
package cashflow

import (
	"strings"

	"github.com/lendflow-in/credscore/pkg/txn"
)

// Average days per month; keeps month normalization stable across
// statements that do not start on month boundaries.
const daysPerMonth = 30.44

// Summary is the aggregated cash-flow view of one statement. All amounts
// are per-month figures.
type Summary struct {
	MonthlyIncome  float64            `json:"monthly_income"`
	MonthlyExpense float64            `json:"monthly_expense"`
	Categories     map[string]float64 `json:"categories"`
	MonthsCovered  float64            `json:"months_covered"`
	Transactions   int                `json:"transactions"`
	Skipped        int                `json:"skipped"`
}

// Aggregate computes the summary for a classified statement. Rows with a
// zero date are excluded from both the span and the sums and counted as
// skipped; the month span floors at 1.0 so single-day statements do not
// blow up the division.
func Aggregate(list []txn.Classified) Summary {
	s := Summary{Categories: make(map[string]float64)}

	var minDate, maxDate int64
	var income, expense float64
	spanSeen := false
	totals := make(map[string]float64)

	for _, t := range list {
		if t.Date.IsZero() {
			s.Skipped++
			continue
		}
		s.Transactions++

		d := t.Date.Unix()
		if !spanSeen || d < minDate {
			minDate = d
		}
		if !spanSeen || d > maxDate {
			maxDate = d
		}
		spanSeen = true

		if t.IsIncome {
			income += t.Amount
		}
		if t.IsExpense {
			expense += t.Amount
		}
		totals[t.Category] += t.Amount
	}

	spanDays := float64(maxDate-minDate) / (24 * 60 * 60)
	s.MonthsCovered = spanDays / daysPerMonth
	if s.MonthsCovered < 1 {
		s.MonthsCovered = 1
	}

	s.MonthlyIncome = income / s.MonthsCovered
	s.MonthlyExpense = expense / s.MonthsCovered
	for c, v := range totals {
		s.Categories[c] = v / s.MonthsCovered
	}

	return s
}

// Features flattens the summary into the numeric feature map consumed by
// the score engine. Category buckets are prefixed with "monthly_".
func (s Summary) Features() map[string]float64 {
	f := map[string]float64{
		"monthly_income":  s.MonthlyIncome,
		"monthly_expense": s.MonthlyExpense,
		"monthly_surplus": s.MonthlyIncome - s.MonthlyExpense,
		"months_covered":  s.MonthsCovered,
	}
	if s.MonthlyIncome > 0 {
		f["expense_ratio"] = s.MonthlyExpense / s.MonthlyIncome
	}
	for c, v := range s.Categories {
		f["monthly_"+strings.ToLower(c)] = v
	}
	return f
}
