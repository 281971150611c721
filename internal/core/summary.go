package core

import "time"

// CategoryAmount is an amount aggregated under one category name.
// Name and Color are empty for uncategorized entries.
type CategoryAmount struct {
	Name   string
	Color  string
	Amount Money
}

// Summary holds the dashboard aggregates for one user and one optional
// date range. Computed fresh per request from the ledger.
type Summary struct {
	TotalIncome       Money
	TotalExpenses     Money
	Balance           Money
	ExpenseByCategory []CategoryAmount
}

// MonthlyPoint is one month of the income/expense series.
type MonthlyPoint struct {
	Year     int
	Month    time.Month
	Income   Money
	Expenses Money
}

// Label renders the point for chart axes, e.g. "Mar 2026".
func (p MonthlyPoint) Label() string {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
}
