package http

import (
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// handleDashboard renders the overview page. Aggregates are computed
// fresh from the ledger on every request.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()

	summary, err := s.store.Summary(ctx, user.ID, time.Time{}, time.Time{})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to compute summary", "error", err, "user_id", user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	series, err := s.store.MonthlySeries(ctx, user.ID, 6)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to compute monthly series", "error", err, "user_id", user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	recent, err := s.store.ListEntries(ctx, user.ID, storage.EntryFilter{Limit: 5})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list recent entries", "error", err, "user_id", user.ID)
	}

	data := struct {
		pageData
		Summary core.Summary
		Series  []core.MonthlyPoint
		Recent  []core.LedgerEntry
	}{
		pageData: s.basePageData(r, user),
		Summary:  summary,
		Series:   series,
		Recent:   recent,
	}
	s.render(w, r, "dashboard.html", data)
}

// handleSummaryAPI serves the dashboard numbers as JSON for the charts.
func (s *Server) handleSummaryAPI(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()

	from, err := parseOptionalDate(r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date"})
		return
	}
	to, err := parseOptionalDate(r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date"})
		return
	}

	summary, err := s.store.Summary(ctx, user.ID, from, to)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to compute summary", "error", err, "user_id", user.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	series, err := s.store.MonthlySeries(ctx, user.ID, 6)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to compute monthly series", "error", err, "user_id", user.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	type categorySlice struct {
		Name   string  `json:"name"`
		Color  string  `json:"color"`
		Amount float64 `json:"amount"`
	}
	type monthPoint struct {
		Label    string  `json:"label"`
		Income   float64 `json:"income"`
		Expenses float64 `json:"expenses"`
	}

	resp := struct {
		TotalIncome   float64         `json:"total_income"`
		TotalExpenses float64         `json:"total_expenses"`
		Balance       float64         `json:"balance"`
		ByCategory    []categorySlice `json:"expense_by_category"`
		Monthly       []monthPoint    `json:"monthly"`
	}{
		TotalIncome:   summary.TotalIncome.Units(),
		TotalExpenses: summary.TotalExpenses.Units(),
		Balance:       summary.Balance.Units(),
		ByCategory:    []categorySlice{},
		Monthly:       []monthPoint{},
	}
	for _, c := range summary.ExpenseByCategory {
		name := c.Name
		if name == "" {
			name = "Uncategorized"
		}
		resp.ByCategory = append(resp.ByCategory, categorySlice{
			Name: name, Color: c.Color, Amount: c.Amount.Units(),
		})
	}
	for _, p := range series {
		resp.Monthly = append(resp.Monthly, monthPoint{
			Label: p.Label(), Income: p.Income.Units(), Expenses: p.Expenses.Units(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
