package http

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/core"
)

// handleExportCSV streams all of the user's entries of one kind as CSV.
// The current filter form values apply, so the download matches what
// the list page shows.
func (s *Server) handleExportCSV(kind core.EntryKind) func(http.ResponseWriter, *http.Request, core.User) {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		filter, _ := entryFilterFromQuery(r, kind)
		entries, err := s.store.ListEntries(r.Context(), user.ID, filter)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to list entries for export",
				"error", err, "user_id", user.ID, "kind", string(kind))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		filename := entrySlug(kind) + "_" + time.Now().Format("2006-01-02") + ".csv"
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"Title", "Amount", "Category", "Date", "Note", "Created At"}); err != nil {
			slog.ErrorContext(r.Context(), "CSV header write failed", "error", err)
			return
		}
		for _, e := range entries {
			category := e.CategoryName
			if category == "" {
				category = "Uncategorized"
			}
			record := []string{
				e.Title,
				e.Amount.Format(""),
				category,
				e.Date.Format("2006-01-02"),
				e.Note,
				e.CreatedAt.Format("2006-01-02 15:04:05"),
			}
			if err := cw.Write(record); err != nil {
				slog.ErrorContext(r.Context(), "CSV row write failed", "error", err, "entry_id", e.ID)
				return
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			slog.ErrorContext(r.Context(), "CSV flush failed", "error", err)
		}

		slog.InfoContext(r.Context(), "CSV export served",
			"user_id", user.ID, "kind", string(kind), "rows", len(entries))
	}
}
