package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

const entriesPerPage = 20

// entryListData feeds the expense and income list pages.
type entryListData struct {
	pageData
	Kind       core.EntryKind
	Slug       string
	Entries    []core.LedgerEntry
	Categories []core.Category
	Total      core.Money
	Page       int
	TotalPages int

	// Echoed filter values.
	Search     string
	CategoryID string
	DateFrom   string
	DateTo     string
	AmountMin  string
	AmountMax  string
}

// filterValues collects the active filters as query parameters so links
// can carry them along.
func (d entryListData) filterValues() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("search", d.Search)
	set("category", d.CategoryID)
	set("date_from", d.DateFrom)
	set("date_to", d.DateTo)
	set("amount_min", d.AmountMin)
	set("amount_max", d.AmountMax)
	return v
}

// PageQuery builds the query string for a pagination link, preserving
// the active filters.
func (d entryListData) PageQuery(page int) string {
	v := d.filterValues()
	v.Set("page", strconv.Itoa(page))
	return "?" + v.Encode()
}

// ExportQuery builds the query string for the CSV export link. Empty
// when no filters are active.
func (d entryListData) ExportQuery() string {
	v := d.filterValues()
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// entryFilterFromQuery builds the storage filter from the list page's
// filter form. Bad values fall back to "no constraint".
func entryFilterFromQuery(r *http.Request, kind core.EntryKind) (storage.EntryFilter, entryListData) {
	q := r.URL.Query()
	echo := entryListData{
		Kind:       kind,
		Slug:       entrySlug(kind),
		Search:     strings.TrimSpace(q.Get("search")),
		CategoryID: strings.TrimSpace(q.Get("category")),
		DateFrom:   strings.TrimSpace(q.Get("date_from")),
		DateTo:     strings.TrimSpace(q.Get("date_to")),
		AmountMin:  strings.TrimSpace(q.Get("amount_min")),
		AmountMax:  strings.TrimSpace(q.Get("amount_max")),
	}

	f := storage.EntryFilter{
		Kind:       kind,
		Search:     echo.Search,
		CategoryID: echo.CategoryID,
	}
	if t, err := parseOptionalDate(echo.DateFrom); err == nil {
		f.From = t
	}
	if t, err := parseOptionalDate(echo.DateTo); err == nil {
		f.To = t
	}
	if echo.AmountMin != "" {
		if cents, err := core.ParseDecimalToCents(echo.AmountMin); err == nil {
			f.MinCents = cents
		}
	}
	if echo.AmountMax != "" {
		if cents, err := core.ParseDecimalToCents(echo.AmountMax); err == nil {
			f.MaxCents = cents
		}
	}
	return f, echo
}

func (s *Server) handleEntryList(kind core.EntryKind) func(http.ResponseWriter, *http.Request, core.User) {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		filter, data := entryFilterFromQuery(r, kind)
		data.pageData = s.basePageData(r, user)
		data.Page = parsePage(r)

		count, err := s.store.CountEntries(r.Context(), user.ID, filter)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to count entries", "error", err, "user_id", user.ID)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		data.TotalPages = (count + entriesPerPage - 1) / entriesPerPage
		if data.TotalPages > 0 && data.Page > data.TotalPages {
			data.Page = data.TotalPages
		}

		filter.Limit = entriesPerPage
		filter.Offset = (data.Page - 1) * entriesPerPage
		data.Entries, err = s.store.ListEntries(r.Context(), user.ID, filter)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to list entries", "error", err, "user_id", user.ID)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// Total over the whole filtered set, not just the page.
		data.Total, err = s.store.SumEntries(r.Context(), user.ID, filter)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to sum entries", "error", err, "user_id", user.ID)
		}

		data.Categories, err = s.categoriesForKind(r, user.ID, kind)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to list categories", "error", err, "user_id", user.ID)
		}

		s.render(w, r, "entries.html", data)
	}
}

// categoriesForKind returns the user's categories that can tag entries
// of the given kind.
func (s *Server) categoriesForKind(r *http.Request, userID string, kind core.EntryKind) ([]core.Category, error) {
	all, err := s.store.ListCategories(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(all))
	for _, c := range all {
		if c.Kind.Accepts(kind) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Server) handleEntryForm(kind core.EntryKind) func(http.ResponseWriter, *http.Request, core.User) {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		data := struct {
			pageData
			Kind       core.EntryKind
			Slug       string
			Entry      core.LedgerEntry
			Categories []core.Category
			IsEdit     bool
		}{pageData: s.basePageData(r, user), Kind: kind, Slug: entrySlug(kind)}

		if id := r.PathValue("id"); id != "" {
			entry, err := s.store.GetEntry(r.Context(), user.ID, id)
			if err != nil || entry.Kind != kind {
				http.NotFound(w, r)
				return
			}
			data.Entry = entry
			data.IsEdit = true
		}

		cats, err := s.categoriesForKind(r, user.ID, kind)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to list categories", "error", err, "user_id", user.ID)
		}
		data.Categories = cats
		s.render(w, r, "entry_form.html", data)
	}
}

// entryFromForm parses the shared new/edit form. Returns a user-facing
// message on invalid input.
func (s *Server) entryFromForm(r *http.Request, user core.User, kind core.EntryKind) (core.LedgerEntry, string) {
	entry := core.LedgerEntry{
		UserID:     user.ID,
		Kind:       kind,
		Title:      sanitizeInput(r.PostFormValue("title")),
		CategoryID: strings.TrimSpace(r.PostFormValue("category_id")),
		Note:       sanitizeInput(r.PostFormValue("note")),
	}

	cents, err := core.ParseDecimalToCents(r.PostFormValue("amount"))
	if err != nil {
		return entry, "Enter a positive amount."
	}
	entry.Amount = core.Money{Cents: cents}

	date, err := parseDate(r.PostFormValue("date"))
	if err != nil {
		return entry, "Enter a valid date."
	}
	entry.Date = date

	if entry.CategoryID != "" {
		cat, err := s.store.GetCategory(r.Context(), user.ID, entry.CategoryID)
		if err != nil {
			return entry, "Unknown category."
		}
		if !cat.Kind.Accepts(kind) {
			return entry, "That category cannot be used here."
		}
	}

	if err := entry.Validate(); err != nil {
		return entry, err.Error()
	}
	return entry, ""
}

func (s *Server) handleEntryCreate(kind core.EntryKind) func(http.ResponseWriter, *http.Request, core.User) {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		slug := entrySlug(kind)
		entry, msg := s.entryFromForm(r, user, kind)
		if msg != "" {
			redirectWithNotice(w, r, "/"+slug+"/new", NoticeError, msg)
			return
		}

		created, err := s.store.CreateEntry(r.Context(), entry)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to create entry",
				"error", err, "user_id", user.ID, "kind", string(kind))
			redirectWithNotice(w, r, "/"+slug+"/new", NoticeError, "Could not save. Please try again.")
			return
		}

		s.publishEntryEvent(r, created.ID, user.ID, amqp.ActionCreated)
		redirectWithNotice(w, r, "/"+slug, NoticeSuccess, "Saved successfully!")
	}
}

func (s *Server) handleEntryUpdate(kind core.EntryKind) func(http.ResponseWriter, *http.Request, core.User) {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		slug := entrySlug(kind)
		id := r.PathValue("id")
		existing, err := s.store.GetEntry(r.Context(), user.ID, id)
		if err != nil || existing.Kind != kind {
			http.NotFound(w, r)
			return
		}

		entry, msg := s.entryFromForm(r, user, kind)
		if msg != "" {
			redirectWithNotice(w, r, "/"+slug+"/"+id+"/edit", NoticeError, msg)
			return
		}
		entry.ID = id

		if err := s.store.UpdateEntry(r.Context(), entry); err != nil {
			slog.ErrorContext(r.Context(), "Failed to update entry",
				"error", err, "entry_id", id, "user_id", user.ID)
			redirectWithNotice(w, r, "/"+slug+"/"+id+"/edit", NoticeError, "Could not save. Please try again.")
			return
		}
		redirectWithNotice(w, r, "/"+slug, NoticeSuccess, "Saved successfully!")
	}
}

// handleEntryDelete implements the AJAX delete contract: JSON with a
// success flag and message. An entry owned by another user looks the
// same as a missing one.
func (s *Server) handleEntryDelete(kind core.EntryKind) func(http.ResponseWriter, *http.Request, core.User) {
	return func(w http.ResponseWriter, r *http.Request, user core.User) {
		id := r.PathValue("id")

		existing, err := s.store.GetEntry(r.Context(), user.ID, id)
		if err != nil || existing.Kind != kind {
			writeDeleteFailure(w, http.StatusNotFound, "Delete failed. Please try again.")
			return
		}

		if err := s.store.DeleteEntry(r.Context(), user.ID, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeDeleteFailure(w, http.StatusNotFound, "Delete failed. Please try again.")
				return
			}
			slog.ErrorContext(r.Context(), "Failed to delete entry",
				"error", err, "entry_id", id, "user_id", user.ID)
			writeDeleteFailure(w, http.StatusInternalServerError, "Delete failed. Please try again.")
			return
		}

		slog.InfoContext(r.Context(), "Entry deleted",
			"entry_id", id, "user_id", user.ID, "kind", string(kind))
		s.publishEntryEvent(r, id, user.ID, amqp.ActionDeleted)
		writeDeleteSuccess(w, "Deleted successfully!")
	}
}

// publishEntryEvent notifies the mirror queue; failures only log since
// the pending sweep will catch missed entries.
func (s *Server) publishEntryEvent(r *http.Request, entryID, userID, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEntryEvent(r.Context(), entryID, userID, action); err != nil {
		slog.ErrorContext(r.Context(), "Failed to publish entry event",
			"error", err, "entry_id", entryID, "action", action)
	}
}
