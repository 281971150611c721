package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func filterAll() storage.EntryFilter {
	return storage.EntryFilter{}
}

func createTestEntry(t *testing.T, s *Server, userID string, kind core.EntryKind, title string) core.LedgerEntry {
	t.Helper()
	entry, err := s.store.CreateEntry(context.Background(), core.LedgerEntry{
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Amount: core.Money{Cents: 4250},
		Date:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return entry
}

func decodeDelete(t *testing.T, body []byte) deleteResult {
	t.Helper()
	var res deleteResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode delete response: %v (%s)", err, body)
	}
	return res
}

func TestEntryDelete_Success(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")
	entry := createTestEntry(t, s, user.ID, core.KindExpense, "Groceries")

	rec := doRequest(s, http.MethodPost, "/expenses/"+entry.ID+"/delete", url.Values{}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d, want 200", rec.Code)
	}
	res := decodeDelete(t, rec.Body.Bytes())
	if !res.Success {
		t.Error("success should be true")
	}
	if res.Message != "Deleted successfully!" {
		t.Errorf("message = %q, want %q", res.Message, "Deleted successfully!")
	}

	// The row is gone.
	if _, err := s.store.GetEntry(context.Background(), user.ID, entry.ID); err == nil {
		t.Error("entry should be deleted")
	}
}

func TestEntryDelete_Missing(t *testing.T) {
	s := newTestServer(t)
	_, cookies := loginAs(t, s, "alice")

	rec := doRequest(s, http.MethodPost, "/expenses/nope/delete", url.Values{}, cookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing = %d, want 404", rec.Code)
	}
	res := decodeDelete(t, rec.Body.Bytes())
	if res.Success {
		t.Error("success should be false")
	}
	if res.Message != "Delete failed. Please try again." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestEntryDelete_ForeignUser(t *testing.T) {
	s := newTestServer(t)
	alice, _ := loginAs(t, s, "alice")
	_, bobCookies := loginAs(t, s, "bob")
	entry := createTestEntry(t, s, alice.ID, core.KindExpense, "Groceries")

	rec := doRequest(s, http.MethodPost, "/expenses/"+entry.ID+"/delete", url.Values{}, bobCookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete = %d, want 404", rec.Code)
	}
	if res := decodeDelete(t, rec.Body.Bytes()); res.Success {
		t.Error("success should be false for another user's entry")
	}

	// Alice's entry is untouched.
	if _, err := s.store.GetEntry(context.Background(), alice.ID, entry.ID); err != nil {
		t.Errorf("entry should survive: %v", err)
	}
}

func TestEntryDelete_WrongKindPath(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")
	entry := createTestEntry(t, s, user.ID, core.KindExpense, "Groceries")

	// Deleting an expense through the incomes route is a 404.
	rec := doRequest(s, http.MethodPost, "/incomes/"+entry.ID+"/delete", url.Values{}, cookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-kind delete = %d, want 404", rec.Code)
	}
}

func TestEntryCreate(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")

	form := url.Values{
		"title":  {"Coffee"},
		"amount": {"3.50"},
		"date":   {"2026-08-12"},
		"note":   {"morning"},
	}
	rec := doRequest(s, http.MethodPost, "/expenses", form, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("create = %d, want redirect", rec.Code)
	}

	entries, err := s.store.ListEntries(context.Background(), user.ID, filterAll())
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Title != "Coffee" || e.Amount.Cents != 350 || e.Note != "morning" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Kind != core.KindExpense {
		t.Errorf("kind = %q, want expense", e.Kind)
	}
}

func TestEntryCreate_InvalidAmount(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")

	for _, amount := range []string{"", "0", "-5", "abc"} {
		form := url.Values{
			"title":  {"Coffee"},
			"amount": {amount},
			"date":   {"2026-08-12"},
		}
		rec := doRequest(s, http.MethodPost, "/expenses", form, cookies)
		if rec.Code != http.StatusSeeOther {
			t.Errorf("amount %q: status = %d, want redirect", amount, rec.Code)
			continue
		}
		loc, _ := url.Parse(rec.Header().Get("Location"))
		if loc.Query().Get("level") != string(NoticeError) {
			t.Errorf("amount %q should redirect with an error notice, got %q", amount, rec.Header().Get("Location"))
		}
	}

	entries, _ := s.store.ListEntries(context.Background(), user.ID, filterAll())
	if len(entries) != 0 {
		t.Errorf("no entries should be created, got %d", len(entries))
	}
}

func TestEntryCreate_RejectsMismatchedCategory(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")

	incomeCat, err := s.store.CreateCategory(context.Background(), core.Category{
		UserID: user.ID, Name: "Salary", Kind: core.CategoryIncome, Icon: "bi-cash", Color: "#27ae60",
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	form := url.Values{
		"title":       {"Coffee"},
		"amount":      {"3.50"},
		"date":        {"2026-08-12"},
		"category_id": {incomeCat.ID},
	}
	rec := doRequest(s, http.MethodPost, "/expenses", form, cookies)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("create = %d", rec.Code)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	if loc.Query().Get("level") != string(NoticeError) {
		t.Error("an income-only category on an expense should be rejected")
	}
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")
	createTestEntry(t, s, user.ID, core.KindExpense, "Groceries")
	createTestEntry(t, s, user.ID, core.KindExpense, "Fuel")
	createTestEntry(t, s, user.ID, core.KindIncome, "Salary")

	rec := doRequest(s, http.MethodGet, "/export/expenses.csv", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	// Header plus the two expenses; the income stays out.
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), rec.Body.String())
	}
	if lines[0] != "Title,Amount,Category,Date,Note,Created At" {
		t.Errorf("header = %q", lines[0])
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Groceries") || !strings.Contains(body, "Fuel") {
		t.Error("expense rows missing")
	}
	if strings.Contains(body, "Salary") {
		t.Error("income row should not appear in expense export")
	}
	if !strings.Contains(body, "42.50") {
		t.Error("amount should be plain decimal")
	}
	if !strings.Contains(body, "Uncategorized") {
		t.Error("entries without a category export as Uncategorized")
	}
}

func TestSummaryAPI(t *testing.T) {
	s := newTestServer(t)
	user, cookies := loginAs(t, s, "alice")
	createTestEntry(t, s, user.ID, core.KindExpense, "Groceries")

	rec := doRequest(s, http.MethodGet, "/api/summary", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary = %d", rec.Code)
	}

	var body struct {
		TotalIncome   float64 `json:"total_income"`
		TotalExpenses float64 `json:"total_expenses"`
		Balance       float64 `json:"balance"`
		Monthly       []struct {
			Label string `json:"label"`
		} `json:"monthly"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TotalExpenses != 42.5 {
		t.Errorf("total_expenses = %v, want 42.5", body.TotalExpenses)
	}
	if body.Balance != -42.5 {
		t.Errorf("balance = %v, want -42.5", body.Balance)
	}
	if len(body.Monthly) != 6 {
		t.Errorf("monthly points = %d, want 6", len(body.Monthly))
	}
}

func TestEntryListLinksKeepFilters(t *testing.T) {
	data := entryListData{
		Search:     "coffee",
		CategoryID: "cat-1",
		DateFrom:   "2026-08-01",
	}

	got, err := url.ParseQuery(strings.TrimPrefix(data.PageQuery(3), "?"))
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	for key, want := range map[string]string{
		"page":      "3",
		"search":    "coffee",
		"category":  "cat-1",
		"date_from": "2026-08-01",
	} {
		if got.Get(key) != want {
			t.Errorf("PageQuery %s = %q, want %q", key, got.Get(key), want)
		}
	}
	if got.Has("amount_min") {
		t.Error("PageQuery should omit unset filters")
	}

	export, err := url.ParseQuery(strings.TrimPrefix(data.ExportQuery(), "?"))
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if export.Get("search") != "coffee" || export.Get("category") != "cat-1" {
		t.Errorf("ExportQuery dropped filters: %q", data.ExportQuery())
	}
	if export.Has("page") {
		t.Error("ExportQuery should not carry a page number")
	}

	if q := (entryListData{}).ExportQuery(); q != "" {
		t.Errorf("ExportQuery with no filters = %q, want empty", q)
	}
}
