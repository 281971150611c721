package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *Repository, username string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mustCreateEntry(t *testing.T, repo *Repository, e core.LedgerEntry) core.LedgerEntry {
	t.Helper()
	out, err := repo.CreateEntry(context.Background(), e)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return out
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	repo := newTestRepo(t)
	newTestUser(t, repo, "alice")

	_, err := repo.CreateUser(context.Background(), "alice", "hash")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// COLLATE NOCASE makes the uniqueness case-insensitive.
	_, err = repo.CreateUser(context.Background(), "Alice", "hash")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for case variant, got %v", err)
	}
}

func TestCreateUser_CreatesProfile(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	p, err := repo.GetProfile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Currency != "$" {
		t.Errorf("currency = %q, want $", p.Currency)
	}
	if p.DarkMode {
		t.Errorf("dark mode should default to false")
	}
}

func TestGetUser(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	got, err := repo.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %q, want %q", got.ID, u.ID)
	}

	if _, err := repo.GetUserByID(context.Background(), u.ID); err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}

	if _, err := repo.GetUserByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleDarkMode(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	dark, err := repo.ToggleDarkMode(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ToggleDarkMode: %v", err)
	}
	if !dark {
		t.Errorf("first toggle should enable dark mode")
	}

	dark, err = repo.ToggleDarkMode(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ToggleDarkMode: %v", err)
	}
	if dark {
		t.Errorf("second toggle should restore light mode")
	}

	if _, err := repo.ToggleDarkMode(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSeedDefaultCategories_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	for i := 0; i < 2; i++ {
		if err := repo.SeedDefaultCategories(context.Background(), u.ID); err != nil {
			t.Fatalf("SeedDefaultCategories (run %d): %v", i+1, err)
		}
	}

	cats, err := repo.ListCategories(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("got %d categories, want %d", len(cats), len(core.DefaultCategories()))
	}
	for _, c := range cats {
		if !c.IsDefault {
			t.Errorf("category %q should be marked default", c.Name)
		}
	}
}

func TestCategoryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	created, err := repo.CreateCategory(context.Background(), core.Category{
		UserID: u.ID, Name: "Books", Kind: core.CategoryExpense, Icon: "bi-book", Color: "#112233",
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	_, err = repo.CreateCategory(context.Background(), core.Category{
		UserID: u.ID, Name: "Books", Kind: core.CategoryExpense, Icon: "bi-book", Color: "#112233",
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same name, got %v", err)
	}

	created.Name = "Novels"
	if err := repo.UpdateCategory(context.Background(), created); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}

	got, err := repo.GetCategory(context.Background(), u.ID, created.ID)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if got.Name != "Novels" {
		t.Errorf("name = %q, want Novels", got.Name)
	}

	if err := repo.DeleteCategory(context.Background(), u.ID, created.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if _, err := repo.GetCategory(context.Background(), u.ID, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCategory_SameNameDifferentUsers(t *testing.T) {
	repo := newTestRepo(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")

	for _, u := range []core.User{alice, bob} {
		_, err := repo.CreateCategory(context.Background(), core.Category{
			UserID: u.ID, Name: "Books", Kind: core.CategoryExpense, Icon: "bi-book", Color: "#112233",
		})
		if err != nil {
			t.Fatalf("CreateCategory for %s: %v", u.Username, err)
		}
	}
}

func TestDeleteCategory_DetachesEntries(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	cat, err := repo.CreateCategory(context.Background(), core.Category{
		UserID: u.ID, Name: "Books", Kind: core.CategoryExpense, Icon: "bi-book", Color: "#112233",
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	entry := mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, CategoryID: cat.ID, Kind: core.KindExpense,
		Title: "Paperback", Amount: core.Money{Cents: 1299}, Date: date(2026, 8, 1),
	})

	if err := repo.DeleteCategory(context.Background(), u.ID, cat.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}

	got, err := repo.GetEntry(context.Background(), u.ID, entry.ID)
	if err != nil {
		t.Fatalf("entry should survive category delete: %v", err)
	}
	if got.CategoryID != "" {
		t.Errorf("category ID should be cleared, got %q", got.CategoryID)
	}
	if got.CategoryName != "" {
		t.Errorf("category name should be empty, got %q", got.CategoryName)
	}
}

func TestEntryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	entry := mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "Groceries", Amount: core.Money{Cents: 4250}, Date: date(2026, 8, 10), Note: "weekly shop",
	})
	if entry.ID == "" {
		t.Fatalf("expected generated ID")
	}

	entry.Title = "Groceries and sundries"
	entry.Amount = core.Money{Cents: 4900}
	if err := repo.UpdateEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	got, err := repo.GetEntry(context.Background(), u.ID, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Title != "Groceries and sundries" || got.Amount.Cents != 4900 {
		t.Errorf("update not persisted: %+v", got)
	}
	if !got.Date.Equal(date(2026, 8, 10)) {
		t.Errorf("date = %v, want 2026-08-10", got.Date)
	}

	if err := repo.DeleteEntry(context.Background(), u.ID, entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if err := repo.DeleteEntry(context.Background(), u.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestEntry_CrossUserIsolation(t *testing.T) {
	repo := newTestRepo(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")

	entry := mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: alice.ID, Kind: core.KindExpense,
		Title: "Lunch", Amount: core.Money{Cents: 900}, Date: date(2026, 8, 10),
	})

	if _, err := repo.GetEntry(context.Background(), bob.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user's entry, got %v", err)
	}
	if err := repo.DeleteEntry(context.Background(), bob.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting other user's entry, got %v", err)
	}

	// Alice still owns the row.
	if _, err := repo.GetEntry(context.Background(), alice.ID, entry.ID); err != nil {
		t.Fatalf("owner should still see entry: %v", err)
	}
}

func TestCreateEntry_RejectsForeignCategory(t *testing.T) {
	repo := newTestRepo(t)
	alice := newTestUser(t, repo, "alice")
	bob := newTestUser(t, repo, "bob")

	cat, err := repo.CreateCategory(context.Background(), core.Category{
		UserID: bob.ID, Name: "Books", Kind: core.CategoryExpense, Icon: "bi-book", Color: "#112233",
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	_, err = repo.CreateEntry(context.Background(), core.LedgerEntry{
		UserID: alice.ID, CategoryID: cat.ID, Kind: core.KindExpense,
		Title: "Paperback", Amount: core.Money{Cents: 1299}, Date: date(2026, 8, 1),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign category, got %v", err)
	}
}

func TestListEntries_Filters(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	cat, err := repo.CreateCategory(context.Background(), core.Category{
		UserID: u.ID, Name: "Food", Kind: core.CategoryExpense, Icon: "bi-cup-hot", Color: "#e74c3c",
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, CategoryID: cat.ID, Kind: core.KindExpense,
		Title: "Groceries", Amount: core.Money{Cents: 4250}, Date: date(2026, 8, 10),
	})
	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "Bus ticket", Amount: core.Money{Cents: 250}, Date: date(2026, 7, 2), Note: "monthly pass",
	})
	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindIncome,
		Title: "Salary", Amount: core.Money{Cents: 250000}, Date: date(2026, 8, 1),
	})

	tests := []struct {
		name       string
		filter     EntryFilter
		wantTitles []string
	}{
		{
			name:       "by kind",
			filter:     EntryFilter{Kind: core.KindIncome},
			wantTitles: []string{"Salary"},
		},
		{
			name:       "search matches note",
			filter:     EntryFilter{Search: "monthly"},
			wantTitles: []string{"Bus ticket"},
		},
		{
			name:       "search matches title case variant",
			filter:     EntryFilter{Search: "groc"},
			wantTitles: []string{"Groceries"},
		},
		{
			name:       "by category",
			filter:     EntryFilter{CategoryID: cat.ID},
			wantTitles: []string{"Groceries"},
		},
		{
			name:       "date range",
			filter:     EntryFilter{From: date(2026, 8, 1), To: date(2026, 8, 31)},
			wantTitles: []string{"Groceries", "Salary"},
		},
		{
			name:       "amount range",
			filter:     EntryFilter{MinCents: 1000, MaxCents: 10000},
			wantTitles: []string{"Groceries"},
		},
		{
			name:       "no match",
			filter:     EntryFilter{Search: "yacht"},
			wantTitles: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListEntries(context.Background(), u.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListEntries: %v", err)
			}
			if len(got) != len(tt.wantTitles) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.wantTitles))
			}
			titles := map[string]bool{}
			for _, e := range got {
				titles[e.Title] = true
			}
			for _, want := range tt.wantTitles {
				if !titles[want] {
					t.Errorf("missing entry %q in result", want)
				}
			}
		})
	}
}

func TestListEntries_OrderAndPagination(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	for i, d := range []time.Time{date(2026, 8, 1), date(2026, 8, 3), date(2026, 8, 2)} {
		mustCreateEntry(t, repo, core.LedgerEntry{
			UserID: u.ID, Kind: core.KindExpense,
			Title: []string{"first", "third", "second"}[i],
			Amount: core.Money{Cents: 100}, Date: d,
		})
	}

	got, err := repo.ListEntries(context.Background(), u.ID, EntryFilter{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if got[0].Title != "third" || got[2].Title != "first" {
		t.Errorf("expected newest first, got %q .. %q", got[0].Title, got[2].Title)
	}

	page, err := repo.ListEntries(context.Background(), u.ID, EntryFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListEntries paged: %v", err)
	}
	if len(page) != 1 || page[0].Title != "first" {
		t.Errorf("expected last page [first], got %+v", page)
	}

	n, err := repo.CountEntries(context.Background(), u.ID, EntryFilter{})
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestSummary(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	food, _ := repo.CreateCategory(context.Background(), core.Category{
		UserID: u.ID, Name: "Food", Kind: core.CategoryExpense, Icon: "bi-cup-hot", Color: "#e74c3c",
	})

	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, CategoryID: food.ID, Kind: core.KindExpense,
		Title: "Groceries", Amount: core.Money{Cents: 4000}, Date: date(2026, 8, 10),
	})
	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "Misc", Amount: core.Money{Cents: 1000}, Date: date(2026, 8, 11),
	})
	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindIncome,
		Title: "Salary", Amount: core.Money{Cents: 250000}, Date: date(2026, 8, 1),
	})

	s, err := repo.Summary(context.Background(), u.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalIncome.Cents != 250000 {
		t.Errorf("income = %d, want 250000", s.TotalIncome.Cents)
	}
	if s.TotalExpenses.Cents != 5000 {
		t.Errorf("expenses = %d, want 5000", s.TotalExpenses.Cents)
	}
	if s.Balance.Cents != 245000 {
		t.Errorf("balance = %d, want 245000", s.Balance.Cents)
	}
	if len(s.ExpenseByCategory) != 2 {
		t.Fatalf("breakdown size = %d, want 2", len(s.ExpenseByCategory))
	}
	// Ordered by amount, largest first; uncategorized spending shows
	// under an empty name.
	if s.ExpenseByCategory[0].Name != "Food" || s.ExpenseByCategory[0].Amount.Cents != 4000 {
		t.Errorf("top breakdown = %+v, want Food/4000", s.ExpenseByCategory[0])
	}
	if s.ExpenseByCategory[1].Name != "" || s.ExpenseByCategory[1].Amount.Cents != 1000 {
		t.Errorf("second breakdown = %+v, want uncategorized/1000", s.ExpenseByCategory[1])
	}
}

func TestSummary_DateRange(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "In range", Amount: core.Money{Cents: 1000}, Date: date(2026, 8, 10),
	})
	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "Out of range", Amount: core.Money{Cents: 9999}, Date: date(2025, 1, 1),
	})

	s, err := repo.Summary(context.Background(), u.ID, date(2026, 8, 1), date(2026, 8, 31))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalExpenses.Cents != 1000 {
		t.Errorf("expenses = %d, want 1000", s.TotalExpenses.Cents)
	}
}

func TestMonthlySeries(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	now := time.Now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 15, 0, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)

	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "Rent", Amount: core.Money{Cents: 120000}, Date: thisMonth,
	})
	mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindIncome,
		Title: "Salary", Amount: core.Money{Cents: 250000}, Date: lastMonth,
	})

	series, err := repo.MonthlySeries(context.Background(), u.ID, 6)
	if err != nil {
		t.Fatalf("MonthlySeries: %v", err)
	}
	if len(series) != 6 {
		t.Fatalf("series length = %d, want 6", len(series))
	}

	last := series[5]
	if last.Expenses.Cents != 120000 {
		t.Errorf("current month expenses = %d, want 120000", last.Expenses.Cents)
	}
	prev := series[4]
	if prev.Income.Cents != 250000 {
		t.Errorf("previous month income = %d, want 250000", prev.Income.Cents)
	}
	// Empty months are zero-filled.
	if series[0].Income.Cents != 0 || series[0].Expenses.Cents != 0 {
		t.Errorf("oldest month should be zero, got %+v", series[0])
	}
}

func TestMirrorStatusLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "alice")

	entry := mustCreateEntry(t, repo, core.LedgerEntry{
		UserID: u.ID, Kind: core.KindExpense,
		Title: "Groceries", Amount: core.Money{Cents: 4250}, Date: date(2026, 8, 10),
	})

	pending, err := repo.GetPendingMirrorEntries(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPendingMirrorEntries: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != entry.ID {
		t.Fatalf("expected one pending entry, got %d", len(pending))
	}

	if err := repo.MarkMirrored(context.Background(), entry.ID); err != nil {
		t.Fatalf("MarkMirrored: %v", err)
	}
	pending, err = repo.GetPendingMirrorEntries(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPendingMirrorEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending entries after mark, got %d", len(pending))
	}

	if err := repo.MarkMirrorError(context.Background(), entry.ID); err != nil {
		t.Fatalf("MarkMirrorError: %v", err)
	}
	if err := repo.MarkMirrored(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
