// Package storage implements the SQLite persistence layer.
// All reads and writes on user data are keyed by user ID: a row owned by
// another user is indistinguishable from a missing one.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// EntryFilter narrows ListEntries and SumEntries.
// Zero values mean "no constraint"; MaxCents of 0 means unbounded.
type EntryFilter struct {
	Kind       core.EntryKind
	Search     string
	CategoryID string
	From       time.Time
	To         time.Time
	MinCents   int64
	MaxCents   int64
	Limit      int
	Offset     int
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- users & profiles ----

// CreateUser inserts the user and an empty profile in one transaction.
func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	user := core.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("username %q: %w", username, ErrDuplicate)
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO profiles (user_id) VALUES (?)`, user.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.User{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username))
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (r *Repository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	var p core.Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, currency, dark_mode, avatar_path FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Currency, &p.DarkMode, &p.AvatarPath)
	if err == sql.ErrNoRows {
		return core.Profile{}, ErrNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdateProfile(ctx context.Context, p core.Profile) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET currency = ?, dark_mode = ?, avatar_path = ? WHERE user_id = ?`,
		p.Currency, p.DarkMode, p.AvatarPath, p.UserID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(res)
}

// ToggleDarkMode flips the stored preference and returns the new value.
func (r *Repository) ToggleDarkMode(ctx context.Context, userID string) (bool, error) {
	var dark bool
	err := r.db.QueryRowContext(ctx,
		`UPDATE profiles SET dark_mode = 1 - dark_mode WHERE user_id = ? RETURNING dark_mode`, userID).
		Scan(&dark)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle dark mode: %w", err)
	}
	return dark, nil
}

// ---- categories ----

// SeedDefaultCategories creates the fixed default set for a new user.
// Safe to call more than once: rows that already exist are skipped.
func (r *Repository) SeedDefaultCategories(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range core.DefaultCategories() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, user_id, name, kind, icon, color, is_default)
			 VALUES (?, ?, ?, ?, ?, ?, 1)
			 ON CONFLICT (user_id, name) DO NOTHING`,
			uuid.NewString(), userID, c.Name, string(c.Kind), c.Icon, c.Color)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, kind, icon, color, is_default, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Kind), c.Icon, c.Color, c.IsDefault, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, ErrDuplicate)
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *Repository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	var c core.Category
	var kind string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, kind, icon, color, is_default, created_at
		 FROM categories WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.Icon, &c.Color, &c.IsDefault, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return core.Category{}, ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.Kind = core.CategoryKind(kind)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, kind, icon, color, is_default, created_at
		 FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.Icon, &c.Color, &c.IsDefault, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, kind = ?, icon = ?, color = ? WHERE id = ? AND user_id = ?`,
		c.Name, string(c.Kind), c.Icon, c.Color, c.ID, c.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("update category: %w", err)
	}
	return requireRow(res)
}

// DeleteCategory removes a category and detaches its entries in the same
// transaction. Entries survive uncategorized.
func (r *Repository) DeleteCategory(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE ledger_entries SET category_id = NULL WHERE user_id = ? AND category_id = ?`,
		userID, id)
	if err != nil {
		return fmt.Errorf("detach entries: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ---- ledger entries ----

const entryColumns = `e.id, e.user_id, COALESCE(e.category_id, ''), e.kind, e.title,
	e.amount_cents, e.entry_date, e.note, e.created_at, e.updated_at,
	COALESCE(c.name, ''), COALESCE(c.color, '')`

func (r *Repository) CreateEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	if err := e.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}
	if e.CategoryID != "" {
		if _, err := r.GetCategory(ctx, e.UserID, e.CategoryID); err != nil {
			return core.LedgerEntry{}, err
		}
	}
	e.ID = uuid.NewString()
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, category_id, kind, title, amount_cents, entry_date, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, nullable(e.CategoryID), string(e.Kind), e.Title,
		e.Amount.Cents, e.Date.Format(dateLayout), e.Note, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert entry: %w", err)
	}

	slog.InfoContext(ctx, "Ledger entry created",
		"entry_id", e.ID,
		"user_id", e.UserID,
		"kind", string(e.Kind),
		"amount_cents", e.Amount.Cents)
	return e, nil
}

func (r *Repository) GetEntry(ctx context.Context, userID, id string) (core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+`
		 FROM ledger_entries e LEFT JOIN categories c ON c.id = e.category_id
		 WHERE e.id = ? AND e.user_id = ?`, id, userID)
	return scanEntry(row)
}

func (r *Repository) UpdateEntry(ctx context.Context, e core.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.CategoryID != "" {
		if _, err := r.GetCategory(ctx, e.UserID, e.CategoryID); err != nil {
			return err
		}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries
		 SET category_id = ?, title = ?, amount_cents = ?, entry_date = ?, note = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		nullable(e.CategoryID), e.Title, e.Amount.Cents, e.Date.Format(dateLayout),
		e.Note, time.Now().UTC(), e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) DeleteEntry(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) ListEntries(ctx context.Context, userID string, f EntryFilter) ([]core.LedgerEntry, error) {
	where, args := buildEntryWhere(userID, f)
	q := `SELECT ` + entryColumns + `
		 FROM ledger_entries e LEFT JOIN categories c ON c.id = e.category_id
		 WHERE ` + where + ` ORDER BY e.entry_date DESC, e.created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumEntries totals the amounts matching the filter (limit/offset ignored).
func (r *Repository) SumEntries(ctx context.Context, userID string, f EntryFilter) (core.Money, error) {
	where, args := buildEntryWhere(userID, f)
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(e.amount_cents), 0) FROM ledger_entries e WHERE `+where, args...).
		Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum entries: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// CountEntries counts the rows matching the filter, for pagination.
func (r *Repository) CountEntries(ctx context.Context, userID string, f EntryFilter) (int, error) {
	where, args := buildEntryWhere(userID, f)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries e WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func buildEntryWhere(userID string, f EntryFilter) (string, []any) {
	conds := []string{"e.user_id = ?"}
	args := []any{userID}

	if f.Kind != "" {
		conds = append(conds, "e.kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		conds = append(conds, "(e.title LIKE ? OR e.note LIKE ?)")
		args = append(args, like, like)
	}
	if f.CategoryID != "" {
		conds = append(conds, "e.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "e.entry_date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "e.entry_date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}
	if f.MinCents > 0 {
		conds = append(conds, "e.amount_cents >= ?")
		args = append(args, f.MinCents)
	}
	if f.MaxCents > 0 {
		conds = append(conds, "e.amount_cents <= ?")
		args = append(args, f.MaxCents)
	}
	return strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.LedgerEntry, error) {
	var e core.LedgerEntry
	var kind, date string
	err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &kind, &e.Title,
		&e.Amount.Cents, &date, &e.Note, &e.CreatedAt, &e.UpdatedAt,
		&e.CategoryName, &e.CategoryColor)
	if err == sql.ErrNoRows {
		return core.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = core.EntryKind(kind)
	if e.Date, err = time.Parse(dateLayout, date); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("parse entry date %q: %w", date, err)
	}
	return e, nil
}

// ---- aggregation ----

// Summary computes dashboard totals and the expense breakdown for an
// optional date range. No caching: fresh from the ledger on every call.
func (r *Repository) Summary(ctx context.Context, userID string, from, to time.Time) (core.Summary, error) {
	var s core.Summary
	var err error

	if s.TotalIncome, err = r.SumEntries(ctx, userID, EntryFilter{Kind: core.KindIncome, From: from, To: to}); err != nil {
		return core.Summary{}, err
	}
	if s.TotalExpenses, err = r.SumEntries(ctx, userID, EntryFilter{Kind: core.KindExpense, From: from, To: to}); err != nil {
		return core.Summary{}, err
	}
	s.Balance = core.Money{Cents: s.TotalIncome.Cents - s.TotalExpenses.Cents}

	where, args := buildEntryWhere(userID, EntryFilter{Kind: core.KindExpense, From: from, To: to})
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(c.name, ''), COALESCE(c.color, ''), SUM(e.amount_cents) AS total
		 FROM ledger_entries e LEFT JOIN categories c ON c.id = e.category_id
		 WHERE `+where+`
		 GROUP BY e.category_id ORDER BY total DESC LIMIT 8`, args...)
	if err != nil {
		return core.Summary{}, fmt.Errorf("expense breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Color, &ca.Amount.Cents); err != nil {
			return core.Summary{}, fmt.Errorf("scan breakdown: %w", err)
		}
		s.ExpenseByCategory = append(s.ExpenseByCategory, ca)
	}
	return s, rows.Err()
}

// MonthlySeries returns one point per month for the last `months` months,
// oldest first. Months with no entries are included as zeros.
func (r *Repository) MonthlySeries(ctx context.Context, userID string, months int) ([]core.MonthlyPoint, error) {
	if months < 1 {
		months = 6
	}
	now := time.Now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(e.entry_date, 1, 7) AS ym, e.kind, SUM(e.amount_cents)
		 FROM ledger_entries e
		 WHERE e.user_id = ? AND e.entry_date >= ?
		 GROUP BY ym, e.kind`, userID, first.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("monthly series: %w", err)
	}
	defer rows.Close()

	type pair struct{ income, expenses int64 }
	byMonth := map[string]*pair{}
	for rows.Next() {
		var ym, kind string
		var cents int64
		if err := rows.Scan(&ym, &kind, &cents); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		p, ok := byMonth[ym]
		if !ok {
			p = &pair{}
			byMonth[ym] = p
		}
		if kind == string(core.KindIncome) {
			p.income = cents
		} else {
			p.expenses = cents
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]core.MonthlyPoint, 0, months)
	for i := 0; i < months; i++ {
		m := first.AddDate(0, i, 0)
		point := core.MonthlyPoint{Year: m.Year(), Month: m.Month()}
		if p, ok := byMonth[m.Format("2006-01")]; ok {
			point.Income = core.Money{Cents: p.income}
			point.Expenses = core.Money{Cents: p.expenses}
		}
		out = append(out, point)
	}
	return out, nil
}

// ---- mirror bookkeeping ----

// GetPendingMirrorEntries returns entries not yet mirrored, across users.
func (r *Repository) GetPendingMirrorEntries(ctx context.Context, limit int) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+`
		 FROM ledger_entries e LEFT JOIN categories c ON c.id = e.category_id
		 WHERE e.mirror_status = 'pending'
		 ORDER BY e.created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirror entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) MarkMirrored(ctx context.Context, id string) error {
	return r.setMirrorStatus(ctx, id, "synced")
}

func (r *Repository) MarkMirrorError(ctx context.Context, id string) error {
	return r.setMirrorStatus(ctx, id, "error")
}

func (r *Repository) setMirrorStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET mirror_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set mirror status: %w", err)
	}
	return requireRow(res)
}

// ---- helpers ----

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
