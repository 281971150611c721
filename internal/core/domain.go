package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	KindExpense EntryKind = "expense"
	KindIncome  EntryKind = "income"

	CategoryExpense CategoryKind = "expense"
	CategoryIncome  CategoryKind = "income"
	CategoryBoth    CategoryKind = "both"
)

type (
	EntryKind    string
	CategoryKind string

	Money struct {
		Cents int64
	}

	User struct {
		ID           string
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Profile holds per-user display preferences.
	Profile struct {
		UserID     string
		Currency   string
		DarkMode   bool
		AvatarPath string
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		Kind      CategoryKind
		Icon      string
		Color     string
		IsDefault bool
		CreatedAt time.Time
	}

	// LedgerEntry is a single expense or income record owned by one user.
	// CategoryID may be empty: entries survive deletion of their category.
	LedgerEntry struct {
		ID         string
		UserID     string
		CategoryID string
		Kind       EntryKind
		Title      string
		Amount     Money
		Date       time.Time
		Note       string
		CreatedAt  time.Time
		UpdatedAt  time.Time

		// Populated on reads via join, never written.
		CategoryName  string
		CategoryColor string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidKind     = errors.New("invalid kind")
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrNoteTooLong     = errors.New("note too long (max 1000 characters)")
	ErrEmptyName       = errors.New("empty category name")
	ErrNameTooLong     = errors.New("category name too long (max 100 characters)")
	ErrInvalidColor    = errors.New("invalid color (expected #rrggbb)")
	ErrInvalidUsername = errors.New("username must be 3-20 letters, digits or underscores")
)

var (
	colorRe    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)
)

func (k EntryKind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (k CategoryKind) Valid() bool {
	return k == CategoryExpense || k == CategoryIncome || k == CategoryBoth
}

// Accepts checks whether a category of this kind can tag an entry of kind ek.
func (k CategoryKind) Accepts(ek EntryKind) bool {
	return k == CategoryBoth || string(k) == string(ek)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func ValidateUsername(name string) error {
	if !usernameRe.MatchString(name) {
		return ErrInvalidUsername
	}
	return nil
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 100 {
		return ErrNameTooLong
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	if c.Color != "" && !colorRe.MatchString(c.Color) {
		return ErrInvalidColor
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return ErrTitleTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(e.Note) > 1000 {
		return ErrNoteTooLong
	}
	return nil
}
