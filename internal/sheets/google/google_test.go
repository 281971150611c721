package google

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	ports "fintrack/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Ledger")
	if err == nil {
		t.Fatal("expected error for missing spreadsheet ID")
	}
	if err.Error() != "missing spreadsheet ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		old := os.Getenv(key)
		os.Unsetenv(key)
		defer os.Setenv(key, old)
	}

	_, err := New(context.Background(), "test-id", "Ledger")
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("expected credentials error, got: %v", err)
	}
}

func TestNew_InvalidCredentialsJSON(t *testing.T) {
	old := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	defer os.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", old)
	os.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "not-json")

	_, err := New(context.Background(), "test-id", "Ledger")
	if err == nil {
		t.Fatal("expected error with invalid credentials JSON")
	}
}

func TestClient_SheetName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2026, "2026 Ledger"},
		{"Expenses", 1999, "1999 Expenses"},
		{"2025 Ledger", 2026, "2025 Ledger"},
		{"12345", 2026, "2026 12345"},
	}
	for _, tt := range tests {
		c := &Client{sheetBase: tt.base}
		if got := c.sheetName(tt.year); got != tt.want {
			t.Errorf("sheetName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestClient_AppendWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: "Ledger"}

	_, err := c.Append(context.Background(), ports.MirrorRow{
		Date:      time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		Username:  "alice",
		Kind:      "expense",
		Title:     "Coffee",
		Amount:    "3.50",
		Action:    "created",
		Timestamp: time.Now(),
	})
	if err == nil {
		t.Fatal("expected error with nil service")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}
