package sheets

import (
	"context"
	"time"
)

// MirrorRow is one audit line appended to the external spreadsheet.
// Amounts are already formatted; the mirror is write-only bookkeeping,
// never a source of truth.
type MirrorRow struct {
	Date      time.Time
	Username  string
	Kind      string
	Title     string
	Amount    string
	Category  string
	Action    string
	Timestamp time.Time
}

// EntryMirror is the outbound port for the mirror worker.
type EntryMirror interface {
	// Append writes the row and returns a reference to where it landed.
	Append(ctx context.Context, row MirrorRow) (rowRef string, err error)
}
