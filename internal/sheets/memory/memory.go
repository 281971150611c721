// Package memory is an in-process mirror used in tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows []sheets.MirrorRow

	// FailNext makes the next Append return an error, for testing the
	// worker's error path.
	FailNext bool
}

var _ sheets.EntryMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

// Append stores the row and returns a synthetic row reference.
func (m *Mirror) Append(_ context.Context, row sheets.MirrorRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return "", fmt.Errorf("append rejected")
	}
	m.rows = append(m.rows, row)
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (m *Mirror) Rows() []sheets.MirrorRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sheets.MirrorRow(nil), m.rows...)
}
