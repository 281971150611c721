// Package worker mirrors ledger entries from SQLite to an external
// spreadsheet as an append-only audit trail.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

type MirrorWorker struct {
	storage   *storage.Repository
	mirror    sheets.EntryMirror
	batchSize int
}

func NewMirrorWorker(storage *storage.Repository, mirror sheets.EntryMirror, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		storage:   storage,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleEntryEvent processes one entry event from the queue. Deleted
// entries are mirrored from the message alone since the row is gone.
func (w *MirrorWorker) HandleEntryEvent(ctx context.Context, msg *amqp.EntryEventMessage) error {
	slog.InfoContext(ctx, "Processing entry event",
		"entry_id", msg.EntryID,
		"action", msg.Action)

	if msg.Action == amqp.ActionDeleted {
		return w.mirrorDeletion(ctx, msg)
	}

	entry, err := w.storage.GetEntry(ctx, msg.UserID, msg.EntryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Entry was removed before we got to it; the deletion event
			// carries its own audit row.
			slog.WarnContext(ctx, "Entry gone before mirroring, skipping",
				"entry_id", msg.EntryID)
			return nil
		}
		return fmt.Errorf("get entry from storage: %w", err)
	}

	return w.mirrorEntry(ctx, entry, amqp.ActionCreated)
}

func (w *MirrorWorker) mirrorDeletion(ctx context.Context, msg *amqp.EntryEventMessage) error {
	username := w.lookupUsername(ctx, msg.UserID)
	row := sheets.MirrorRow{
		Date:      msg.Timestamp,
		Username:  username,
		Action:    amqp.ActionDeleted,
		Title:     msg.EntryID,
		Timestamp: time.Now().UTC(),
	}
	ref, err := w.mirror.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append deletion to mirror: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored entry deletion",
		"entry_id", msg.EntryID,
		"mirror_ref", ref)
	return nil
}

func (w *MirrorWorker) mirrorEntry(ctx context.Context, entry core.LedgerEntry, action string) error {
	row := sheets.MirrorRow{
		Date:      entry.Date,
		Username:  w.lookupUsername(ctx, entry.UserID),
		Kind:      string(entry.Kind),
		Title:     entry.Title,
		Amount:    entry.Amount.Format("$"),
		Category:  entry.CategoryName,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}

	ref, err := w.mirror.Append(ctx, row)
	if err != nil {
		if markErr := w.storage.MarkMirrorError(ctx, entry.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark mirror error",
				"entry_id", entry.ID, "error", markErr)
		}
		return fmt.Errorf("append to mirror: %w", err)
	}

	if err := w.storage.MarkMirrored(ctx, entry.ID); err != nil {
		// The mirror write went through; log and move on.
		slog.ErrorContext(ctx, "Failed to mark as mirrored",
			"entry_id", entry.ID, "error", err)
	}

	slog.InfoContext(ctx, "Mirrored entry",
		"entry_id", entry.ID,
		"mirror_ref", ref,
		"title", entry.Title,
		"amount_cents", entry.Amount.Cents)
	return nil
}

func (w *MirrorWorker) lookupUsername(ctx context.Context, userID string) string {
	u, err := w.storage.GetUserByID(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Could not resolve username for mirror row",
			"user_id", userID, "error", err)
		return userID
	}
	return u.Username
}

// ProcessPending mirrors entries whose queue message was lost. Called
// periodically as a backup to the event stream.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingMirrorEntries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending entries", "count", len(pending))

	for _, entry := range pending {
		if err := w.mirrorEntry(ctx, entry, amqp.ActionCreated); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror pending entry",
				"entry_id", entry.ID, "error", err)
		}
	}
	return nil
}

// StartupCheck drains a larger backlog once at worker startup, to
// recover from downtime.
func (w *MirrorWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingMirrorEntries(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending entries for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending entries found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending entries on startup, processing...",
		"count", len(pending))

	synced := 0
	failed := 0
	for _, entry := range pending {
		if err := w.mirrorEntry(ctx, entry, amqp.ActionCreated); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror entry during startup",
				"entry_id", entry.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup mirror check completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}
