package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// NotificationLevel classifies a user-facing notification. The page
// script maps each level to an icon and color.
type NotificationLevel string

const (
	NoticeSuccess NotificationLevel = "success"
	NoticeError   NotificationLevel = "error"
	NoticeWarning NotificationLevel = "warning"
	NoticeInfo    NotificationLevel = "info"
)

// Notification is rendered into the page's notification container.
type Notification struct {
	Level   NotificationLevel
	Message string
}

// noticeFromQuery extracts a one-shot notification from redirect query
// parameters, if present.
func noticeFromQuery(r *http.Request) *Notification {
	msg := r.URL.Query().Get("notice")
	if msg == "" {
		return nil
	}
	level := NotificationLevel(r.URL.Query().Get("level"))
	switch level {
	case NoticeSuccess, NoticeError, NoticeWarning, NoticeInfo:
	default:
		level = NoticeInfo
	}
	return &Notification{Level: level, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// deleteResult is the JSON contract for AJAX delete confirmation.
type deleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeDeleteSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, deleteResult{Success: true, Message: message})
}

func writeDeleteFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, deleteResult{Success: false, Message: message})
}
