package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
)

// EntryEventMessage is the lightweight notification published when a
// ledger entry changes. It carries only identifiers; the worker loads
// the full entry from the database.
type EntryEventMessage struct {
	EntryID   string    `json:"entry_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryEventMessage(entryID, userID, action string) *EntryEventMessage {
	return &EntryEventMessage{
		EntryID:   entryID,
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *EntryEventMessage) Validate() error {
	if m.EntryID == "" {
		return fmt.Errorf("entry ID cannot be empty")
	}
	if m.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if m.Action != ActionCreated && m.Action != ActionDeleted {
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

func (m *EntryEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryEventMessageFromJSON(data []byte) (*EntryEventMessage, error) {
	var msg EntryEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
