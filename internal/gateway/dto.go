package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Client → server message types.
const (
	MsgAddWarrant = "add-warrant"
	MsgDelete     = "delete-entry"
	MsgClearAll   = "clear-all-data"
)

// Server → client event types.
const (
	EvInitialData  = "initial-data"
	EvDataUpdated  = "data-updated"
	EvError        = "error"
	EvNotification = "notification"
)

// AddWarrantMsg is the add-entry command. Grid counts arrive as raw JSON
// because clients send both numbers and numeric strings.
type AddWarrantMsg struct {
	Type          string          `json:"type"`
	WarrantNumber string          `json:"warrantNumber"`
	Username      string          `json:"username"`
	GridsCut      json.RawMessage `json:"gridsCut"`
	GridsRecovery json.RawMessage `json:"gridsRecovery"`
}

// DeleteEntryMsg is the delete-entry command; Timestamp identifies the
// entry within the warrant.
type DeleteEntryMsg struct {
	Type          string `json:"type"`
	WarrantNumber string `json:"warrantNumber"`
	Timestamp     int64  `json:"timestamp"`
}

// ClearAllMsg is the clear-all command. TOTP is required only when the
// server is configured with an admin TOTP secret.
type ClearAllMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	TOTP     string `json:"totp,omitempty"`
}

// ErrorEvent is sent to the originating client only.
type ErrorEvent struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// NotificationEvent is a user-facing notice broadcast to all clients.
type NotificationEvent struct {
	Level   string `json:"type"`
	Message string `json:"message"`
}

// numberString extracts the textual form of a JSON value that may be a
// number or a quoted numeric string. Anything else comes back verbatim
// and fails integer parsing downstream.
func numberString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) >= 2 && raw[0] == '"' {
		if s, err := strconv.Unquote(string(raw)); err == nil {
			return s
		}
	}
	return string(raw)
}
