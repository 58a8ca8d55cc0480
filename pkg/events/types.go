package events

import (
	"time"

	"userdash/pkg/users"
)

// Event describes one mutation of the user collection.
type Event struct {
	ID     string           `json:"event_id"`
	Type   users.ChangeKind `json:"type"`
	UserID int64            `json:"user_id"`
	User   *users.User      `json:"user,omitempty"`
	At     time.Time        `json:"at"`
}

// Hello is sent once right after a subscriber connects.
type Hello struct {
	Type     string `json:"type"` // "hello"
	ClientID string `json:"client_id"`
}
