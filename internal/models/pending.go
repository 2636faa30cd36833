package models

import (
	"fmt"
	"time"
)

// PendingLink is an in-flight passwordless link request, keyed by lowercased
// nickname. The verification code and the requesting channel identity live in
// the same entry so they are created and consumed as one unit.
type PendingLink struct {
	Kind      string
	UserID    int64
	Code      int
	CreatedAt time.Time
}

// RegistrationCounter tracks how many accounts one external identity has
// registered inside the current window. The window is measured from CreatedAt
// and resets together with the counter when the purge sweep evicts the entry.
type RegistrationCounter struct {
	Count     int
	CreatedAt time.Time
}

// ChannelKey builds the cache key for a (kind, external user ID) pair.
func ChannelKey(kind string, userID int64) string {
	return fmt.Sprintf("%s|%d", kind, userID)
}
