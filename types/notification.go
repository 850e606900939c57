package types

import "time"

// Notification types emitted by the issue lifecycle.
const (
	NotificationVolunteerUpdate = "volunteer_update"
	NotificationResolved        = "resolved"
	NotificationReopened        = "reopened"
)

// Notification is a read-mostly record produced when a lifecycle transition
// affects a citizen. Only the read flag is ever mutated; deletion is explicit
// by the recipient.
type Notification struct {
	ID          int       `json:"id" db:"id"`
	UserID      int       `json:"user_id" db:"user_id"`
	IssueID     int       `json:"issue_id" db:"issue_id"`
	VolunteerID *int      `json:"volunteer_id,omitempty" db:"volunteer_id"`
	Title       string    `json:"title" db:"title"`
	Message     string    `json:"message" db:"message"`
	Type        string    `json:"type" db:"type"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
