package types

import "time"

// IssueStatus is the lifecycle state of a reported issue.
type IssueStatus string

const (
	StatusPending    IssueStatus = "Pending"
	StatusInProgress IssueStatus = "In Progress"
	StatusResolved   IssueStatus = "Resolved"
)

// Issue represents a community problem reported by a citizen and tracked
// through its lifecycle. A new issue starts in Pending; a volunteer moves it
// to In Progress and finally to Resolved with a photo of the fixed state.
// Resolved is terminal unless an admin explicitly reopens the issue.
type Issue struct {
	// ID is the unique identifier of the issue.
	ID int `json:"id" db:"id"`

	// Title is a short summary of the problem (5-100 characters).
	Title string `json:"title" db:"title"`

	// Description is the full problem report (20-1000 characters).
	Description string `json:"description" db:"description"`

	// Category labels the kind of problem (e.g. "Road", "Public Lighting").
	Category string `json:"category" db:"category"`

	// Location is the district the issue was reported in.
	Location string `json:"location" db:"location"`

	// ImageURL points at the photo uploaded with the report. Every issue
	// has one; a report without an image file is rejected.
	ImageURL string `json:"image_url" db:"image_url"`

	// ReporterID is the citizen who filed the report and the recipient of
	// all notifications about it.
	ReporterID int `json:"reporter_id" db:"reporter_id"`

	// Latitude and Longitude are optional raw coordinates captured at
	// submission time.
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`

	// Status is the current lifecycle state.
	Status IssueStatus `json:"status" db:"status"`

	// ResolvedImageURL points at the photo uploaded on resolution.
	ResolvedImageURL string `json:"resolved_image_url,omitempty" db:"resolved_image_url"`

	// VolunteerNote is the most recent free-text note left by a volunteer
	// for the reporter.
	VolunteerNote string `json:"volunteer_note,omitempty" db:"volunteer_note"`

	// VerificationConfidence and VerificationReport carry the output of an
	// external image-authenticity pipeline. They are stored and returned
	// verbatim; this service never interprets them.
	VerificationConfidence *int   `json:"verification_confidence,omitempty" db:"verification_confidence"`
	VerificationReport     string `json:"verification_report,omitempty" db:"verification_report"`

	// CreatedAt is the timestamp when the issue was reported.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ResolvedAt is set exactly when the issue transitions to Resolved
	// and cleared again if an admin reopens it.
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	// UpdatedAt is the timestamp of the most recent mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
