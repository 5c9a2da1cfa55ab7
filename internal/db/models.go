package db

import (
	"time"
)

type Printer struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Online           bool       `json:"online"`
	CapabilitiesJSON string     `json:"capabilities_json"`
	LastSeenAt       *time.Time `json:"last_seen_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const (
	SubmissionSubmitted = "submitted"
	SubmissionFailed    = "failed"
	SubmissionRejected  = "rejected"
)

// Submission records one request sent to the print backend, or refused
// before it could be sent.
type Submission struct {
	ID              int64     `json:"id"`
	Reference       string    `json:"reference"`
	ParentReference string    `json:"parent_reference,omitempty"`
	PrinterID       int64     `json:"printer_id"`
	ContentType     string    `json:"content_type"`
	Source          string    `json:"source"`
	Title           string    `json:"title,omitempty"`
	Qty             int       `json:"qty"`
	Copies          int       `json:"copies"`
	OptionsJSON     string    `json:"options_json"`
	Status          string    `json:"status"`
	ResponseStatus  int       `json:"response_status"`
	ResponseBody    string    `json:"response_body,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	SubmittedBy     string    `json:"submitted_by"`
	CreatedAt       time.Time `json:"created_at"`
}

type Webhook struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventsJSON string    `json:"events_json"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SubmissionFilter struct {
	PrinterID       int64
	Status          string
	ParentReference string
	FromDate        *time.Time
	ToDate          *time.Time
	Limit           int
	Offset          int
}
