package models

import (
	"folio/internal/challenge"
)

// Field limits applied by sanitization, in runes.
const (
	MaxNameLength    = 80
	MaxEmailLength   = 254
	MaxSubjectLength = 120
	MaxMessageLength = 2000
)

// DefaultSubject is used when the submitter leaves the subject blank.
const DefaultSubject = "Portfolio Contact"

// RawSubmission is the contact form payload as posted by the browser.
type RawSubmission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	// Website is the honeypot field. Humans never see it.
	Website     string               `json:"website"`
	Challenge   *challenge.Challenge `json:"challenge"`
	HumanSolved bool                 `json:"humanSolved"`
}

// Submission is a contact message that passed the gate. All fields are sanitized.
type Submission struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Delivery is the result of a successful or dry-run send.
type Delivery struct {
	DryRun bool
	// Note records which dry-run path was taken, empty for real deliveries.
	Note string
}

// Response is the JSON body of an accepted submission.
type Response struct {
	OK     bool `json:"ok"`
	DryRun bool `json:"dryRun,omitempty"`
}
