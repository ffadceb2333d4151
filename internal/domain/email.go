package domain

import (
	"context"
	"time"
)

// EmailImportance maps to the provider's message importance flag.
type EmailImportance string

const (
	EmailImportanceNormal EmailImportance = "normal"
	EmailImportanceHigh   EmailImportance = "high"
)

// OutgoingEmail is one message to one recipient.
type OutgoingEmail struct {
	To         string
	Subject    string
	HTMLBody   string
	Importance EmailImportance
}

// EmailSender sends one message to one address. Implementations map provider
// failures (invalid recipient, throttling, outage) into returned errors; the
// workflow records them all as per-recipient failures.
type EmailSender interface {
	Send(ctx context.Context, email OutgoingEmail) error
}

// EmailAttempt is one recorded send, successful or not.
type EmailAttempt struct {
	ProjectID      string
	ProjectName    string
	BidPackageID   string
	BidPackageName string
	InviteID       string
	FirstName      string
	LastName       string
	Title          string
	Email          string
	LinkToBid      string
	BidsDueAt      time.Time
	DaysUntilDue   int
	SentAt         time.Time
	Status         string // "SUCCESS" or "FAILED"
}

// EmailTracker persists sent-email records. Tracker failures are logged and
// never escalate into send failures.
type EmailTracker interface {
	LogAttempt(ctx context.Context, attempt EmailAttempt) error
}
