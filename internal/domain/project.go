package domain

import (
	"context"
	"time"
)

// Project is a BuildingConnected project with an upcoming bid deadline.
type Project struct {
	ID              string
	Name            string
	State           string
	BidsDueAt       time.Time
	IsBiddingSealed bool
}

// DaysUntilDue returns the number of whole days (rounded up) between now and
// the bid deadline.
func (p Project) DaysUntilDue(now time.Time) int {
	d := p.BidsDueAt.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// ProjectsDueResult carries the projects matching a due-date query plus the
// number of items excluded because their due date was missing or unparseable.
type ProjectsDueResult struct {
	Projects []Project
	Excluded int
}

// Invitation is one contractor invited to bid on a project's bid package.
type Invitation struct {
	InviteID       string
	State          string
	ProjectID      string
	BidPackageID   string
	BidPackageName string
	BidsDueAt      time.Time
	DaysUntilDue   int
	UserID         string
	FirstName      string
	LastName       string
	Title          string
	Email          string
	LinkToBid      string
}

// ContractorName returns the invitee's display name, falling back to the
// email address when no name is on file.
func (i Invitation) ContractorName() string {
	switch {
	case i.FirstName != "" && i.LastName != "":
		return i.FirstName + " " + i.LastName
	case i.FirstName != "":
		return i.FirstName
	case i.LastName != "":
		return i.LastName
	default:
		return i.Email
	}
}

// ProjectService is the consumed contract of the project-tracking API.
type ProjectService interface {
	// ProjectsDueInDays lists projects whose bid due date falls on the day
	// exactly days from now. Items with missing or unparseable due dates are
	// excluded and counted, never fatal.
	ProjectsDueInDays(ctx context.Context, days int) (ProjectsDueResult, error)

	// ProjectByID fetches a single project.
	ProjectByID(ctx context.Context, projectID string) (Project, error)

	// BiddingInvitations lists the flattened bidding invitations for a
	// project: every invitee of the project's bid packages.
	BiddingInvitations(ctx context.Context, projectID string) ([]Invitation, error)
}
