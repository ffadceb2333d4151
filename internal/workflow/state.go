package workflow

import (
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/developiq/northstar/internal/domain"
)

// EmailResult records one send attempt to one recipient.
type EmailResult struct {
	ProjectID   string
	ProjectName string
	InviteID    string
	Recipient   string
	Contractor  string
	Tier        string
	Sent        bool
	Error       string
}

// State accumulates the outcome of one workflow run. Steps only ever append
// to it; nothing a step records is retroactively cleared.
type State struct {
	RunID     string
	StartedAt time.Time

	// Targeting. Days holds the day offsets queried; ProjectID narrows the
	// run to a single project when set.
	Days      []int
	ProjectID string

	Projects      []domain.Project
	Excluded      int
	ProjectOrder  []string
	Invitations   map[string][]domain.Invitation
	FetchFailures map[string]string
	EmailResults  []EmailResult

	// Success defaults to true; the first step failure flips it, records the
	// step and message, and routes the run to finalization. Later context is
	// appended to Notes, never written over ErrorMessage.
	Success      bool
	FailedStep   string
	ErrorMessage string
	Notes        []string

	ResultMessage string
	FinishedAt    time.Time
}

// NewState builds the state record for one run.
func NewState(days []int, projectID string) *State {
	return &State{
		RunID:         xid.New().String(),
		StartedAt:     time.Now().UTC(),
		Days:          days,
		ProjectID:     projectID,
		Invitations:   map[string][]domain.Invitation{},
		FetchFailures: map[string]string{},
		Success:       true,
	}
}

// Fail marks a step-level failure. The first failure wins: subsequent calls
// keep the original step and message and file the new message as a note.
func (s *State) Fail(step Step, message string) {
	if !s.Success {
		s.AddNote(fmt.Sprintf("%s: %s", step, message))
		return
	}
	s.Success = false
	s.FailedStep = step.String()
	s.ErrorMessage = message
}

// AddNote appends context without affecting the run outcome.
func (s *State) AddNote(note string) {
	s.Notes = append(s.Notes, note)
}

// EmailsSent counts successful sends.
func (s *State) EmailsSent() int {
	n := 0
	for _, r := range s.EmailResults {
		if r.Sent {
			n++
		}
	}
	return n
}

// EmailsFailed counts recorded send failures.
func (s *State) EmailsFailed() int {
	return len(s.EmailResults) - s.EmailsSent()
}

// InvitationCount counts invitations across all projects.
func (s *State) InvitationCount() int {
	n := 0
	for _, invs := range s.Invitations {
		n += len(invs)
	}
	return n
}

// ItemFailures counts per-item failures: project fetches that failed plus
// sends that failed. Item failures do not flip Success.
func (s *State) ItemFailures() int {
	return len(s.FetchFailures) + s.EmailsFailed()
}
