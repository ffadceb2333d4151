package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/email"
)

const defaultConcurrency = 4

// DefaultDays is the day-offset window queried when no override is given.
var DefaultDays = []int{5, 6, 7, 8, 9, 10}

// Steps holds the collaborators the step functions run against. A fresh
// Steps is built for every run; nothing here outlives it except the tracker
// connection pool.
type Steps struct {
	Microsoft domain.TokenManager
	Autodesk  domain.TokenManager
	Projects  domain.ProjectService
	Composer  *email.Composer
	Sender    domain.EmailSender
	Tracker   domain.EmailTracker

	// RecipientOverride redirects every message to one address. Used for
	// targeted test runs so real contractors are never mailed.
	RecipientOverride string

	Concurrency int
	Clock       func() time.Time
}

// Handlers returns the step table for the engine.
func (s *Steps) Handlers() map[Step]StepFunc {
	return map[Step]StepFunc{
		StepInit:        s.initRun,
		StepAuth:        s.initializeAuth,
		StepProjects:    s.checkUpcomingProjects,
		StepInvitations: s.getBiddingInvitations,
		StepEmail:       s.sendReminderEmails,
		StepFinalize:    s.finalizeResult,
	}
}

func (s *Steps) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

func (s *Steps) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Steps) initRun(ctx context.Context, state *State) error {
	if len(state.Days) == 0 {
		state.Days = DefaultDays
	}
	for _, d := range state.Days {
		if d < 0 || d > 365 {
			return fmt.Errorf("day offset %d out of range", d)
		}
	}
	return nil
}

// initializeAuth proves both providers can mint access tokens before any
// data is fetched. A terminal refresh failure on either provider fails the
// step; a persistence failure on the rotating provider is flagged but the
// run continues with the in-memory token.
func (s *Steps) initializeAuth(ctx context.Context, state *State) error {
	for _, manager := range []domain.TokenManager{s.Microsoft, s.Autodesk} {
		_, err := manager.AccessToken(ctx)
		if err == nil {
			continue
		}

		var persistErr *domain.TokenPersistenceError
		if errors.As(err, &persistErr) {
			state.AddNote(fmt.Sprintf(
				"%s: rotated refresh token could not be saved, stored credentials are stale (%s)",
				manager.Provider(), persistErr.Err))
			log.Warn().
				Str("provider", string(manager.Provider())).
				Err(persistErr.Err).
				Msg("Refresh token rotation was not persisted")
			continue
		}

		return fmt.Errorf("authentication failed for provider %s: %w", manager.Provider(), err)
	}

	log.Info().Str("run_id", state.RunID).Msg("Both providers authenticated")
	return nil
}

// checkUpcomingProjects fills state.Projects from the configured day-offset
// window, or from a single project ID for targeted runs. An empty result is
// a success with zero projects.
func (s *Steps) checkUpcomingProjects(ctx context.Context, state *State) error {
	if state.ProjectID != "" {
		project, err := s.Projects.ProjectByID(ctx, state.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to fetch project %s: %w", state.ProjectID, err)
		}
		state.Projects = []domain.Project{project}
		log.Info().
			Str("run_id", state.RunID).
			Str("project_id", project.ID).
			Msg("Targeting a single project")
		return nil
	}

	seen := map[string]bool{}
	for _, days := range state.Days {
		result, err := s.Projects.ProjectsDueInDays(ctx, days)
		if err != nil {
			return fmt.Errorf("failed to query projects due in %d days: %w", days, err)
		}
		state.Excluded += result.Excluded
		for _, p := range result.Projects {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			state.Projects = append(state.Projects, p)
		}
	}

	if state.Excluded > 0 {
		state.AddNote(fmt.Sprintf("%d projects excluded for missing or unparseable due dates", state.Excluded))
	}

	log.Info().
		Str("run_id", state.RunID).
		Int("projects", len(state.Projects)).
		Int("excluded", state.Excluded).
		Msg("Upcoming projects collected")
	return nil
}

// getBiddingInvitations fetches invitation lists for all projects
// concurrently. One project's fetch failure is recorded against that project
// and never stops the others.
func (s *Steps) getBiddingInvitations(ctx context.Context, state *State) error {
	type fetchResult struct {
		invitations []domain.Invitation
		err         error
	}

	results := make([]fetchResult, len(state.Projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, project := range state.Projects {
		g.Go(func() error {
			invs, err := s.Projects.BiddingInvitations(gctx, project.ID)
			results[i] = fetchResult{invitations: invs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, project := range state.Projects {
		res := results[i]
		if res.err != nil {
			fetchErr := &domain.DataFetchError{ProjectID: project.ID, Err: res.err}
			state.FetchFailures[project.ID] = fetchErr.Error()
			log.Warn().
				Str("run_id", state.RunID).
				Str("project_id", project.ID).
				Err(res.err).
				Msg("Invitation fetch failed, continuing with remaining projects")
			continue
		}
		state.ProjectOrder = append(state.ProjectOrder, project.ID)
		state.Invitations[project.ID] = res.invitations
	}

	log.Info().
		Str("run_id", state.RunID).
		Int("invitations", state.InvitationCount()).
		Int("fetch_failures", len(state.FetchFailures)).
		Msg("Bidding invitations collected")
	return nil
}

// sendReminderEmails sends one reminder per invitation. Sends for
// independent recipients run concurrently; each outcome, including missing
// contact addresses, is recorded per recipient and logged to the tracker.
func (s *Steps) sendReminderEmails(ctx context.Context, state *State) error {
	projectsByID := make(map[string]domain.Project, len(state.Projects))
	for _, p := range state.Projects {
		projectsByID[p.ID] = p
	}

	type sendJob struct {
		project domain.Project
		inv     domain.Invitation
	}

	var jobs []sendJob
	for _, projectID := range state.ProjectOrder {
		project := projectsByID[projectID]
		for _, inv := range state.Invitations[projectID] {
			jobs = append(jobs, sendJob{project: project, inv: inv})
		}
	}

	results := make([]EmailResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = s.sendOne(gctx, job.project, job.inv)
			return nil
		})
	}
	_ = g.Wait()

	state.EmailResults = append(state.EmailResults, results...)

	log.Info().
		Str("run_id", state.RunID).
		Int("sent", state.EmailsSent()).
		Int("failed", state.EmailsFailed()).
		Msg("Reminder emails processed")
	return nil
}

func (s *Steps) sendOne(ctx context.Context, project domain.Project, inv domain.Invitation) EmailResult {
	tier := email.TierForDays(inv.DaysUntilDue)
	result := EmailResult{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		InviteID:    inv.InviteID,
		Recipient:   inv.Email,
		Contractor:  inv.ContractorName(),
		Tier:        tier.String(),
	}

	if inv.Email == "" {
		result.Error = "no contact email on file"
		s.trackAttempt(ctx, project, inv, "FAILED")
		return result
	}

	msg := s.Composer.Compose(project, inv)
	if s.RecipientOverride != "" {
		msg.To = s.RecipientOverride
		result.Recipient = s.RecipientOverride
	}

	if err := s.Sender.Send(ctx, msg); err != nil {
		result.Error = err.Error()
		log.Warn().
			Str("project_id", project.ID).
			Str("recipient", msg.To).
			Err(err).
			Msg("Reminder send failed, continuing with remaining recipients")
		s.trackAttempt(ctx, project, inv, "FAILED")
		return result
	}

	result.Sent = true
	s.trackAttempt(ctx, project, inv, "SUCCESS")
	return result
}

// trackAttempt records the send in the tracker. Tracker failures are logged
// and never turn into send failures.
func (s *Steps) trackAttempt(ctx context.Context, project domain.Project, inv domain.Invitation, status string) {
	attempt := domain.EmailAttempt{
		ProjectID:      inv.ProjectID,
		ProjectName:    project.Name,
		BidPackageID:   inv.BidPackageID,
		BidPackageName: inv.BidPackageName,
		InviteID:       inv.InviteID,
		FirstName:      inv.FirstName,
		LastName:       inv.LastName,
		Title:          inv.Title,
		Email:          inv.Email,
		LinkToBid:      inv.LinkToBid,
		BidsDueAt:      inv.BidsDueAt,
		DaysUntilDue:   inv.DaysUntilDue,
		SentAt:         s.now().UTC(),
		Status:         status,
	}
	if err := s.Tracker.LogAttempt(ctx, attempt); err != nil {
		log.Warn().
			Str("invite_id", inv.InviteID).
			Err(err).
			Msg("Failed to record email attempt")
	}
}

// finalizeResult always runs exactly once. It derives the overall outcome
// and composes the operator-facing summary.
func (s *Steps) finalizeResult(ctx context.Context, state *State) error {
	state.FinishedAt = s.now().UTC()

	switch {
	case !state.Success:
		state.ResultMessage = fmt.Sprintf(
			"Bid reminder workflow failed at step %s: %s",
			state.FailedStep, state.ErrorMessage)
	case state.ItemFailures() > 0:
		state.ResultMessage = fmt.Sprintf(
			"Bid reminder workflow partially succeeded with %d item failures: %d projects, %d invitations, %d emails sent, %d sends failed, %d invitation fetches failed",
			state.ItemFailures(), len(state.Projects), state.InvitationCount(),
			state.EmailsSent(), state.EmailsFailed(), len(state.FetchFailures))
	default:
		state.ResultMessage = fmt.Sprintf(
			"Bid reminder workflow completed successfully: %d projects, %d invitations, %d emails sent",
			len(state.Projects), state.InvitationCount(), state.EmailsSent())
	}

	event := log.Info()
	if !state.Success {
		event = log.Error()
	}
	event.
		Str("run_id", state.RunID).
		Bool("success", state.Success).
		Int("projects", len(state.Projects)).
		Int("emails_sent", state.EmailsSent()).
		Dur("duration", state.FinishedAt.Sub(state.StartedAt)).
		Msg(state.ResultMessage)
	return nil
}
