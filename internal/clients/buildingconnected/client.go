// Package buildingconnected is a REST client for the BuildingConnected
// (Autodesk Construction) API, scoped to the project and invitation queries
// the reminder workflow consumes.
package buildingconnected

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/developiq/northstar/internal/domain"
)

const (
	DefaultBaseURL = "https://developer.api.autodesk.com/construction/buildingconnected/v2"

	pageLimit    = 100
	maxPageCount = 50
)

// APIError is a non-2xx response from the BuildingConnected API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("buildingconnected API returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  domain.TokenManager
	clock   func() time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

func NewClient(tokens domain.TokenManager, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type apiProject struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	State           string `json:"state"`
	BidsDueAt       string `json:"bidsDueAt"`
	IsBiddingSealed bool   `json:"isBiddingSealed"`
}

type apiPagination struct {
	NextURL string `json:"nextUrl"`
}

type projectPage struct {
	Results    []apiProject  `json:"results"`
	Pagination apiPagination `json:"pagination"`
}

type apiBidPackage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
}

type bidPackagePage struct {
	Results    []apiBidPackage `json:"results"`
	Pagination apiPagination   `json:"pagination"`
}

type apiInvitee struct {
	State     string `json:"state"`
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Title     string `json:"title"`
	Email     string `json:"email"`
}

type apiInvite struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"projectId"`
	BidPackageID string       `json:"bidPackageId"`
	Invitees     []apiInvitee `json:"invitees"`
}

type invitePage struct {
	Results    []apiInvite   `json:"results"`
	Pagination apiPagination `json:"pagination"`
}

// ProjectsDueInDays lists projects whose bid due date falls on the day exactly
// days from now. Projects with a missing or unparseable due date are excluded
// and counted, never fatal.
func (c *Client) ProjectsDueInDays(ctx context.Context, days int) (domain.ProjectsDueResult, error) {
	if days < 0 || days > 365 {
		return domain.ProjectsDueResult{}, fmt.Errorf("days must be between 0 and 365, got %d", days)
	}

	all, err := c.allProjects(ctx)
	if err != nil {
		return domain.ProjectsDueResult{}, err
	}

	now := c.clock()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, days)
	dayEnd := dayStart.AddDate(0, 0, 1)

	result := domain.ProjectsDueResult{}

	for _, p := range all {
		if p.BidsDueAt == "" {
			result.Excluded++
			continue
		}

		dueAt, err := time.Parse(time.RFC3339, p.BidsDueAt)
		if err != nil {
			log.Warn().
				Str("project_id", p.ID).
				Str("bids_due_at", p.BidsDueAt).
				Msg("Skipping project with unparseable bid due date")
			result.Excluded++
			continue
		}

		local := dueAt.In(now.Location())
		if !local.Before(dayStart) && local.Before(dayEnd) {
			result.Projects = append(result.Projects, domain.Project{
				ID:              p.ID,
				Name:            p.Name,
				State:           p.State,
				BidsDueAt:       dueAt,
				IsBiddingSealed: p.IsBiddingSealed,
			})
		}
	}

	log.Info().
		Int("days", days).
		Int("matched", len(result.Projects)).
		Int("excluded", result.Excluded).
		Msg("Filtered projects by bid due date")

	return result, nil
}

// ProjectByID fetches one project.
func (c *Client) ProjectByID(ctx context.Context, projectID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, fmt.Errorf("projectID is required")
	}

	var p apiProject
	if err := c.get(ctx, "projects/"+projectID, &p); err != nil {
		return domain.Project{}, err
	}

	project := domain.Project{
		ID:              p.ID,
		Name:            p.Name,
		State:           p.State,
		IsBiddingSealed: p.IsBiddingSealed,
	}

	if p.BidsDueAt != "" {
		if dueAt, err := time.Parse(time.RFC3339, p.BidsDueAt); err == nil {
			project.BidsDueAt = dueAt
		}
	}

	return project, nil
}

// BiddingInvitations flattens a project's bid packages into per-invitee
// invitation records: bid packages, then invites per package, then every
// invitee of the first invite per page (later invites on a page repeat the
// same invitee set).
func (c *Client) BiddingInvitations(ctx context.Context, projectID string) ([]domain.Invitation, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	project, err := c.ProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	daysUntilDue := 0
	if !project.BidsDueAt.IsZero() {
		daysUntilDue = int(math.Ceil(project.BidsDueAt.Sub(c.clock()).Hours() / 24))
	}

	packages, err := c.bidPackages(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var invitations []domain.Invitation

	for _, pkg := range packages {
		invites, err := c.invites(ctx, projectID, pkg.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch invites for bid package %s: %w", pkg.ID, err)
		}

		for _, invite := range invites {
			for _, invitee := range invite.Invitees {
				invitations = append(invitations, domain.Invitation{
					InviteID:       invite.ID,
					State:          invitee.State,
					ProjectID:      invite.ProjectID,
					BidPackageID:   invite.BidPackageID,
					BidPackageName: pkg.Name,
					BidsDueAt:      project.BidsDueAt,
					DaysUntilDue:   daysUntilDue,
					UserID:         invitee.UserID,
					FirstName:      invitee.FirstName,
					LastName:       invitee.LastName,
					Title:          invitee.Title,
					Email:          invitee.Email,
					LinkToBid:      fmt.Sprintf("https://app.buildingconnected.com/opportunities/%s/info", invite.ID),
				})
			}
		}
	}

	log.Info().
		Str("project_id", projectID).
		Int("bid_packages", len(packages)).
		Int("invitations", len(invitations)).
		Msg("Flattened bidding invitations")

	return invitations, nil
}

func (c *Client) allProjects(ctx context.Context) ([]apiProject, error) {
	var all []apiProject

	next := fmt.Sprintf("projects?limit=%d", pageLimit)
	for page := 0; next != "" && page < maxPageCount; page++ {
		var resp projectPage
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Results...)
		next = c.nextPath(resp.Pagination.NextURL)
	}

	return all, nil
}

func (c *Client) bidPackages(ctx context.Context, projectID string) ([]apiBidPackage, error) {
	var all []apiBidPackage

	next := "bid-packages?filter[projectId]=" + projectID
	for page := 0; next != "" && page < maxPageCount; page++ {
		var resp bidPackagePage
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Results...)
		next = c.nextPath(resp.Pagination.NextURL)
	}

	return all, nil
}

// invites returns the first invite of every page for a bid package. The API
// repeats the same invitee roster on sibling invites, so flattening more than
// one per page double-counts people.
func (c *Client) invites(ctx context.Context, projectID, bidPackageID string) ([]apiInvite, error) {
	var firstPerPage []apiInvite

	next := fmt.Sprintf("invites?filter[projectId]=%s&filter[bidPackageId]=%s", projectID, bidPackageID)
	for page := 0; next != "" && page < maxPageCount; page++ {
		var resp invitePage
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}

		if len(resp.Results) > 0 {
			firstPerPage = append(firstPerPage, resp.Results[0])
		}

		next = c.nextPath(resp.Pagination.NextURL)
	}

	return firstPerPage, nil
}

// nextPath normalizes the API's pagination nextUrl, which may be absolute,
// root-relative, or already relative.
func (c *Client) nextPath(raw string) string {
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http"):
		if _, after, ok := strings.Cut(raw, "/construction/buildingconnected/v2/"); ok {
			return after
		}
		return ""
	case strings.HasPrefix(raw, "/"):
		return strings.TrimPrefix(raw, "/")
	default:
		return raw
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		// A persistence failure still yields a usable token for this run;
		// the workflow has already recorded the operator follow-up.
		var persistErr *domain.TokenPersistenceError
		if !errors.As(err, &persistErr) || token == "" {
			return fmt.Errorf("failed to get access token: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(body, 512)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
