package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/workflow"
)

type fakeRunner struct {
	state *workflow.State
	err   error
	opts  workflow.RunOptions
}

func (f *fakeRunner) Run(ctx context.Context, opts workflow.RunOptions) (*workflow.State, error) {
	f.opts = opts
	return f.state, f.err
}

type fakeStore struct {
	microsoft bool
	autodesk  bool
}

func (f *fakeStore) Info(provider domain.Provider) (bool, time.Time) {
	if provider == domain.ProviderMicrosoft {
		return f.microsoft, time.Time{}
	}
	return f.autodesk, time.Time{}
}

func newTestServer(runner WorkflowRunner, store TokenInfoProvider) *HTTPServerDependencies {
	return &HTTPServerDependencies{
		Config: &config.Config{},
		Runner: runner,
		Store:  store,
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeStore
		wantCode   int
		wantStatus string
	}{
		{
			name:       "both tokens present",
			store:      &fakeStore{microsoft: true, autodesk: true},
			wantCode:   200,
			wantStatus: "healthy",
		},
		{
			name:       "missing autodesk token",
			store:      &fakeStore{microsoft: true},
			wantCode:   503,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(&fakeRunner{}, tt.store)
			app := NewHTTPServer(context.Background(), *deps)

			resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestRunEndpointReturnsWorkflowOutcome(t *testing.T) {
	state := workflow.NewState(nil, "")
	state.Projects = []domain.Project{{ID: "p-1"}}
	state.EmailResults = []workflow.EmailResult{{Sent: true}}
	state.ResultMessage = "Bid reminder workflow completed successfully: 1 projects, 1 invitations, 1 emails sent"
	state.FinishedAt = time.Now().UTC()

	runner := &fakeRunner{state: state}
	deps := newTestServer(runner, &fakeStore{microsoft: true, autodesk: true})
	app := NewHTTPServer(context.Background(), *deps)

	req := httptest.NewRequest("POST", "/run-bid-reminder", strings.NewReader(`{"days":[3],"project_id":"p-1"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var body runResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.WorkflowSuccessful)
	assert.Equal(t, 1, body.ProjectsFound)
	assert.Equal(t, 1, body.EmailsSent)
	assert.Contains(t, body.ResultMessage, "successfully")

	// Targeting options from the request body reach the runner.
	assert.Equal(t, []int{3}, runner.opts.Days)
	assert.Equal(t, "p-1", runner.opts.ProjectID)
}

type fakeTrackerStats struct {
	stats  map[string]int64
	recent []domain.EmailAttempt
}

func (f *fakeTrackerStats) Stats(ctx context.Context) (map[string]int64, error) {
	return f.stats, nil
}

func (f *fakeTrackerStats) RecentSends(ctx context.Context, limit int) ([]domain.EmailAttempt, error) {
	return f.recent, nil
}

func TestEmailStatsEndpoint(t *testing.T) {
	deps := newTestServer(&fakeRunner{}, &fakeStore{})
	deps.Tracker = &fakeTrackerStats{
		stats:  map[string]int64{"SUCCESS": 12, "FAILED": 1},
		recent: []domain.EmailAttempt{{Email: "dana@contractor.example", Status: "SUCCESS"}},
	}
	app := NewHTTPServer(context.Background(), *deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/email-stats", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Totals map[string]int64 `json:"totals_by_status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(12), body.Totals["SUCCESS"])
}

func TestEmailStatsEndpointWithoutTracker(t *testing.T) {
	deps := newTestServer(&fakeRunner{}, &fakeStore{})
	app := NewHTTPServer(context.Background(), *deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/email-stats", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 404, resp.StatusCode)
}

func TestRunEndpointConstructionFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("failed to load refresh token")}
	deps := newTestServer(runner, &fakeStore{})
	app := NewHTTPServer(context.Background(), *deps)

	resp, err := app.Test(httptest.NewRequest("POST", "/run-bid-reminder", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 500, resp.StatusCode)

	var body runResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.WorkflowSuccessful)
	assert.Contains(t, body.ErrorMessage, "refresh token")
}
