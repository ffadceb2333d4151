package buildingconnected

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developiq/northstar/internal/domain"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Provider() domain.Provider { return domain.ProviderAutodesk }

func (s staticTokens) AccessToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestClient(t *testing.T, handler http.Handler, now time.Time) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(
		staticTokens{token: "test-access-token"},
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithClock(fixedClock(now)),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestProjectsDueInDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/projects", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{"id": "p1", "name": "Riverside Tower", "state": "ACTIVE", "bidsDueAt": "2026-03-13T17:00:00Z"},
				{"id": "p2", "name": "Harbor Bridge", "state": "ACTIVE", "bidsDueAt": "2026-03-20T17:00:00Z"},
				{"id": "p3", "name": "No Due Date"},
				{"id": "p4", "name": "Garbage Date", "bidsDueAt": "not-a-date"},
			},
			"pagination": map[string]any{},
		})
	})

	client := newTestClient(t, mux, now)

	result, err := client.ProjectsDueInDays(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, result.Projects, 1)
	assert.Equal(t, "p1", result.Projects[0].ID)
	assert.Equal(t, "Riverside Tower", result.Projects[0].Name)
	assert.Equal(t, 2, result.Excluded, "missing and unparseable due dates are counted, not fatal")
}

func TestProjectsDueInDaysValidatesRange(t *testing.T) {
	client := newTestClient(t, http.NewServeMux(), time.Now())

	_, err := client.ProjectsDueInDays(context.Background(), -1)
	assert.Error(t, err)

	_, err = client.ProjectsDueInDays(context.Background(), 366)
	assert.Error(t, err)
}

func TestAllProjectsPagination(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/projects", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, map[string]any{
				"results": []map[string]any{
					{"id": "p2", "name": "Second", "bidsDueAt": "2026-03-13T12:00:00Z"},
				},
				"pagination": map[string]any{},
			})
			return
		}
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{"id": "p1", "name": "First", "bidsDueAt": "2026-03-13T08:00:00Z"},
			},
			"pagination": map[string]any{"nextUrl": "/projects?page=2"},
		})
	})

	client := newTestClient(t, mux, now)

	result, err := client.ProjectsDueInDays(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, result.Projects, 2)
	assert.Equal(t, "p1", result.Projects[0].ID)
	assert.Equal(t, "p2", result.Projects[1].ID)
}

func TestBiddingInvitations(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id": "p1", "name": "Riverside Tower", "bidsDueAt": "2026-03-13T17:00:00Z",
		})
	})
	mux.HandleFunc("/bid-packages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1", r.URL.Query().Get("filter[projectId]"))
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{"id": "bp1", "name": "Electrical", "projectId": "p1"},
			},
			"pagination": map[string]any{},
		})
	})
	mux.HandleFunc("/invites", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bp1", r.URL.Query().Get("filter[bidPackageId]"))
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{
					"id": "inv1", "projectId": "p1", "bidPackageId": "bp1",
					"invitees": []map[string]any{
						{"state": "INVITED", "userId": "u1", "firstName": "Dana", "lastName": "Reyes", "email": "dana@contractor.example"},
						{"state": "INVITED", "userId": "u2", "email": "noname@contractor.example"},
					},
				},
				{
					// Sibling invite on the same page repeats the roster and
					// must not be flattened.
					"id": "inv2", "projectId": "p1", "bidPackageId": "bp1",
					"invitees": []map[string]any{
						{"state": "INVITED", "userId": "u1", "email": "dana@contractor.example"},
					},
				},
			},
			"pagination": map[string]any{},
		})
	})

	client := newTestClient(t, mux, now)

	invitations, err := client.BiddingInvitations(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, invitations, 2)

	first := invitations[0]
	assert.Equal(t, "inv1", first.InviteID)
	assert.Equal(t, "Electrical", first.BidPackageName)
	assert.Equal(t, "Dana Reyes", first.ContractorName())
	assert.Equal(t, "dana@contractor.example", first.Email)
	assert.Equal(t, 4, first.DaysUntilDue)
	assert.Equal(t, "https://app.buildingconnected.com/opportunities/inv1/info", first.LinkToBid)

	second := invitations[1]
	assert.Equal(t, "noname@contractor.example", second.ContractorName(), "name falls back to email")
}

func TestAPIErrorSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"insufficient scope"}`)
	})

	client := newTestClient(t, mux, time.Now())

	_, err := client.ProjectsDueInDays(context.Background(), 5)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestNextPath(t *testing.T) {
	client := NewClient(staticTokens{token: "t"})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: ""},
		{name: "relative", raw: "projects?page=2", want: "projects?page=2"},
		{name: "root relative", raw: "/projects?page=2", want: "projects?page=2"},
		{name: "absolute", raw: "https://developer.api.autodesk.com/construction/buildingconnected/v2/projects?page=2", want: "projects?page=2"},
		{name: "absolute foreign", raw: "https://example.com/other", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.nextPath(tt.raw))
		})
	}
}
