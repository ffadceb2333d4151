package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/developiq/northstar/internal/domain"
)

func TestTierForDays(t *testing.T) {
	tests := []struct {
		days int
		want Tier
	}{
		{days: 0, want: TierFinal},
		{days: 1, want: TierFinal},
		{days: 2, want: TierThird},
		{days: 3, want: TierSecond},
		{days: 4, want: TierReminder},
		{days: 5, want: TierReminder},
		{days: 7, want: TierInitial},
		{days: 10, want: TierReminder},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForDays(tt.days), "days=%d", tt.days)
	}
}

func TestTierImportance(t *testing.T) {
	assert.Equal(t, domain.EmailImportanceNormal, TierInitial.Importance())
	assert.Equal(t, domain.EmailImportanceNormal, TierSecond.Importance())
	assert.Equal(t, domain.EmailImportanceHigh, TierThird.Importance())
	assert.Equal(t, domain.EmailImportanceHigh, TierFinal.Importance())
}

func TestCompose(t *testing.T) {
	project := domain.Project{
		ID:        "p1",
		Name:      "Riverside Tower",
		BidsDueAt: time.Date(2026, 3, 13, 17, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		daysUntilDue   int
		wantSubject    string
		wantImportance domain.EmailImportance
	}{
		{
			name:           "day seven initial invitation",
			daysUntilDue:   7,
			wantSubject:    "Invitation to Bid",
			wantImportance: domain.EmailImportanceNormal,
		},
		{
			name:           "day three second request",
			daysUntilDue:   3,
			wantSubject:    "Second Request",
			wantImportance: domain.EmailImportanceNormal,
		},
		{
			name:           "day two third request",
			daysUntilDue:   2,
			wantSubject:    "Third Request",
			wantImportance: domain.EmailImportanceHigh,
		},
		{
			name:           "day one final notice",
			daysUntilDue:   1,
			wantSubject:    "URGENT",
			wantImportance: domain.EmailImportanceHigh,
		},
		{
			name:           "day five generic reminder",
			daysUntilDue:   5,
			wantSubject:    "Bid Reminder",
			wantImportance: domain.EmailImportanceNormal,
		},
	}

	composer := NewComposer(WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := domain.Invitation{
				Email:          "dana@contractor.example",
				FirstName:      "Dana",
				LastName:       "Reyes",
				BidPackageName: "Electrical",
				DaysUntilDue:   tt.daysUntilDue,
				LinkToBid:      "https://app.buildingconnected.com/opportunities/inv1/info",
			}

			msg := composer.Compose(project, inv)

			assert.Equal(t, "dana@contractor.example", msg.To)
			assert.True(t, strings.HasPrefix(msg.Subject, tt.wantSubject), "subject %q should start with %q", msg.Subject, tt.wantSubject)
			assert.Equal(t, tt.wantImportance, msg.Importance)
			assert.Contains(t, msg.HTMLBody, "Riverside Tower")
			assert.Contains(t, msg.HTMLBody, "Electrical")
			assert.Contains(t, msg.HTMLBody, "Dana Reyes")
			assert.Contains(t, msg.HTMLBody, inv.LinkToBid)
		})
	}
}

func TestComposeEscapesHTML(t *testing.T) {
	composer := NewComposer()

	msg := composer.Compose(
		domain.Project{Name: "Tower <Phase 2>", BidsDueAt: time.Now()},
		domain.Invitation{Email: "a@b.example", FirstName: "A&B", BidPackageName: "Steel", DaysUntilDue: 5},
	)

	assert.Contains(t, msg.HTMLBody, "Tower &lt;Phase 2&gt;")
	assert.Contains(t, msg.HTMLBody, "A&amp;B")
	assert.NotContains(t, msg.HTMLBody, "Tower <Phase 2>")
}
