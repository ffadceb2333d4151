// Package email composes bid reminder messages and sends them through the
// configured mail provider.
package email

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/developiq/northstar/internal/domain"
)

// Tier is the escalation level of a reminder, chosen from the days remaining
// until the bid deadline.
type Tier int

const (
	// TierReminder is the generic tone used for day offsets without a
	// dedicated escalation step (the default 5-10 day window mostly lands
	// here).
	TierReminder Tier = iota
	// TierInitial is the first invitation tone, sent at day 7.
	TierInitial
	// TierSecond is the second request, sent at day 3.
	TierSecond
	// TierThird is the third request, sent at day 2.
	TierThird
	// TierFinal is the final, urgent notice at day 1 or less.
	TierFinal
)

func (t Tier) String() string {
	switch t {
	case TierInitial:
		return "initial invitation"
	case TierSecond:
		return "second request"
	case TierThird:
		return "third request"
	case TierFinal:
		return "final notice"
	default:
		return "reminder"
	}
}

// TierForDays maps days-until-due to an escalation tier.
func TierForDays(days int) Tier {
	switch {
	case days <= 1:
		return TierFinal
	case days == 2:
		return TierThird
	case days == 3:
		return TierSecond
	case days == 7:
		return TierInitial
	default:
		return TierReminder
	}
}

// Importance returns the provider importance flag for the tier: urgent tiers
// are flagged high.
func (t Tier) Importance() domain.EmailImportance {
	if t == TierThird || t == TierFinal {
		return domain.EmailImportanceHigh
	}
	return domain.EmailImportanceNormal
}

// Composer renders reminder subjects and HTML bodies.
type Composer struct {
	clock func() time.Time
}

type ComposerOption func(*Composer)

func WithClock(clock func() time.Time) ComposerOption {
	return func(c *Composer) {
		c.clock = clock
	}
}

func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the outgoing message for one invitation on one project.
func (c *Composer) Compose(project domain.Project, inv domain.Invitation) domain.OutgoingEmail {
	tier := TierForDays(inv.DaysUntilDue)

	return domain.OutgoingEmail{
		To:         inv.Email,
		Subject:    c.subject(project, inv, tier),
		HTMLBody:   c.body(project, inv, tier),
		Importance: tier.Importance(),
	}
}

func (c *Composer) subject(project domain.Project, inv domain.Invitation, tier Tier) string {
	due := project.BidsDueAt.Format("Jan 2")

	switch tier {
	case TierInitial:
		return fmt.Sprintf("Invitation to Bid: %s — %s (due %s)", project.Name, inv.BidPackageName, due)
	case TierSecond:
		return fmt.Sprintf("Second Request: %s bid due %s — %s", project.Name, due, inv.BidPackageName)
	case TierThird:
		return fmt.Sprintf("Third Request: %s bid due in 2 days — %s", project.Name, inv.BidPackageName)
	case TierFinal:
		return fmt.Sprintf("URGENT — Final Notice: %s bid due %s", project.Name, due)
	default:
		return fmt.Sprintf("Bid Reminder: %s — %s due %s", project.Name, inv.BidPackageName, due)
	}
}

func (c *Composer) body(project domain.Project, inv domain.Invitation, tier Tier) string {
	var opening string
	switch tier {
	case TierInitial:
		opening = "You are invited to bid on the following project."
	case TierSecond:
		opening = "This is a second request regarding your pending bid invitation."
	case TierThird:
		opening = "This is our third request — the bid deadline is two days away."
	case TierFinal:
		opening = "<strong>Final notice:</strong> the bid deadline is less than one day away."
	default:
		opening = "This is a reminder about an upcoming bid deadline."
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Hello %s,</p>", html.EscapeString(inv.ContractorName()))
	fmt.Fprintf(&b, "<p>%s</p>", opening)
	b.WriteString("<table border='1' cellpadding='8' cellspacing='0' style='border-collapse: collapse;'>")
	fmt.Fprintf(&b, "<tr><td><strong>Project</strong></td><td>%s</td></tr>", html.EscapeString(project.Name))
	fmt.Fprintf(&b, "<tr><td><strong>Bid Package</strong></td><td>%s</td></tr>", html.EscapeString(inv.BidPackageName))
	fmt.Fprintf(&b, "<tr><td><strong>Bids Due</strong></td><td>%s</td></tr>", project.BidsDueAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "<tr><td><strong>Days Remaining</strong></td><td>%d</td></tr>", inv.DaysUntilDue)
	b.WriteString("</table>")
	if inv.LinkToBid != "" {
		fmt.Fprintf(&b, "<p><a href='%s'>View and submit your bid</a></p>", inv.LinkToBid)
	}
	b.WriteString("<p><em>This reminder was generated automatically by the Northstar bid reminder service.</em></p>")
	fmt.Fprintf(&b, "<p><small>Generated on %s</small></p>", c.clock().UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("</body></html>")

	return b.String()
}
