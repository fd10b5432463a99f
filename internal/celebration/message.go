package celebration

import (
	"strconv"
	"time"

	"celebrator/internal/mastodon"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// NewMemberText composes the first-post greeting. The account age line is
// only added for accounts created less than a day ago.
func NewMemberText(acct mastodon.Account, days int64) string {
	text := printer.Sprintf("New friend %s (@%s) just made their first post! 🎉", acct.DisplayName, acct.Username)
	if days == 0 {
		text += printer.Sprintf("\n(%d days since account creation)", days)
	}
	return text
}

// MilestoneText composes the post-count celebration.
func MilestoneText(acct mastodon.Account, milestone, days int64) string {
	return printer.Sprintf("%s (@%s) has reached %d posts! 🎉\n(%s posts/day, %d days since account creation)",
		acct.DisplayName, acct.Username, milestone, postsPerDay(milestone, days), days)
}

// postsPerDay divides by days+1 so same-day accounts do not divide by zero.
func postsPerDay(milestone, days int64) string {
	return strconv.FormatFloat(float64(milestone)/float64(days+1), 'f', 1, 64)
}

// daysSince counts whole 24h periods between createdAt and now, never negative.
func daysSince(createdAt, now time.Time) int64 {
	if createdAt.IsZero() || !now.After(createdAt) {
		return 0
	}
	return int64(now.Sub(createdAt) / (24 * time.Hour))
}
