// ABOUTME: Heuristic scanner that spots booking intent in recent chat messages
// ABOUTME: Pure keyword and currency-marker matching over the last few timeline entries

package intent

import (
	"strings"

	"github.com/skillforge/skillforge-client/internal/model"
)

// windowSize is how many of the most recent messages Detect inspects.
const windowSize = 5

// sessionKeywords are phrases that suggest the participants are arranging
// a paid session. Matched case-insensitively as substrings.
var sessionKeywords = []string{
	"session",
	"book",
	"schedule",
	"lesson",
	"tutor",
	"teach me",
	"appointment",
	"available",
	"meet",
	"per hour",
	"hourly",
	"rate",
}

// currencyMarkers are symbols and codes that suggest pricing talk.
var currencyMarkers = []string{
	"$", "€", "£", "₹",
	"usd", "eur", "gbp",
}

// Detect reports whether the tail of the timeline looks like the
// participants are arranging a session. It inspects at most the last five
// messages and matches session keywords or currency markers. Pure and
// stateless; dismissal tracking is the caller's concern (see Tracker).
func Detect(msgs []model.Message) bool {
	start := len(msgs) - windowSize
	if start < 0 {
		start = 0
	}
	for _, msg := range msgs[start:] {
		if matches(msg.Text) {
			return true
		}
	}
	return false
}

// LastMatch returns the CreatedAt-wise newest message in the window that
// matches, and whether one exists. The Tracker uses it to tell a fresh
// intent signal from one the user already dismissed.
func LastMatch(msgs []model.Message) (model.Message, bool) {
	start := len(msgs) - windowSize
	if start < 0 {
		start = 0
	}
	var best model.Message
	found := false
	for _, msg := range msgs[start:] {
		if !matches(msg.Text) {
			continue
		}
		if !found || msg.CreatedAt.After(best.CreatedAt) {
			best = msg
			found = true
		}
	}
	return best, found
}

func matches(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range sessionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, marker := range currencyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
