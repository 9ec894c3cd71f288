// ABOUTME: Calendar-date grouping of a message timeline for rendering
// ABOUTME: Boundaries follow CreatedAt's date in the viewer's location

package messages

import (
	"time"

	"github.com/skillforge/skillforge-client/internal/model"
)

// DateGroup is a run of consecutive timeline messages sharing a calendar
// date in the viewer's location.
type DateGroup struct {
	Date     time.Time // midnight of the group's day, in loc
	Messages []model.Message
}

// GroupByDate splits an ordered timeline at calendar-date boundaries. The
// boundary is the viewer-local date of CreatedAt, so a message sent at
// 23:59 UTC can head the next day's group for an eastern viewer.
func GroupByDate(msgs []model.Message, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}

	var groups []DateGroup
	for _, msg := range msgs {
		local := msg.CreatedAt.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

		if len(groups) == 0 || !groups[len(groups)-1].Date.Equal(day) {
			groups = append(groups, DateGroup{Date: day})
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, msg)
	}
	return groups
}
