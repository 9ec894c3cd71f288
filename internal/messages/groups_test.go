// ABOUTME: Tests for calendar-date grouping of a message timeline
// ABOUTME: Boundaries follow the viewer's timezone, not UTC

package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-client/internal/model"
)

func TestGroupByDate_SplitsOnLocalMidnight(t *testing.T) {
	// UTC+5: 23:30 UTC on March 1 is already March 2 locally.
	loc := time.FixedZone("UTC+5", 5*3600)

	msgs := []model.Message{
		{ID: "m1", CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "m2", CreatedAt: time.Date(2026, 3, 1, 18, 59, 0, 0, time.UTC)}, // 23:59 local, same day
		{ID: "m3", CreatedAt: time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)}, // 04:30 local next day
	}

	groups := GroupByDate(msgs, loc)
	require.Len(t, groups, 2)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), groups[0].Date)
	require.Len(t, groups[0].Messages, 2)
	assert.Equal(t, "m1", groups[0].Messages[0].ID)
	assert.Equal(t, "m2", groups[0].Messages[1].ID)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), groups[1].Date)
	require.Len(t, groups[1].Messages, 1)
	assert.Equal(t, "m3", groups[1].Messages[0].ID)
}

func TestGroupByDate_EmptyTimeline(t *testing.T) {
	assert.Empty(t, GroupByDate(nil, time.UTC))
}

func TestGroupByDate_SingleDayKeepsOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Minute)},
		{ID: "c", CreatedAt: base.Add(2 * time.Minute)},
	}

	groups := GroupByDate(msgs, time.UTC)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Messages, 3)
	assert.Equal(t, "a", groups[0].Messages[0].ID)
	assert.Equal(t, "c", groups[0].Messages[2].ID)
}
