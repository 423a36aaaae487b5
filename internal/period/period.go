// Package period derives reset-period keys and evaluation time windows for
// recurring quests.
package period

import (
	"fmt"
	"time"

	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/types"
)

// Key returns the canonical reset-period key for a quest at the given time,
// or "" for quest types without a reset cycle. Quests without a period key
// are claimable at most once ever, governed purely by status.
//
// The WEEKLY week number is day-of-year/7 rounded up, not an ISO-8601 week.
// Existing quests reset on these boundaries, so the definition is load-bearing
// and must not be changed to calendar weeks.
func Key(questType types.QuestType, now time.Time) string {
	d := now.UTC()

	switch questType {
	case types.QuestDaily:
		return fmt.Sprintf("daily:%04d-%02d-%02d", d.Year(), int(d.Month()), d.Day())
	case types.QuestWeekly:
		week := (d.YearDay()-1)/7 + 1
		return fmt.Sprintf("weekly:%04d-W%02d", d.Year(), week)
	default:
		return ""
	}
}

// Window is a half-open [Start, End) activity time range. A zero Start or End
// means unbounded on that side.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// EvaluationWindow returns the valid activity window for evaluating a quest
// at the given time. DAILY spans the current UTC calendar day, WEEKLY spans
// seven days from the most recent UTC Monday 00:00. Both are intersected
// with the quest's startAt/endAt validity window when present; other quest
// types are bounded only by that validity window.
func EvaluationWindow(quest *models.Quest, now time.Time) Window {
	d := now.UTC()
	var w Window

	switch quest.Type {
	case types.QuestDaily:
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		w = Window{Start: start, End: start.AddDate(0, 0, 1)}
	case types.QuestWeekly:
		daysSinceMonday := (int(d.Weekday()) + 6) % 7
		monday := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysSinceMonday)
		w = Window{Start: monday, End: monday.AddDate(0, 0, 7)}
	default:
		w = Window{}
	}

	if quest.StartAt != nil && (w.Start.IsZero() || quest.StartAt.After(w.Start)) {
		w.Start = quest.StartAt.UTC()
	}
	if quest.EndAt != nil && (w.End.IsZero() || quest.EndAt.Before(w.End)) {
		w.End = quest.EndAt.UTC()
	}
	return w
}
