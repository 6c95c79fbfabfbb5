package dispatch

import (
	"time"

	"linebell/internal/store"
)

// secondOfDay collapses a wall-clock instant to seconds since local midnight,
// so daily/weekly comparisons ignore the calendar date of TriggerAt.
func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// due decides whether a job should fire at now and, for recurring jobs,
// returns the period key to record. The decision is pure: late process starts
// make one-time and same-day recurring jobs fire on the next tick, but a
// recurring occurrence whose whole period was missed is skipped, not
// replayed.
func due(j store.Job, now time.Time) (fire bool, periodKey string) {
	switch j.Recurrence {
	case store.RecurDaily:
		key := store.PeriodKey(now)
		if j.LastFired == key {
			return false, ""
		}
		if secondOfDay(now) < secondOfDay(j.TriggerAt) {
			return false, ""
		}
		return true, key

	case store.RecurWeekly:
		if j.WeekDay == nil || int(now.Weekday()) != *j.WeekDay {
			return false, ""
		}
		key := store.PeriodKey(now)
		if j.LastFired == key {
			return false, ""
		}
		if secondOfDay(now) < secondOfDay(j.TriggerAt) {
			return false, ""
		}
		return true, key

	default: // one-time
		if j.Delivered {
			return false, ""
		}
		return !now.Before(j.TriggerAt), ""
	}
}
