package dispatch

import (
	"testing"
	"time"

	"linebell/internal/store"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func wd(n int) *int { return &n }

func TestDueOneTime(t *testing.T) {
	t.Parallel()
	trigger := mustTime(t, "2026-03-10 09:00:00")

	tests := []struct {
		name      string
		delivered bool
		now       string
		fire      bool
	}{
		{name: "before trigger", now: "2026-03-10 08:59:00", fire: false},
		{name: "exactly at trigger", now: "2026-03-10 09:00:00", fire: true},
		{name: "after trigger", now: "2026-03-10 09:05:00", fire: true},
		{name: "long after trigger", now: "2026-03-12 00:00:00", fire: true},
		{name: "already delivered", delivered: true, now: "2026-03-10 09:05:00", fire: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			j := store.Job{TriggerAt: trigger, Recurrence: store.RecurNone, Delivered: tt.delivered}
			fire, key := due(j, mustTime(t, tt.now))
			if fire != tt.fire {
				t.Fatalf("fire = %v, want %v", fire, tt.fire)
			}
			if key != "" {
				t.Fatalf("one-time job must not carry a period key, got %q", key)
			}
		})
	}
}

func TestDueDaily(t *testing.T) {
	t.Parallel()
	// Only the time-of-day of TriggerAt matters for daily jobs.
	trigger := mustTime(t, "2026-01-01 09:00:00")

	tests := []struct {
		name      string
		lastFired string
		now       string
		fire      bool
		key       string
	}{
		{name: "before time of day", now: "2026-03-10 08:59:00", fire: false},
		{name: "first tick past time", now: "2026-03-10 09:01:00", fire: true, key: "2026-03-10"},
		{name: "same day already fired", lastFired: "2026-03-10", now: "2026-03-10 09:05:00", fire: false},
		{name: "next day fires again", lastFired: "2026-03-10", now: "2026-03-11 09:01:00", fire: true, key: "2026-03-11"},
		{name: "trigger date in the past is ignored", lastFired: "", now: "2026-03-10 09:00:00", fire: true, key: "2026-03-10"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			j := store.Job{TriggerAt: trigger, Recurrence: store.RecurDaily, LastFired: tt.lastFired}
			fire, key := due(j, mustTime(t, tt.now))
			if fire != tt.fire {
				t.Fatalf("fire = %v, want %v", fire, tt.fire)
			}
			if key != tt.key {
				t.Fatalf("key = %q, want %q", key, tt.key)
			}
		})
	}
}

func TestDueWeekly(t *testing.T) {
	t.Parallel()
	trigger := mustTime(t, "2026-01-01 09:00:00")
	// 2026-03-10 is a Tuesday (weekday 2).

	tests := []struct {
		name      string
		weekDay   *int
		lastFired string
		now       string
		fire      bool
		key       string
	}{
		{name: "matching weekday past time", weekDay: wd(2), now: "2026-03-10 09:01:00", fire: true, key: "2026-03-10"},
		{name: "matching weekday before time", weekDay: wd(2), now: "2026-03-10 08:30:00", fire: false},
		{name: "wrong weekday", weekDay: wd(3), now: "2026-03-10 10:00:00", fire: false},
		{name: "already fired this occurrence", weekDay: wd(2), lastFired: "2026-03-10", now: "2026-03-10 10:00:00", fire: false},
		{name: "next week fires again", weekDay: wd(2), lastFired: "2026-03-10", now: "2026-03-17 09:01:00", fire: true, key: "2026-03-17"},
		{name: "missing weekday never fires", weekDay: nil, now: "2026-03-10 10:00:00", fire: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			j := store.Job{TriggerAt: trigger, Recurrence: store.RecurWeekly, WeekDay: tt.weekDay, LastFired: tt.lastFired}
			fire, key := due(j, mustTime(t, tt.now))
			if fire != tt.fire {
				t.Fatalf("fire = %v, want %v", fire, tt.fire)
			}
			if key != tt.key {
				t.Fatalf("key = %q, want %q", key, tt.key)
			}
		})
	}
}

func TestDueMissedRecurringPeriodIsSkipped(t *testing.T) {
	t.Parallel()
	// Fired Monday, process down through Tuesday, back Wednesday. The daily
	// job fires once for Wednesday; Tuesday's occurrence is gone.
	j := store.Job{
		TriggerAt:  mustTime(t, "2026-01-01 09:00:00"),
		Recurrence: store.RecurDaily,
		LastFired:  "2026-03-09",
	}
	fire, key := due(j, mustTime(t, "2026-03-11 09:30:00"))
	if !fire || key != "2026-03-11" {
		t.Fatalf("fire=%v key=%q, want fire for 2026-03-11 only", fire, key)
	}
}
