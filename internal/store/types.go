package store

import (
	"fmt"
	"time"
)

// Recurrence of a scheduled job.
type Recurrence string

const (
	RecurNone   Recurrence = "none"
	RecurDaily  Recurrence = "daily"
	RecurWeekly Recurrence = "weekly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly:
		return true
	}
	return false
}

// PeriodKeyLayout is the calendar-date form of a recurring job's period key.
// A recurring job fires at most once per key.
const PeriodKeyLayout = "2006-01-02"

// PeriodKey returns the period key for a point in time.
func PeriodKey(t time.Time) string { return t.Format(PeriodKeyLayout) }

// Job is a persisted request to deliver a rendered message to a set of
// recipients, either once or on a recurring schedule.
//
// Title and MessageText are fully rendered at creation time; dispatch never
// re-renders. For one-time jobs TriggerAt is the exact fire instant; for
// recurring jobs it supplies the time-of-day (and, for weekly, the weekday
// lives in WeekDay, 0=Sunday..6=Saturday).
type Job struct {
	ID          string     `json:"id"`
	Recipients  []string   `json:"recipient_ids"`
	Title       string     `json:"title"`
	MessageText string     `json:"message_text"`
	TriggerAt   time.Time  `json:"trigger_at"`
	Recurrence  Recurrence `json:"recurrence"`
	WeekDay     *int       `json:"week_day,omitempty"`

	// Dispatch state. Delivered is the terminal latch for one-time jobs;
	// LastFired records the most recent period key a recurring job fired in.
	Delivered bool   `json:"delivered,omitempty"`
	LastFired string `json:"last_fired,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// OneTime reports whether the job fires exactly once.
func (j Job) OneTime() bool { return j.Recurrence == "" || j.Recurrence == RecurNone }

// Clone returns a deep copy so callers can mutate without aliasing the
// store's slices.
func (j Job) Clone() Job {
	cp := j
	cp.Recipients = append([]string(nil), j.Recipients...)
	if j.WeekDay != nil {
		wd := *j.WeekDay
		cp.WeekDay = &wd
	}
	return cp
}

// PersistError wraps a failure of the backing medium. It is surfaced to the
// operator and never silently swallowed; the dispatcher retries from the last
// durable state on the next tick.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistError{Op: op, Err: err}
}

// Config configures the job store.
//
// Driver values:
//   - "file": JSON array with atomic whole-file overwrite (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
