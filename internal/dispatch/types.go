package dispatch

import (
	"time"
)

// Config controls the due-check/dispatch loop.
type Config struct {
	// Tick is the loop period. A tick that finds the previous one still
	// running is skipped, never queued.
	Tick time.Duration
	// SendTimeout bounds each individual push so one hung recipient cannot
	// stall the tick.
	SendTimeout time.Duration
	// MaxInflight caps concurrent pushes within a tick.
	MaxInflight int
	// RatePerSec throttles pushes across the tick.
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 60 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	return c
}

// SendFailure records one failed (job, recipient) push within a tick. The job
// still transitions to fired; the operator can resend manually.
type SendFailure struct {
	JobID     string `json:"job_id"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// Report aggregates one tick. Per-recipient and per-job errors are isolated
// here rather than raised as a single failure.
type Report struct {
	At       time.Time     `json:"at"`
	Took     time.Duration `json:"took"`
	Scanned  int           `json:"scanned"`
	Due      int           `json:"due"`
	Sent     int           `json:"sent"`
	Failures []SendFailure `json:"failures,omitempty"`
	// PersistError is set when the tick's commit failed; the state change is
	// not durable and the next tick retries from the last durable state.
	PersistError string `json:"persist_error,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
}
