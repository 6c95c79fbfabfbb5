package transport

import (
	"context"
	"fmt"
)

// Sender delivers one rendered message to one opaque recipient id.
//
// Implementations are remote API clients (LINE push, Telegram). Calls must
// honor ctx; the dispatcher bounds every call with its own timeout.
type Sender interface {
	Push(ctx context.Context, recipientID, title, text string) error
}

// Replier is implemented by senders whose platform supports token-based
// replies to inbound webhook events (LINE). The webhook handler type-asserts
// for it; other channels simply don't get an echo path.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// SendError is a transport-level delivery failure for a single push attempt.
// It is isolated per (job, recipient) pair and never aborts sibling sends.
type SendError struct {
	Channel string
	Status  int // HTTP status when known, 0 otherwise
	Err     error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s send failed (http %d): %v", e.Channel, e.Status, e.Err)
	}
	return fmt.Sprintf("%s send failed: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
