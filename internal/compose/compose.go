// Package compose renders a template id plus parameters into final message
// text. Composition happens exactly once, at job-creation time; the stored
// text is the literal payload the dispatcher later sends.
package compose

import (
	"fmt"
	"strings"
)

// Kind is the closed set of message templates.
//
// An unknown template id resolves to KindCustom, which passes the caller's
// literal content through verbatim.
type Kind int

const (
	KindCustom Kind = iota
	KindReminder
	KindPaymentDue
	KindAnnouncement
)

// Params carries template parameters. Currency/Amount are only meaningful for
// the payment-due template; Note is free text.
type Params struct {
	Note     string
	Currency string
	Amount   float64
}

// Resolve maps a template id to its Kind.
func Resolve(id string) Kind {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "reminder":
		return KindReminder
	case "payment_due", "payment-due":
		return KindPaymentDue
	case "announcement":
		return KindAnnouncement
	default:
		return KindCustom
	}
}

// Render produces the final message text for the kind.
// content is the caller-supplied literal used by KindCustom.
func (k Kind) Render(p Params, content string) string {
	switch k {
	case KindReminder:
		return "提醒：" + p.Note
	case KindPaymentDue:
		text := fmt.Sprintf("請繳費：%s %.2f", strings.ToUpper(p.Currency), p.Amount)
		if p.Note != "" {
			text += "（" + p.Note + "）"
		}
		return text
	case KindAnnouncement:
		return "公告：" + p.Note
	default:
		return content
	}
}

// Render is the one-shot helper: resolve the id, render with params,
// falling back to content verbatim for unknown ids.
func Render(templateID string, p Params, content string) string {
	return Resolve(templateID).Render(p, content)
}
