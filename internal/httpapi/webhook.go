package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	logx "linebell/pkg/logx"
)

const echoPrefix = "你說的是："

// webhookPayload mirrors the LINE webhook envelope; only text message events
// are acted on, everything else is acknowledged and ignored.
type webhookPayload struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Message    struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// handleWebhook acknowledges LINE events and, when replies are enabled,
// echoes text messages back. The platform retries on non-2xx, so malformed
// bodies still get 200 once the signature checks out.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.cfg.ChannelSecret != "" && !validSignature(s.cfg.ChannelSecret, body, r.Header.Get("X-Line-Signature")) {
		s.log.Warn("webhook signature mismatch")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.log.Warn("webhook body not parseable", logx.Err(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		if !s.cfg.ReplyEnabled || s.replier == nil || ev.ReplyToken == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		err := s.replier.Reply(ctx, ev.ReplyToken, echoPrefix+ev.Message.Text)
		cancel()
		if err != nil {
			// Reply tokens are single-use and short-lived; log and move on.
			s.log.Warn("webhook reply failed", logx.Err(err))
		}
	}

	w.WriteHeader(http.StatusOK)
}

// validSignature checks the X-Line-Signature header: base64 of the HMAC-SHA256
// of the raw body under the channel secret.
func validSignature(secret string, body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(want), []byte(header)) == 1
}
