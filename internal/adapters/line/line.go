// Package line is the LINE Messaging API sender: push messages to recipient
// ids and token-based replies to webhook events.
package line

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

const defaultAPIBase = "https://api.line.me"

type Config struct {
	ChannelToken string
	// APIBase overrides the endpoint (tests, proxies).
	APIBase string
	Timeout time.Duration
}

type Adapter struct {
	cfg  Config
	log  logx.Logger
	http *resty.Client
}

var _ transport.Sender = (*Adapter)(nil)
var _ transport.Replier = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.ChannelToken) == "" {
		return nil, errors.New("line channel token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.ChannelToken).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Adapter{cfg: cfg, log: log, http: client}, nil
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type apiError struct {
	Message string `json:"message"`
}

// Push delivers one text message to one recipient id.
func (a *Adapter) Push(ctx context.Context, recipientID, title, text string) error {
	body := pushRequest{
		To:       recipientID,
		Messages: []textMessage{{Type: "text", Text: joinTitle(title, text)}},
	}
	return a.post(ctx, "/v2/bot/message/push", body)
}

// Reply answers a webhook event using its reply token.
func (a *Adapter) Reply(ctx context.Context, replyToken, text string) error {
	body := replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	}
	return a.post(ctx, "/v2/bot/message/reply", body)
}

func (a *Adapter) post(ctx context.Context, path string, body any) error {
	var apiErr apiError
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return &transport.SendError{Channel: "line", Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status()
		}
		return &transport.SendError{Channel: "line", Status: resp.StatusCode(), Err: fmt.Errorf("%s: %s", path, msg)}
	}
	return nil
}

func joinTitle(title, text string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return text
	}
	return title + "\n" + text
}
