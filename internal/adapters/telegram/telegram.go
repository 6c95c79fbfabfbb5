// Package telegram is the alternative push driver. Recipient ids are chat ids
// in decimal form.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

type Config struct {
	Token string
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

var _ transport.Sender = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: nil, // default http client
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Push(ctx context.Context, recipientID, title, text string) error {
	_ = ctx // telebot has no per-call context; the dispatcher's timeout caps the caller side
	chatID, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil {
		return &transport.SendError{Channel: "telegram", Err: errors.New("recipient id is not a chat id: " + recipientID)}
	}

	msg := text
	if t := strings.TrimSpace(title); t != "" {
		msg = t + "\n" + text
	}
	if _, err := a.bot.Send(&tele.Chat{ID: chatID}, msg); err != nil {
		return &transport.SendError{Channel: "telegram", Err: err}
	}
	return nil
}
