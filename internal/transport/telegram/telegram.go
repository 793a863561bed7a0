// Package telegram adapts the Telegram Bot API to the chat router.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/config"
	"github.com/spec-kit/report-router/internal/domain"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// Sender is the part of the Bot API used for outbound messages.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Dispatcher receives inbound events in arrival order.
type Dispatcher interface {
	Submit(ctx context.Context, ev domain.InboundEvent) error
}

// Transport posts reports to the support chat and delivers replies.
type Transport struct {
	sender        Sender
	supportChatID int64
	logger        *zap.Logger
}

// NewTransport wraps a sender.
func NewTransport(sender Sender, supportChatID int64, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{sender: sender, supportChatID: supportChatID, logger: logger}
}

// PostToSupport posts text into the support chat and returns the message id as the reference.
func (t *Transport) PostToSupport(ctx context.Context, text string) (domain.SupportRef, error) {
	msg, err := t.sender.SendMessage(ctx, tu.Message(tu.ID(t.supportChatID), text))
	if err != nil {
		return "", apperrors.NewDeliveryError(err)
	}
	if msg == nil {
		return "", apperrors.NewDeliveryError(errors.New("empty send result"))
	}
	return MessageRef(msg.MessageID), nil
}

// Send delivers an outbound message, rendering the intent keyboard when requested.
func (t *Transport) Send(ctx context.Context, out domain.OutboundMessage) error {
	params := tu.Message(tu.ID(out.ChatID), out.Text)
	if out.IntentButton != "" {
		params = params.WithReplyMarkup(
			tu.Keyboard(tu.KeyboardRow(tu.KeyboardButton(out.IntentButton))).WithResizeKeyboard(),
		)
	}
	if _, err := t.sender.SendMessage(ctx, params); err != nil {
		t.logger.Warn("send failed", zap.Int64("chat_id", out.ChatID), zap.Error(err))
		return apperrors.NewDeliveryError(err)
	}
	return nil
}

// MessageRef renders a Telegram message id as a support reference.
func MessageRef(messageID int) domain.SupportRef {
	return domain.SupportRef(strconv.Itoa(messageID))
}

// ToInboundEvent converts a Telegram message; ok is false for messages without a chat sender.
func ToInboundEvent(msg *telego.Message) (domain.InboundEvent, bool) {
	if msg == nil {
		return domain.InboundEvent{}, false
	}
	ev := domain.InboundEvent{
		OriginID: msg.Chat.ID,
		SenderID: msg.Chat.ID,
		Text:     msg.Text,
	}
	if msg.From != nil {
		ev.SenderID = msg.From.ID
		ev.SenderName = DisplayName(msg.From)
	}
	if msg.ReplyToMessage != nil {
		ev.ReplyTo = MessageRef(msg.ReplyToMessage.MessageID)
	}
	return ev, true
}

// DisplayName prefers the @username and falls back to the full name.
func DisplayName(u *telego.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return "id" + strconv.FormatInt(u.ID, 10)
	}
	return name
}

// Bot owns the Bot API client and the long-polling loop.
type Bot struct {
	*Transport
	api    *telego.Bot
	cfg    config.TelegramConfig
	logger *zap.Logger
}

// NewBot creates a client for the configured token.
func NewBot(cfg config.TelegramConfig, logger *zap.Logger) (*Bot, error) {
	api, err := telego.NewBot(cfg.BotToken, telego.WithLogger(logger.Sugar()))
	if err != nil {
		return nil, err
	}
	return &Bot{
		Transport: NewTransport(api, cfg.SupportChatID, logger),
		api:       api,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Username returns the bot's @-less username as reported by the API.
func (b *Bot) Username(ctx context.Context) (string, error) {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return me.Username, nil
}

// Run long-polls updates and hands each message to dispatcher until ctx is done.
func (b *Bot) Run(ctx context.Context, dispatcher Dispatcher) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.PollTimeout(),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return err
	}
	b.logger.Info("telegram long polling started", zap.Int64("support_chat_id", b.cfg.SupportChatID))

	for update := range updates {
		ev, ok := ToInboundEvent(update.Message)
		if !ok {
			continue
		}
		if err := dispatcher.Submit(ctx, ev); err != nil {
			b.logger.Warn("inbound event dropped",
				zap.Int("update_id", update.UpdateID),
				zap.Int64("chat_id", ev.OriginID),
				zap.Error(err))
		}
	}
	return ctx.Err()
}
