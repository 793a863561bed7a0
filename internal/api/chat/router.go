// Package chat turns inbound chat events into ticket lifecycle operations.
package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/domain"
	"github.com/spec-kit/report-router/internal/observability"
	"github.com/spec-kit/report-router/internal/service"
	"github.com/spec-kit/report-router/internal/session"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// DefaultIntentLabel is the reporter keyboard button that starts a report.
const DefaultIntentLabel = "Send a support message"

// Kind tags the single route an inbound event is classified into.
type Kind string

const (
	KindIgnored          Kind = "ignored"
	KindStart            Kind = "start"
	KindForbidden        Kind = "forbidden"
	KindListOpen         Kind = "list_open"
	KindReplyByID        Kind = "reply_by_id"
	KindReplyUsage       Kind = "reply_usage"
	KindReplyMissingText Kind = "reply_missing_text"
	KindIntent           Kind = "intent"
	KindReportBody       Kind = "report_body"
	KindStaffReply       Kind = "staff_reply"
)

// Route is the classification result for one inbound event.
type Route struct {
	Kind     Kind
	TicketID int64
	Text     string
	Ref      domain.SupportRef
}

// Lifecycle is the subset of the ticket service the router drives.
type Lifecycle interface {
	FileReport(ctx context.Context, input service.ReportInput) (*domain.Ticket, error)
	RespondByRef(ctx context.Context, ref domain.SupportRef, response string) (*domain.Ticket, error)
	RespondByID(ctx context.Context, ticketID int64, response string) (*domain.Ticket, error)
	OpenReportsDigest(ctx context.Context) ([]domain.Ticket, error)
}

// Messenger delivers outbound chat messages.
type Messenger interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

// Settings carries the chat-facing configuration.
type Settings struct {
	SupportChatID   int64
	IntentLabel     string
	BotUsername     string
	Operator        string
	SupportChatLink string
}

// Router classifies inbound events and dispatches them.
type Router struct {
	tickets   Lifecycle
	sessions  session.Tracker
	messenger Messenger
	settings  Settings
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// RouterDependencies bundles collaborators for the router.
type RouterDependencies struct {
	Tickets   Lifecycle
	Sessions  session.Tracker
	Messenger Messenger
	Settings  Settings
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewRouter builds a router.
func NewRouter(deps RouterDependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := deps.Settings
	if strings.TrimSpace(settings.IntentLabel) == "" {
		settings.IntentLabel = DefaultIntentLabel
	}
	return &Router{
		tickets:   deps.Tickets,
		sessions:  deps.Sessions,
		messenger: deps.Messenger,
		settings:  settings,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Handle classifies ev once and performs the resulting action. Domain and
// session errors are turned into chat replies; only transport faults are returned.
func (r *Router) Handle(ctx context.Context, ev domain.InboundEvent) error {
	route, err := r.Classify(ctx, ev)
	if err != nil {
		r.metrics.RecordError("chat", "classify", apperrors.CodeOf(err))
		return r.sessionUnavailable(ctx, ev, err)
	}
	r.metrics.RecordRoute(string(route.Kind))

	switch route.Kind {
	case KindStart:
		return r.handleStart(ctx, ev)
	case KindForbidden:
		return r.reply(ctx, ev.OriginID, textSupportOnly)
	case KindListOpen:
		return r.handleListOpen(ctx, ev)
	case KindReplyUsage:
		return r.reply(ctx, ev.OriginID, textReplyUsage)
	case KindReplyMissingText:
		return r.reply(ctx, ev.OriginID, textReplyMissingText)
	case KindReplyByID:
		return r.handleReplyByID(ctx, ev, route)
	case KindIntent:
		return r.handleIntent(ctx, ev)
	case KindReportBody:
		return r.handleReportBody(ctx, ev, route)
	case KindStaffReply:
		return r.handleStaffReply(ctx, route)
	default:
		return nil
	}
}

// Classify maps an event to exactly one route. A report body is recognised by
// consuming the sender's awaiting flag, so classification of free text is the
// one step with a side effect.
func (r *Router) Classify(ctx context.Context, ev domain.InboundEvent) (Route, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return Route{Kind: KindIgnored}, nil
	}
	fromSupport := ev.OriginID == r.settings.SupportChatID

	if strings.HasPrefix(text, "/") {
		return r.classifyCommand(text, fromSupport), nil
	}

	if !fromSupport {
		if text == r.settings.IntentLabel {
			return Route{Kind: KindIntent}, nil
		}
		awaiting, err := r.sessions.ConsumeIfAwaiting(ctx, ev.SenderID)
		if err != nil {
			return Route{}, err
		}
		if awaiting {
			return Route{Kind: KindReportBody, Text: ev.Text}, nil
		}
		return Route{Kind: KindIgnored}, nil
	}

	if ev.IsReply() {
		return Route{Kind: KindStaffReply, Ref: ev.ReplyTo, Text: text}, nil
	}
	return Route{Kind: KindIgnored}, nil
}

func (r *Router) classifyCommand(text string, fromSupport bool) Route {
	name, args := splitFirst(text)
	name = strings.TrimPrefix(name, "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if r.settings.BotUsername != "" && !strings.EqualFold(target, r.settings.BotUsername) {
			return Route{Kind: KindIgnored}
		}
	}

	switch strings.ToLower(name) {
	case "start":
		return Route{Kind: KindStart}
	case "reports":
		if !fromSupport {
			return Route{Kind: KindForbidden}
		}
		return Route{Kind: KindListOpen}
	case "reply":
		if !fromSupport {
			return Route{Kind: KindForbidden}
		}
		return parseReply(args)
	default:
		return Route{Kind: KindIgnored}
	}
}

func parseReply(args string) Route {
	idText, response := splitFirst(args)
	if idText == "" {
		return Route{Kind: KindReplyUsage}
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(idText, "#"), 10, 64)
	if err != nil || id <= 0 {
		return Route{Kind: KindReplyUsage}
	}
	if response == "" {
		return Route{Kind: KindReplyMissingText, TicketID: id}
	}
	return Route{Kind: KindReplyByID, TicketID: id, Text: response}
}

// splitFirst splits s at the first run of whitespace; the remainder keeps its
// inner line breaks.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}

func (r *Router) handleStart(ctx context.Context, ev domain.InboundEvent) error {
	staff := ev.OriginID == r.settings.SupportChatID
	if !staff {
		if err := r.sessions.Reset(ctx, ev.SenderID); err != nil {
			r.recordFailure(KindStart, err)
			return r.sessionUnavailable(ctx, ev, err)
		}
	}
	msg := domain.OutboundMessage{
		ChatID: ev.OriginID,
		Text:   welcomeText(staff, r.settings.Operator, r.settings.SupportChatLink),
	}
	if !staff {
		msg.IntentButton = r.settings.IntentLabel
	}
	return r.send(ctx, msg)
}

func (r *Router) handleListOpen(ctx context.Context, ev domain.InboundEvent) error {
	open, err := r.tickets.OpenReportsDigest(ctx)
	if err != nil {
		r.recordFailure(KindListOpen, err)
		return r.reply(ctx, ev.OriginID, "Error: "+describe(err))
	}
	return r.reply(ctx, ev.OriginID, digestText(open))
}

func (r *Router) handleReplyByID(ctx context.Context, ev domain.InboundEvent, route Route) error {
	closed, err := r.tickets.RespondByID(ctx, route.TicketID, route.Text)
	if err != nil {
		r.recordFailure(KindReplyByID, err)
		return r.reply(ctx, ev.OriginID, "Error: "+describe(err))
	}
	return r.deliverResponse(ctx, closed)
}

func (r *Router) handleIntent(ctx context.Context, ev domain.InboundEvent) error {
	if err := r.sessions.MarkAwaiting(ctx, ev.SenderID); err != nil {
		r.recordFailure(KindIntent, err)
		return r.sessionUnavailable(ctx, ev, err)
	}
	return r.reply(ctx, ev.OriginID, textPrompt)
}

func (r *Router) handleReportBody(ctx context.Context, ev domain.InboundEvent, route Route) error {
	ticket, err := r.tickets.FileReport(ctx, service.ReportInput{
		ReporterID:   ev.SenderID,
		ReporterName: ev.SenderName,
		Body:         route.Text,
	})
	if err != nil {
		r.recordFailure(KindReportBody, err)
		r.logger.Warn("report filing failed", zap.Int64("reporter_id", ev.SenderID), zap.Error(err))
		return r.reply(ctx, ev.OriginID, fileFailedText(err))
	}
	r.logger.Info("report filed",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("reporter_id", ticket.ReporterID),
		zap.String("support_ref", string(ticket.SupportRef)))
	return r.reply(ctx, ev.OriginID, acceptedText(ticket.ID))
}

func (r *Router) handleStaffReply(ctx context.Context, route Route) error {
	closed, err := r.tickets.RespondByRef(ctx, route.Ref, route.Text)
	if errors.Is(err, apperrors.ErrNoMatchingTicket) || errors.Is(err, apperrors.ErrValidation) {
		r.logger.Debug("support reply not routed", zap.String("support_ref", string(route.Ref)), zap.Error(err))
		return nil
	}
	if err != nil {
		r.recordFailure(KindStaffReply, err)
		return r.reply(ctx, r.settings.SupportChatID, replyFailedText(err))
	}
	return r.deliverResponse(ctx, closed)
}

// deliverResponse notifies the reporter of a closed ticket and confirms to
// staff. A failed notification leaves the ticket closed.
func (r *Router) deliverResponse(ctx context.Context, closed *domain.Ticket) error {
	notify := domain.OutboundMessage{ChatID: closed.ReporterID, Text: notifyReporterText(closed.ID, closed.Response)}
	if err := r.send(ctx, notify); err != nil {
		r.recordFailure(KindStaffReply, err)
		r.logger.Warn("reporter notification failed",
			zap.Int64("ticket_id", closed.ID),
			zap.Int64("reporter_id", closed.ReporterID),
			zap.Error(err))
		return r.reply(ctx, r.settings.SupportChatID, deliveryWarningText(closed.ID))
	}
	return r.reply(ctx, r.settings.SupportChatID, confirmText(closed.ID))
}

// sessionUnavailable answers the sender when the session tracker fails.
func (r *Router) sessionUnavailable(ctx context.Context, ev domain.InboundEvent, err error) error {
	r.logger.Warn("session tracker unavailable", zap.Int64("sender_id", ev.SenderID), zap.Error(err))
	return r.reply(ctx, ev.OriginID, textTryLater)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) error {
	return r.send(ctx, domain.OutboundMessage{ChatID: chatID, Text: text})
}

func (r *Router) send(ctx context.Context, msg domain.OutboundMessage) error {
	err := r.messenger.Send(ctx, msg)
	if err != nil && !errors.Is(err, apperrors.ErrDelivery) {
		err = apperrors.NewDeliveryError(err)
	}
	return err
}

func (r *Router) recordFailure(kind Kind, err error) {
	r.metrics.RecordError("chat", string(kind), apperrors.CodeOf(err))
}
