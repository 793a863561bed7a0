package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/domain"
	"github.com/spec-kit/report-router/internal/events"
	"github.com/spec-kit/report-router/internal/repository"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// SupportPoster publishes a report into the staff-facing chat.
type SupportPoster interface {
	PostToSupport(ctx context.Context, text string) (domain.SupportRef, error)
}

// TicketService owns the ticket state machine and the correlation between
// reporters, tickets and support-chat messages.
type TicketService struct {
	tickets    repository.TicketRepository
	poster     SupportPoster
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Poster     SupportPoster
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// ReportInput describes a report submitted by a reporter.
type ReportInput struct {
	ReporterID   int64
	ReporterName string
	Body         string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		poster:     deps.Poster,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// FileReport posts the report to the support chat and records the ticket.
// The caller must already have consumed the reporter's awaiting flag.
//
// A failed post creates nothing. A failed insert after a successful post
// leaves an orphaned support message, which is logged.
func (s *TicketService) FileReport(ctx context.Context, input ReportInput) (*domain.Ticket, error) {
	body := input.Body
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("report text required", nil)
	}

	ref, err := s.poster.PostToSupport(ctx, SupportPostText(input.ReporterName, body))
	if err != nil {
		if !errors.Is(err, apperrors.ErrDelivery) {
			err = apperrors.NewDeliveryError(err)
		}
		return nil, err
	}
	if ref == "" {
		return nil, apperrors.NewDeliveryError(errors.New("support post returned no reference"))
	}

	ticket := &domain.Ticket{
		ReporterID:   input.ReporterID,
		ReporterName: input.ReporterName,
		Body:         body,
		SupportRef:   ref,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.logger.Error("support post has no ticket",
			zap.String("support_ref", string(ref)),
			zap.Int64("reporter_id", input.ReporterID),
			zap.Error(err))
		if !errors.Is(err, apperrors.ErrStorage) && !errors.Is(err, apperrors.ErrValidation) {
			err = apperrors.NewStorageError(err)
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketFiled,
		TicketID: ticket.ID,
		Actor:    reporterActor(ticket.ReporterID),
		Payload: events.TicketFiledPayload{
			ReporterID:   ticket.ReporterID,
			ReporterName: ticket.ReporterName,
			SupportRef:   ticket.SupportRef,
			BodyPreview:  stringPreview(ticket.Body, 120),
		},
	})
	return ticket, nil
}

// ResolveBySupportRef finds the open ticket bound to a support-chat message.
func (s *TicketService) ResolveBySupportRef(ctx context.Context, ref domain.SupportRef) (*domain.Ticket, error) {
	if ref == "" {
		return nil, apperrors.NewNotFound("open ticket", map[string]any{"support_ref": ""})
	}
	return s.tickets.FindOpenBySupportRef(ctx, ref)
}

// RespondByRef closes the open ticket bound to ref with the staff response.
// Any failure to correlate, including losing a race with another closure,
// is reported as a routing miss.
func (s *TicketService) RespondByRef(ctx context.Context, ref domain.SupportRef, response string) (*domain.Ticket, error) {
	if strings.TrimSpace(response) == "" {
		return nil, apperrors.NewValidationError("response text required", nil)
	}

	ticket, err := s.ResolveBySupportRef(ctx, ref)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, s.routingMiss(ctx, ref)
	}
	if err != nil {
		return nil, err
	}

	closed, err := s.tickets.Close(ctx, ticket.ID, response)
	if errors.Is(err, apperrors.ErrAlreadyClosed) || errors.Is(err, apperrors.ErrNotFound) {
		return nil, s.routingMiss(ctx, ref)
	}
	if err != nil {
		return nil, err
	}

	s.publishClosed(ctx, closed, events.ClosedViaReply)
	return closed, nil
}

// RespondByID closes a ticket addressed explicitly by number.
func (s *TicketService) RespondByID(ctx context.Context, ticketID int64, response string) (*domain.Ticket, error) {
	if strings.TrimSpace(response) == "" {
		return nil, apperrors.NewValidationError("response text required", nil)
	}

	closed, err := s.tickets.Close(ctx, ticketID, response)
	if err != nil {
		return nil, err
	}

	s.publishClosed(ctx, closed, events.ClosedViaCommand)
	return closed, nil
}

// OpenReportsDigest lists tickets still waiting for a response.
func (s *TicketService) OpenReportsDigest(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.ListOpen(ctx)
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.tickets.Get(ctx, ticketID)
}

// SupportPostText renders the message posted into the support chat for a new report.
func SupportPostText(reporterName, body string) string {
	return fmt.Sprintf("📝 New bug report\nFrom user %s\n📄 Text:\n%s", reporterName, body)
}

func (s *TicketService) routingMiss(ctx context.Context, ref domain.SupportRef) error {
	s.publishEvent(ctx, events.Event{
		Type:    events.EventRoutingMiss,
		Actor:   domain.Actor{Type: domain.SubjectTypeStaff},
		Payload: events.RoutingMissPayload{SupportRef: ref},
	})
	return apperrors.NewNoMatchingTicket(string(ref))
}

func (s *TicketService) publishClosed(ctx context.Context, ticket *domain.Ticket, via events.ClosedVia) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    domain.Actor{Type: domain.SubjectTypeStaff},
		Payload: events.TicketClosedPayload{
			ReporterID:      ticket.ReporterID,
			Via:             via,
			ResponsePreview: stringPreview(ticket.Response, 120),
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func reporterActor(reporterID int64) domain.Actor {
	return domain.Actor{Type: domain.SubjectTypeReporter, ChatID: reporterID}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
