package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/events"
	"github.com/spec-kit/report-router/internal/observability"
)

// AuditService writes ticket lifecycle events to the structured log and counters.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketFiled, a.handleTicketFiled)
	a.dispatcher.Subscribe(events.EventTicketClosed, a.handleTicketClosed)
	a.dispatcher.Subscribe(events.EventRoutingMiss, a.handleRoutingMiss)
}

func (a *AuditService) handleTicketFiled(_ context.Context, event events.Event) error {
	a.metrics.RecordTicketEvent(string(event.Type))
	a.logger.Info("TicketFiled",
		zap.String("event_id", event.ID),
		zap.Int64("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (a *AuditService) handleTicketClosed(_ context.Context, event events.Event) error {
	a.metrics.RecordTicketEvent(string(event.Type))
	a.logger.Info("TicketClosed",
		zap.String("event_id", event.ID),
		zap.Int64("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (a *AuditService) handleRoutingMiss(_ context.Context, event events.Event) error {
	a.metrics.RecordTicketEvent(string(event.Type))
	a.logger.Debug("RoutingMiss",
		zap.String("event_id", event.ID),
		zap.Any("payload", event.Payload))
	return nil
}
