package events

import (
	"time"

	"github.com/spec-kit/report-router/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketFiled  EventType = "ticket_filed"
	EventTicketClosed EventType = "ticket_closed"
	EventRoutingMiss  EventType = "routing_miss"
)

// ClosedVia records which staff path closed a ticket.
type ClosedVia string

const (
	ClosedViaReply   ClosedVia = "reply"
	ClosedViaCommand ClosedVia = "command"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  int64        `json:"ticket_id,omitempty"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketFiledPayload payload.
type TicketFiledPayload struct {
	ReporterID   int64             `json:"reporter_id"`
	ReporterName string            `json:"reporter_name"`
	SupportRef   domain.SupportRef `json:"support_ref"`
	BodyPreview  string            `json:"body_preview"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ReporterID      int64     `json:"reporter_id"`
	Via             ClosedVia `json:"via"`
	ResponsePreview string    `json:"response_preview"`
}

// RoutingMissPayload payload.
type RoutingMissPayload struct {
	SupportRef domain.SupportRef `json:"support_ref"`
}
