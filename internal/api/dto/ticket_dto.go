package dto

import (
	"time"

	"github.com/spec-kit/report-router/internal/domain"
)

// TicketSummary is the admin view of a ticket.
type TicketSummary struct {
	ID           int64               `json:"id"`
	ReporterID   int64               `json:"reporter_id"`
	ReporterName string              `json:"reporter_name"`
	Body         string              `json:"body"`
	SupportRef   string              `json:"support_ref"`
	Status       domain.TicketStatus `json:"status"`
	Response     string              `json:"response,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ClosedAt     *time.Time          `json:"closed_at,omitempty"`
}

// NewTicketSummary maps a domain ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:           t.ID,
		ReporterID:   t.ReporterID,
		ReporterName: t.ReporterName,
		Body:         t.Body,
		SupportRef:   string(t.SupportRef),
		Status:       t.Status,
		Response:     t.Response,
		CreatedAt:    t.CreatedAt,
		ClosedAt:     t.ClosedAt,
	}
}

// OpenTicketsResponse lists tickets awaiting a response.
type OpenTicketsResponse struct {
	Data  []TicketSummary `json:"data"`
	Count int             `json:"count"`
}
