package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/report-router/internal/api/dto"
	"github.com/spec-kit/report-router/internal/domain"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// TicketReader is the read side of the ticket service.
type TicketReader interface {
	OpenReportsDigest(ctx context.Context) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error)
}

// TicketsHandler exposes read-only ticket endpoints.
type TicketsHandler struct {
	service TicketReader
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService TicketReader) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListOpen GET /tickets/open.
func (h *TicketsHandler) ListOpen(c *fiber.Ctx) error {
	tickets, err := h.service.OpenReportsDigest(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(dto.OpenTicketsResponse{Data: items, Count: len(items)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("ticket id must be a positive integer", map[string]any{"id": c.Params("id")})
	}
	ticket, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}
