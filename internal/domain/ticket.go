package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen TicketStatus = "open"
	// TicketStatusInProgress is reserved; no transition produces it.
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// SupportRef identifies the support-chat message that represents a ticket.
type SupportRef string

// Ticket is a single user-submitted report.
type Ticket struct {
	ID           int64
	ReporterID   int64
	ReporterName string
	Body         string
	SupportRef   SupportRef
	Status       TicketStatus
	Response     string
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

// IsOpen reports whether the ticket still accepts a response.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}

// CanTransition reports whether the state machine allows current -> next.
// The machine is strictly open -> closed.
func CanTransition(current, next TicketStatus) bool {
	return current == TicketStatusOpen && next == TicketStatusClosed
}
