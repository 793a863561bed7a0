package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/report-router/internal/domain"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// TicketRepository encapsulates ticket persistence.
//
// Implementations must keep Create and Close atomic: Create either stores the
// full record and assigns an id or stores nothing, and Close only succeeds
// against a ticket that is open at the moment of the update.
type TicketRepository interface {
	// Create inserts an open ticket and fills ID, Status and CreatedAt.
	Create(ctx context.Context, ticket *domain.Ticket) error
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	// Close records the response and flips the ticket to closed.
	Close(ctx context.Context, id int64, response string) (*domain.Ticket, error)
	// ListOpen returns a snapshot of open tickets in ascending id order.
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	FindOpenBySupportRef(ctx context.Context, ref domain.SupportRef) (*domain.Ticket, error)
}

const uniqueViolation = "23505"

const ticketColumns = `id, reporter_id, reporter_name, body, support_ref, status, response, created_at, closed_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := validateNewTicket(ticket); err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (reporter_id, reporter_name, body, support_ref, status, response)
        VALUES ($1,$2,$3,$4,'open','')
        RETURNING id, status, created_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ReporterID,
		ticket.ReporterName,
		ticket.Body,
		ticket.SupportRef,
	).Scan(&ticket.ID, &ticket.Status, &ticket.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.NewStorageError(errDuplicateRef(ticket.SupportRef))
		}
		return apperrors.NewStorageError(err)
	}
	ticket.Response = ""
	ticket.ClosedAt = nil
	return nil
}

func (r *ticketRepository) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := r.fetchSingle(ctx, query, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Close(ctx context.Context, id int64, response string) (*domain.Ticket, error) {
	if strings.TrimSpace(response) == "" {
		return nil, apperrors.NewValidationError("response text required", nil)
	}
	query := `
        UPDATE tickets SET status='closed', response=$2, closed_at=NOW()
        WHERE id=$1 AND status='open'
        RETURNING ` + ticketColumns
	ticket, err := r.fetchSingle(ctx, query, id, response)
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewStorageError(err)
	}
	// nothing updated: either the ticket does not exist or it is no longer open
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, apperrors.NewAlreadyClosed(id)
}

func (r *ticketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status='open' ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return tickets, nil
}

func (r *ticketRepository) FindOpenBySupportRef(ctx context.Context, ref domain.SupportRef) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE support_ref=$1 AND status='open'`
	ticket, err := r.fetchSingle(ctx, query, ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("open ticket", map[string]any{"support_ref": string(ref)})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.ReporterID,
		&ticket.ReporterName,
		&ticket.Body,
		&ticket.SupportRef,
		&ticket.Status,
		&ticket.Response,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ReporterID,
			&ticket.ReporterName,
			&ticket.Body,
			&ticket.SupportRef,
			&ticket.Status,
			&ticket.Response,
			&ticket.CreatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func validateNewTicket(ticket *domain.Ticket) error {
	if ticket == nil {
		return apperrors.NewValidationError("ticket required", nil)
	}
	if strings.TrimSpace(ticket.Body) == "" {
		return apperrors.NewValidationError("report body required", nil)
	}
	if ticket.SupportRef == "" {
		return apperrors.NewValidationError("support reference required", nil)
	}
	return nil
}

func errDuplicateRef(ref domain.SupportRef) error {
	return fmt.Errorf("support reference %s already bound to a ticket", ref)
}
