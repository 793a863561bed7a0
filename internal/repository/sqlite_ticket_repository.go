package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/spec-kit/report-router/internal/domain"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

type sqliteTicketRepository struct {
	db *sql.DB
}

// NewSQLiteTicketRepository instantiates the single-file repository.
// The schema is created by persistence.NewSQLite.
func NewSQLiteTicketRepository(db *sql.DB) TicketRepository {
	return &sqliteTicketRepository{db: db}
}

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := validateNewTicket(ticket); err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (reporter_id, reporter_name, body, support_ref, status, response, created_at)
        VALUES (?,?,?,?,'open','',?)`
	createdAt := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		ticket.ReporterID,
		ticket.ReporterName,
		ticket.Body,
		string(ticket.SupportRef),
		createdAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return apperrors.NewStorageError(errDuplicateRef(ticket.SupportRef))
		}
		return apperrors.NewStorageError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.NewStorageError(err)
	}

	ticket.ID = id
	ticket.Status = domain.TicketStatusOpen
	ticket.Response = ""
	ticket.CreatedAt = createdAt
	ticket.ClosedAt = nil
	return nil
}

func (r *sqliteTicketRepository) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := fetchSQLiteTicket(ctx, r.db, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

func (r *sqliteTicketRepository) Close(ctx context.Context, id int64, response string) (*domain.Ticket, error) {
	if strings.TrimSpace(response) == "" {
		return nil, apperrors.NewValidationError("response text required", nil)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status='closed', response=?, closed_at=? WHERE id=? AND status='open'`,
		response, time.Now().UTC(), id)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	ticket, err := fetchSQLiteTicket(ctx, tx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if affected == 0 {
		return nil, apperrors.NewAlreadyClosed(id)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

func (r *sqliteTicketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE status='open' ORDER BY id ASC`)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, apperrors.NewStorageError(err)
		}
		result = append(result, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return result, nil
}

func (r *sqliteTicketRepository) FindOpenBySupportRef(ctx context.Context, ref domain.SupportRef) (*domain.Ticket, error) {
	ticket, err := fetchSQLiteTicket(ctx, r.db,
		`SELECT `+ticketColumns+` FROM tickets WHERE support_ref=? AND status='open'`, string(ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("open ticket", map[string]any{"support_ref": string(ref)})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return ticket, nil
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func fetchSQLiteTicket(ctx context.Context, q sqliteQuerier, query string, args ...any) (*domain.Ticket, error) {
	return scanSQLiteTicket(q.QueryRowContext(ctx, query, args...))
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		ref      string
		status   string
		closedAt sql.NullTime
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.ReporterID,
		&ticket.ReporterName,
		&ticket.Body,
		&ref,
		&status,
		&ticket.Response,
		&ticket.CreatedAt,
		&closedAt,
	); err != nil {
		return nil, err
	}
	ticket.SupportRef = domain.SupportRef(ref)
	ticket.Status = domain.TicketStatus(status)
	if closedAt.Valid {
		t := closedAt.Time
		ticket.ClosedAt = &t
	}
	return &ticket, nil
}
