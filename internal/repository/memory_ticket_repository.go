package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/report-router/internal/domain"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// MemoryTicketRepository keeps tickets in process memory. It backs tests and
// the STORE_DRIVER=memory development mode; nothing survives a restart.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	nextID  int64
	tickets map[int64]*domain.Ticket
	byRef   map[domain.SupportRef]int64
	now     func() time.Time
}

// NewMemoryTicketRepository creates an empty in-memory store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[int64]*domain.Ticket),
		byRef:   make(map[domain.SupportRef]int64),
		now:     time.Now,
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	if err := validateNewTicket(ticket); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRef[ticket.SupportRef]; exists {
		return apperrors.NewStorageError(errDuplicateRef(ticket.SupportRef))
	}

	r.nextID++
	ticket.ID = r.nextID
	ticket.Status = domain.TicketStatusOpen
	ticket.Response = ""
	ticket.CreatedAt = r.now()
	ticket.ClosedAt = nil

	stored := *ticket
	r.tickets[stored.ID] = &stored
	r.byRef[stored.SupportRef] = stored.ID
	return nil
}

func (r *MemoryTicketRepository) Get(_ context.Context, id int64) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return cloneTicket(stored), nil
}

func (r *MemoryTicketRepository) Close(_ context.Context, id int64, response string) (*domain.Ticket, error) {
	if strings.TrimSpace(response) == "" {
		return nil, apperrors.NewValidationError("response text required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if !domain.CanTransition(stored.Status, domain.TicketStatusClosed) {
		return nil, apperrors.NewAlreadyClosed(id)
	}

	closedAt := r.now()
	stored.Status = domain.TicketStatusClosed
	stored.Response = response
	stored.ClosedAt = &closedAt
	return cloneTicket(stored), nil
}

func (r *MemoryTicketRepository) ListOpen(_ context.Context) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.Ticket{}
	for _, stored := range r.tickets {
		if stored.IsOpen() {
			result = append(result, *cloneTicket(stored))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryTicketRepository) FindOpenBySupportRef(_ context.Context, ref domain.SupportRef) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byRef[ref]; ok {
		if stored := r.tickets[id]; stored.IsOpen() {
			return cloneTicket(stored), nil
		}
	}
	return nil, apperrors.NewNotFound("open ticket", map[string]any{"support_ref": string(ref)})
}

func cloneTicket(src *domain.Ticket) *domain.Ticket {
	out := *src
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		out.ClosedAt = &closedAt
	}
	return &out
}
