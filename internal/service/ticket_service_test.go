package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/domain"
	"github.com/spec-kit/report-router/internal/events"
	"github.com/spec-kit/report-router/internal/observability"
	"github.com/spec-kit/report-router/internal/repository"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

type fakePoster struct {
	mu    sync.Mutex
	posts []string
	err   error
}

func (p *fakePoster) PostToSupport(_ context.Context, text string) (domain.SupportRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.posts = append(p.posts, text)
	return domain.SupportRef(fmt.Sprintf("R%d", len(p.posts))), nil
}

type failingRepo struct {
	repository.TicketRepository
}

func (failingRepo) Create(context.Context, *domain.Ticket) error {
	return errors.New("disk full")
}

type harness struct {
	svc     *TicketService
	repo    *repository.MemoryTicketRepository
	poster  *fakePoster
	metrics *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := repository.NewMemoryTicketRepository()
	poster := &fakePoster{}
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	NewAuditService(dispatcher, zap.NewNop(), metrics).RegisterHandlers()
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Poster:     poster,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	return &harness{svc: svc, repo: repo, poster: poster, metrics: metrics}
}

func TestFileReportCreatesOpenTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket, err := h.svc.FileReport(ctx, ReportInput{ReporterID: 501, ReporterName: "@alice", Body: "  printer\n  broken  \n"})
	if err != nil {
		t.Fatalf("FileReport returned error: %v", err)
	}
	if ticket.ID != 1 || ticket.SupportRef != "R1" || ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
	if ticket.Body != "  printer\n  broken  \n" || ticket.ReporterID != 501 || ticket.ReporterName != "@alice" {
		t.Fatalf("unexpected ticket fields: %+v", ticket)
	}
	if len(h.poster.posts) != 1 || !strings.Contains(h.poster.posts[0], "@alice") || !strings.Contains(h.poster.posts[0], "printer\n  broken") {
		t.Fatalf("unexpected support post: %v", h.poster.posts)
	}
	if got := h.metrics.Snapshot().Tickets[string(events.EventTicketFiled)]; got != 1 {
		t.Fatalf("expected filed event to be audited, got %d", got)
	}
}

func TestFileReportDeliveryFailureCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.poster.err = errors.New("telegram unreachable")
	ctx := context.Background()

	_, err := h.svc.FileReport(ctx, ReportInput{ReporterID: 1, ReporterName: "bob", Body: "help"})
	if !errors.Is(err, apperrors.ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	open, _ := h.repo.ListOpen(ctx)
	if len(open) != 0 {
		t.Fatalf("expected no tickets after failed post, got %+v", open)
	}
}

func TestFileReportStorageFailure(t *testing.T) {
	poster := &fakePoster{}
	svc := NewTicketService(TicketDependencies{
		TicketRepo: failingRepo{TicketRepository: repository.NewMemoryTicketRepository()},
		Poster:     poster,
	})

	_, err := svc.FileReport(context.Background(), ReportInput{ReporterID: 1, ReporterName: "bob", Body: "help"})
	if !errors.Is(err, apperrors.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("expected the support post to have been attempted once, got %d", len(poster.posts))
	}
}

func TestFileReportRejectsEmptyBody(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.FileReport(context.Background(), ReportInput{ReporterID: 1, Body: "   "})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.poster.posts) != 0 {
		t.Fatalf("expected nothing posted for an empty body")
	}
}

func TestRespondByRef(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, _ := h.svc.FileReport(ctx, ReportInput{ReporterID: 1, ReporterName: "a", Body: "one"})
	second, _ := h.svc.FileReport(ctx, ReportInput{ReporterID: 2, ReporterName: "b", Body: "two"})

	closed, err := h.svc.RespondByRef(ctx, second.SupportRef, "fixed")
	if err != nil {
		t.Fatalf("RespondByRef returned error: %v", err)
	}
	if closed.ID != second.ID || closed.ReporterID != 2 || closed.Response != "fixed" || closed.Status != domain.TicketStatusClosed {
		t.Fatalf("closed wrong ticket: %+v", closed)
	}

	untouched, _ := h.repo.Get(ctx, first.ID)
	if !untouched.IsOpen() {
		t.Fatalf("reply closed an unrelated ticket")
	}

	tests := []struct {
		name string
		ref  domain.SupportRef
	}{
		{name: "already closed", ref: second.SupportRef},
		{name: "unrelated message", ref: "R999"},
		{name: "empty reference", ref: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.RespondByRef(ctx, tt.ref, "late answer")
			if !errors.Is(err, apperrors.ErrNoMatchingTicket) {
				t.Fatalf("expected routing miss, got %v", err)
			}
			if errors.Is(err, apperrors.ErrNotFound) {
				t.Fatalf("routing miss must be distinct from not found")
			}
		})
	}

	stored, _ := h.repo.Get(ctx, second.ID)
	if stored.Response != "fixed" {
		t.Fatalf("late reply overwrote the response: %q", stored.Response)
	}
	if got := h.metrics.Snapshot().Tickets[string(events.EventRoutingMiss)]; got != 3 {
		t.Fatalf("expected 3 routing misses audited, got %d", got)
	}
}

func TestResolveBySupportRef(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, _ := h.svc.FileReport(ctx, ReportInput{ReporterID: 9, ReporterName: "z", Body: "body"})

	found, err := h.svc.ResolveBySupportRef(ctx, ticket.SupportRef)
	if err != nil || found.ID != ticket.ID {
		t.Fatalf("expected ticket %d, got %+v (%v)", ticket.ID, found, err)
	}
	if _, err := h.svc.ResolveBySupportRef(ctx, "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRespondByID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, _ := h.svc.FileReport(ctx, ReportInput{ReporterID: 77, ReporterName: "r", Body: "body"})

	if _, err := h.svc.RespondByID(ctx, 7, "ok"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.svc.RespondByID(ctx, ticket.ID, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	closed, err := h.svc.RespondByID(ctx, ticket.ID, "ok")
	if err != nil {
		t.Fatalf("RespondByID returned error: %v", err)
	}
	if closed.ReporterID != 77 || closed.ID != ticket.ID {
		t.Fatalf("unexpected closed ticket: %+v", closed)
	}
	if _, err := h.svc.RespondByID(ctx, ticket.ID, "ok again"); !errors.Is(err, apperrors.ErrAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
	// explicit numbering bypasses reply correlation but obeys the same invariants
	if _, err := h.svc.RespondByRef(ctx, ticket.SupportRef, "reply"); !errors.Is(err, apperrors.ErrNoMatchingTicket) {
		t.Fatalf("expected routing miss after closure by id, got %v", err)
	}
}

func TestOpenReportsDigest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	digest, err := h.svc.OpenReportsDigest(ctx)
	if err != nil || len(digest) != 0 {
		t.Fatalf("expected empty digest, got %+v (%v)", digest, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := h.svc.FileReport(ctx, ReportInput{ReporterID: int64(i), ReporterName: "u", Body: "b"}); err != nil {
			t.Fatalf("FileReport returned error: %v", err)
		}
	}
	if _, err := h.svc.RespondByID(ctx, 2, "done"); err != nil {
		t.Fatalf("RespondByID returned error: %v", err)
	}
	digest, err = h.svc.OpenReportsDigest(ctx)
	if err != nil {
		t.Fatalf("OpenReportsDigest returned error: %v", err)
	}
	if len(digest) != 2 || digest[0].ID != 1 || digest[1].ID != 3 {
		t.Fatalf("unexpected digest: %+v", digest)
	}
}

func TestConcurrentRepliesToDifferentTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const n = 10
	tickets := make([]*domain.Ticket, n)
	for i := 0; i < n; i++ {
		tk, err := h.svc.FileReport(ctx, ReportInput{ReporterID: int64(1000 + i), ReporterName: "u", Body: fmt.Sprintf("report %d", i)})
		if err != nil {
			t.Fatalf("FileReport returned error: %v", err)
		}
		tickets[i] = tk
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			closed, err := h.svc.RespondByRef(ctx, tickets[i].SupportRef, fmt.Sprintf("answer %d", i))
			if err != nil {
				t.Errorf("RespondByRef returned error: %v", err)
				return
			}
			if closed.ReporterID != int64(1000+i) {
				t.Errorf("reply %d routed to reporter %d", i, closed.ReporterID)
			}
		}(i)
	}
	wg.Wait()

	for i, tk := range tickets {
		stored, _ := h.repo.Get(ctx, tk.ID)
		if stored.Response != fmt.Sprintf("answer %d", i) {
			t.Fatalf("ticket %d got response %q", tk.ID, stored.Response)
		}
	}
}

func TestStringPreview(t *testing.T) {
	if got := stringPreview("  short  ", 10); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := stringPreview("привет мир", 6); got != "при..." {
		t.Fatalf("unexpected rune-safe preview %q", got)
	}
}
