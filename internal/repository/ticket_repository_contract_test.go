package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/config"
	"github.com/spec-kit/report-router/internal/domain"
	"github.com/spec-kit/report-router/internal/persistence"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

type repoFactory func(t *testing.T) TicketRepository

func backends() map[string]repoFactory {
	return map[string]repoFactory{
		"memory": func(t *testing.T) TicketRepository {
			return NewMemoryTicketRepository()
		},
		"sqlite": func(t *testing.T) TicketRepository {
			db, err := persistence.NewSQLite(context.Background(), config.SQLiteConfig{
				Path:          filepath.Join(t.TempDir(), "tickets.db"),
				BusyTimeoutMS: 5000,
			}, zap.NewNop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(db.Close)
			return NewSQLiteTicketRepository(db.DB)
		},
		"postgres": openPostgres,
	}
}

// openPostgres runs the suite against POSTGRES_DSN on an emptied tickets table.
func openPostgres(t *testing.T) TicketRepository {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 16}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pg.Close)
	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), zap.NewNop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if _, err := pg.PoolHandle().Exec(ctx, `TRUNCATE tickets RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate tickets: %v", err)
	}
	return NewTicketRepository(pg.PoolHandle())
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo TicketRepository)) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func newTicket(reporter int64, body, ref string) *domain.Ticket {
	return &domain.Ticket{
		ReporterID:   reporter,
		ReporterName: fmt.Sprintf("user%d", reporter),
		Body:         body,
		SupportRef:   domain.SupportRef(ref),
	}
}

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		var last int64
		for i := 0; i < 5; i++ {
			tk := newTicket(int64(100+i), "printer broken", fmt.Sprintf("ref-%d", i))
			if err := repo.Create(ctx, tk); err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if tk.ID <= last {
				t.Fatalf("expected id > %d, got %d", last, tk.ID)
			}
			if tk.Status != domain.TicketStatusOpen || tk.Response != "" {
				t.Fatalf("expected open ticket with empty response, got %+v", tk)
			}
			last = tk.ID
		}
	})
}

func TestCreateRejectsDuplicateSupportRef(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		if err := repo.Create(ctx, newTicket(1, "first", "R1")); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		err := repo.Create(ctx, newTicket(2, "second", "R1"))
		if !errors.Is(err, apperrors.ErrStorage) {
			t.Fatalf("expected storage error, got %v", err)
		}
		open, err := repo.ListOpen(ctx)
		if err != nil {
			t.Fatalf("ListOpen returned error: %v", err)
		}
		if len(open) != 1 || open[0].ReporterID != 1 {
			t.Fatalf("expected only the first ticket, got %+v", open)
		}
	})
}

func TestCreateValidatesInput(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		if err := repo.Create(ctx, newTicket(1, "  ", "R1")); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("expected validation error for empty body, got %v", err)
		}
		if err := repo.Create(ctx, newTicket(1, "body", "")); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("expected validation error for empty ref, got %v", err)
		}
	})
}

func TestGetMissingTicket(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		tk, err := repo.Get(context.Background(), 7)
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if tk != nil {
			t.Fatalf("expected nil ticket, got %+v", tk)
		}
	})
}

func TestCloseLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		tk := newTicket(42, "printer broken", "R1")
		if err := repo.Create(ctx, tk); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}

		if _, err := repo.Close(ctx, tk.ID, " "); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("expected validation error for empty response, got %v", err)
		}

		closed, err := repo.Close(ctx, tk.ID, "sending a tech")
		if err != nil {
			t.Fatalf("Close returned error: %v", err)
		}
		if closed.Status != domain.TicketStatusClosed || closed.Response != "sending a tech" || closed.ClosedAt == nil {
			t.Fatalf("unexpected closed ticket: %+v", closed)
		}
		if closed.ReporterID != 42 || closed.SupportRef != "R1" {
			t.Fatalf("closure altered immutable fields: %+v", closed)
		}

		if _, err := repo.Close(ctx, tk.ID, "again"); !errors.Is(err, apperrors.ErrAlreadyClosed) {
			t.Fatalf("expected already closed, got %v", err)
		}
		again, err := repo.Get(ctx, tk.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if again.Response != "sending a tech" {
			t.Fatalf("second close overwrote response: %q", again.Response)
		}

		if _, err := repo.Close(ctx, 999, "ok"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestListOpenAndFindBySupportRef(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		ids := make([]int64, 0, 3)
		for i := 1; i <= 3; i++ {
			tk := newTicket(int64(i), fmt.Sprintf("report %d", i), fmt.Sprintf("R%d", i))
			if err := repo.Create(ctx, tk); err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			ids = append(ids, tk.ID)
		}
		if _, err := repo.Close(ctx, ids[1], "done"); err != nil {
			t.Fatalf("Close returned error: %v", err)
		}

		open, err := repo.ListOpen(ctx)
		if err != nil {
			t.Fatalf("ListOpen returned error: %v", err)
		}
		if len(open) != 2 || open[0].ID != ids[0] || open[1].ID != ids[2] {
			t.Fatalf("unexpected open set: %+v", open)
		}

		found, err := repo.FindOpenBySupportRef(ctx, "R3")
		if err != nil {
			t.Fatalf("FindOpenBySupportRef returned error: %v", err)
		}
		if found.ID != ids[2] || found.ReporterID != 3 {
			t.Fatalf("resolved wrong ticket: %+v", found)
		}
		if _, err := repo.FindOpenBySupportRef(ctx, "R2"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected closed ticket to be invisible, got %v", err)
		}
		if _, err := repo.FindOpenBySupportRef(ctx, "unknown"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("expected not found for unknown ref, got %v", err)
		}
	})
}

func TestListOpenEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		open, err := repo.ListOpen(context.Background())
		if err != nil {
			t.Fatalf("ListOpen returned error: %v", err)
		}
		if open == nil || len(open) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", open)
		}
	})
}

func TestConcurrentCloseHasSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		tk := newTicket(1, "race", "R1")
		if err := repo.Create(ctx, tk); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []string
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				response := fmt.Sprintf("answer %d", i)
				_, err := repo.Close(ctx, tk.ID, response)
				switch {
				case err == nil:
					mu.Lock()
					winners = append(winners, response)
					mu.Unlock()
				case errors.Is(err, apperrors.ErrAlreadyClosed):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if len(winners) != 1 {
			t.Fatalf("expected exactly one successful close, got %v", winners)
		}
		stored, err := repo.Get(ctx, tk.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if stored.Response != winners[0] {
			t.Fatalf("stored response %q does not match winner %q", stored.Response, winners[0])
		}
	})
}

func TestConcurrentCreateUniqueIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo TicketRepository) {
		ctx := context.Background()
		const n = 20
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tk := newTicket(int64(i), "burst", fmt.Sprintf("burst-%d", i))
				if err := repo.Create(ctx, tk); err != nil {
					t.Errorf("Create returned error: %v", err)
					return
				}
				ids <- tk.ID
			}(i)
		}
		wg.Wait()
		close(ids)

		seen := map[int64]bool{}
		for id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
		if len(seen) != n {
			t.Fatalf("expected %d ids, got %d", n, len(seen))
		}
	})
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()
	tk := newTicket(1, "body", "R1")
	if err := repo.Create(ctx, tk); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	tk.Body = "mutated by caller"

	got, err := repo.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Body != "body" {
		t.Fatalf("stored ticket mutated through caller pointer: %q", got.Body)
	}
	got.Status = domain.TicketStatusClosed
	if open, _ := repo.ListOpen(ctx); len(open) != 1 {
		t.Fatalf("stored ticket mutated through returned pointer")
	}
}
