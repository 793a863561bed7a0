package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spec-kit/report-router/internal/domain"
)

func TestPoolPreservesPerChatOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int64][]int{}
	)
	pool := NewPool(4, func(_ context.Context, ev domain.InboundEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen[ev.OriginID] = append(seen[ev.OriginID], int(ev.SenderID))
		return nil
	}, nil)

	ctx := context.Background()
	chats := []int64{-100, 501, 502, 503, 504, 505}
	const perChat = 50
	for i := 0; i < perChat; i++ {
		for _, chat := range chats {
			if err := pool.Submit(ctx, domain.InboundEvent{OriginID: chat, SenderID: int64(i)}); err != nil {
				t.Fatalf("Submit returned error: %v", err)
			}
		}
	}
	pool.Close()

	for _, chat := range chats {
		got := seen[chat]
		if len(got) != perChat {
			t.Fatalf("chat %d: expected %d events, got %d", chat, perChat, len(got))
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("chat %d: event %d handled out of order (%v)", chat, i, got)
			}
		}
	}
}

func TestPoolSurvivesHandlerFailures(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	pool := NewPool(2, func(_ context.Context, ev domain.InboundEvent) error {
		mu.Lock()
		count++
		mu.Unlock()
		switch ev.Text {
		case "panic":
			panic("boom")
		case "fail":
			return errors.New("failed")
		}
		return nil
	}, nil)

	ctx := context.Background()
	for _, text := range []string{"panic", "fail", "ok"} {
		if err := pool.Submit(ctx, domain.InboundEvent{OriginID: 1, Text: text}); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}
	pool.Close()

	if count != 3 {
		t.Fatalf("expected 3 handled events, got %d", count)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	pool := NewPool(1, func(context.Context, domain.InboundEvent) error { return nil }, nil)
	pool.Close()
	pool.Close()
	if err := pool.Submit(context.Background(), domain.InboundEvent{OriginID: 1}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
