package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/domain"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Handler processes one inbound event.
type Handler func(ctx context.Context, ev domain.InboundEvent) error

// Pool runs events concurrently across chats. Events from the same origin chat
// always land on the same shard, so they are handled in arrival order.
type Pool struct {
	shards  []chan job
	handler Handler
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	ctx context.Context
	ev  domain.InboundEvent
}

// NewPool starts size shard workers.
func NewPool(size int, handler Handler, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		shards:  make([]chan job, size),
		handler: handler,
		logger:  logger,
	}
	for i := range p.shards {
		p.shards[i] = make(chan job, 64)
		p.wg.Add(1)
		go p.run(p.shards[i])
	}
	return p
}

// Submit queues ev on its chat's shard, blocking while the shard is full.
func (p *Pool) Submit(ctx context.Context, ev domain.InboundEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.shards[p.shardFor(ev.OriginID)] <- job{ctx: ctx, ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, shard := range p.shards {
		close(shard)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) shardFor(chatID int64) int {
	n := int64(len(p.shards))
	idx := chatID % n
	if idx < 0 {
		idx += n
	}
	return int(idx)
}

func (p *Pool) run(jobs <-chan job) {
	defer p.wg.Done()
	for j := range jobs {
		p.handle(j)
	}
}

func (p *Pool) handle(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("inbound handler panicked", zap.Int64("chat_id", j.ev.OriginID), zap.Any("panic", r))
		}
	}()
	if err := p.handler(j.ctx, j.ev); err != nil {
		p.logger.Warn("inbound handler failed", zap.Int64("chat_id", j.ev.OriginID), zap.Error(err))
	}
}
