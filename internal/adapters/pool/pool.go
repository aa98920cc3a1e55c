// Package pool holds the ordered list of participants waiting to be
// matched. It is an in-memory set keyed by participant ID that preserves
// join order; the matchmaking service snapshots it, forms a match, and
// removes the consumed waiters.
package pool

import (
	"context"
	"sync"

	"github.com/maxaitel/overwatch-server-discord-bot/internal/domain/model"
	"github.com/maxaitel/overwatch-server-discord-bot/pkg/metrics"
)

// defaultCapacity bounds the waiting list.
const defaultCapacity = 1000

// Pool provides join/leave/snapshot semantics over the waiting list.
type Pool interface {
	// Join adds a participant to the pool. Returns false when the
	// participant is already waiting or the pool is full.
	Join(ctx context.Context, p model.Participant) bool

	// Leave removes a participant by ID. Returns false when absent.
	Leave(ctx context.Context, id string) bool

	// Snapshot returns the waiting participants in join order.
	Snapshot(ctx context.Context) []model.Participant

	// RemoveMany removes the given IDs, typically after a formed match
	// consumed them. Unknown IDs are ignored.
	RemoveMany(ctx context.Context, ids []string)

	// Len returns the number of waiting participants.
	Len(ctx context.Context) int

	// Clear empties the pool and returns how many waiters were dropped.
	Clear(ctx context.Context) int
}

// InMemoryPool implements Pool with a mutex-guarded ordered list.
type InMemoryPool struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	waiting  map[string]model.Participant
}

// NewInMemoryPool creates a pool with configuration options.
func NewInMemoryPool(opts ...Option) *InMemoryPool {
	p := &InMemoryPool{
		capacity: defaultCapacity,
		waiting:  make(map[string]model.Participant),
	}
	for _, opt := range opts {
		opt(p)
	}

	metrics.UpdatePoolCapacity(p.capacity)
	metrics.UpdatePoolSize(0)
	metrics.UpdatePoolUtilization(0.0)
	return p
}

// Join adds a participant to the back of the waiting list.
func (p *InMemoryPool) Join(_ context.Context, participant model.Participant) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.waiting[participant.ID]; ok {
		metrics.RecordPoolRejection()
		metrics.RecordErrorByComponent("pool", "duplicate_join")
		return false
	}
	if len(p.order) >= p.capacity {
		metrics.RecordPoolRejection()
		metrics.RecordErrorByComponent("pool", "capacity_exceeded")
		return false
	}

	participant.Rating = model.ClampRating(participant.Rating)
	p.waiting[participant.ID] = participant
	p.order = append(p.order, participant.ID)

	metrics.RecordPoolJoin()
	p.publishGauges()
	return true
}

// Leave removes one participant from the waiting list.
func (p *InMemoryPool) Leave(_ context.Context, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.waiting[id]; !ok {
		return false
	}
	delete(p.waiting, id)
	p.dropFromOrder(id)

	metrics.RecordPoolLeave()
	p.publishGauges()
	return true
}

// Snapshot returns the waiting participants in join order.
func (p *InMemoryPool) Snapshot(_ context.Context) []model.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.Participant, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.waiting[id])
	}
	return out
}

// RemoveMany removes the given participant IDs.
func (p *InMemoryPool) RemoveMany(_ context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range ids {
		if _, ok := p.waiting[id]; !ok {
			continue
		}
		delete(p.waiting, id)
		p.dropFromOrder(id)
		metrics.RecordPoolLeave()
	}
	p.publishGauges()
}

// Len returns the number of waiting participants.
func (p *InMemoryPool) Len(_ context.Context) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Clear empties the pool.
func (p *InMemoryPool) Clear(_ context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := len(p.order)
	p.order = p.order[:0]
	p.waiting = make(map[string]model.Participant)
	p.publishGauges()
	return dropped
}

// dropFromOrder removes one ID from the join-order slice.
// Callers hold the write lock.
func (p *InMemoryPool) dropFromOrder(id string) {
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// publishGauges refreshes the pool gauges. Callers hold a lock.
func (p *InMemoryPool) publishGauges() {
	size := len(p.order)
	metrics.UpdatePoolSize(size)
	metrics.UpdatePoolUtilization(float64(size) / float64(p.capacity))
}
