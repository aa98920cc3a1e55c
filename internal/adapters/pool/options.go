// Package pool holds the ordered list of participants waiting to be
// matched.
package pool

// Option applies a configuration option to the InMemoryPool.
type Option func(*InMemoryPool)

// WithCapacity bounds the number of waiting participants.
func WithCapacity(capacity int) Option {
	return func(p *InMemoryPool) {
		if capacity > 0 {
			p.capacity = capacity
		}
	}
}
