// File: pool/msgpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MessagePool recycles protocol.Message instances with bounded growth.
// sync.Pool cannot express a hard ceiling or a no-grow strategy, so the
// free list is an explicit slice behind a short mutex critical section:
// no I/O or user code ever runs while the lock is held.

package pool

import (
	"sync"

	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/protocol"
)

// MessagePool is a thread-safe allocator/recycler of messages.
// Get never blocks; Put always succeeds.
type MessagePool struct {
	mu     sync.Mutex
	free   []*protocol.Message
	live   int // messages created and not yet destroyed
	max    int
	closed bool
}

// New creates a pool pre-warmed with initial messages and a hard ceiling
// of max live messages. initial is clamped to max.
func New(initial, max int) *MessagePool {
	if max < 0 {
		max = 0
	}
	if initial < 0 {
		initial = 0
	}
	if initial > max {
		initial = max
	}
	p := &MessagePool{
		free: make([]*protocol.Message, 0, initial),
		live: initial,
		max:  max,
	}
	for i := 0; i < initial; i++ {
		p.free = append(p.free, protocol.NewMessage())
	}
	return p
}

// Get returns an owned message. Under StrategyPoolOnly an empty free list
// is an ordinary outcome reported as api.ErrPoolEmpty. Under
// StrategyAlways a fresh message is allocated unless the pool is at its
// ceiling, which is reported as api.ErrResourceExhausted.
func (p *MessagePool) Get(s api.Strategy) (*protocol.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, api.ErrEngineDown
	}
	if n := len(p.free); n > 0 {
		m := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return m, nil
	}
	switch s {
	case api.StrategyPoolOnly:
		return nil, api.ErrPoolEmpty
	case api.StrategyAlways:
		if p.live >= p.max {
			return nil, api.ErrResourceExhausted
		}
		p.live++
		return protocol.NewMessage(), nil
	default:
		return nil, api.ErrInvalidArgument
	}
}

// Put returns an owned message to the pool. The message is reset to its
// pristine state; after the pool is closed it is discarded instead of
// recycled. Put(nil) is a no-op.
func (p *MessagePool) Put(m *protocol.Message) {
	if m == nil {
		return
	}
	m.Reset()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.live--
		return
	}
	p.free = append(p.free, m)
}

// Stats reports the current free and live counts.
func (p *MessagePool) Stats() (free, live int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free), p.live
}

// Close drains the free list and marks the pool closed. Messages returned
// after Close are destroyed rather than recycled. Safe to call more than
// once.
func (p *MessagePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.live -= len(p.free)
	p.free = nil
}
