// File: mailbox/mailbox.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mailbox is the interruptible blocking handoff point between the reactor
// and application goroutines. Messages in the queue are owned by the
// mailbox; WaitReceive transfers ownership to the caller, Close transfers
// whatever is left to the closer.
//
// Wakeup uses a close-and-replace notify channel: closing it is a
// broadcast, so interrupt and close wake every blocked receiver, not just
// one. sync.Cond has no timed wait, which rules it out here.

package mailbox

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/protocol"
)

// Mailbox is a thread-safe, closeable FIFO of owned messages bound to one
// consumer context.
type Mailbox struct {
	mu      sync.Mutex
	items   *queue.Queue
	notify  chan struct{}
	intrSeq uint64
	closed  bool
}

// New creates an open, empty mailbox.
func New() *Mailbox {
	return &Mailbox{
		items:  queue.New(),
		notify: make(chan struct{}),
	}
}

// Put enqueues an owned message and wakes receivers. After Close it fails
// with api.ErrMailboxClosed and the caller keeps ownership.
func (mb *Mailbox) Put(m *protocol.Message) error {
	if m == nil {
		return api.ErrInvalidArgument
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return api.ErrMailboxClosed
	}
	mb.items.Add(m)
	mb.broadcastLocked()
	return nil
}

// WaitReceive blocks until a message is available, the timeout elapses, an
// interrupt fires, or the mailbox closes. A zero timeout is a non-blocking
// poll; a negative timeout waits indefinitely.
//
// Outcomes: (msg, nil), (nil, api.ErrTimeout), (nil, api.ErrInterrupted)
// or (nil, api.ErrMailboxClosed).
func (mb *Mailbox) WaitReceive(timeout time.Duration) (*protocol.Message, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	mb.mu.Lock()
	seq := mb.intrSeq
	for {
		if mb.closed {
			mb.mu.Unlock()
			return nil, api.ErrMailboxClosed
		}
		if mb.items.Length() > 0 {
			m := mb.items.Remove().(*protocol.Message)
			mb.mu.Unlock()
			return m, nil
		}
		// Only receivers already blocked when Interrupt fired observe it.
		if mb.intrSeq != seq {
			mb.mu.Unlock()
			return nil, api.ErrInterrupted
		}
		if timeout == 0 {
			mb.mu.Unlock()
			return nil, api.ErrTimeout
		}
		wake := mb.notify
		mb.mu.Unlock()

		select {
		case <-wake:
		case <-deadline:
			return nil, api.ErrTimeout
		}
		mb.mu.Lock()
	}
}

// Interrupt forces every currently blocked WaitReceive to return promptly,
// with a message if one raced in, otherwise with api.ErrInterrupted. The
// mailbox stays open.
func (mb *Mailbox) Interrupt() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.intrSeq++
	mb.broadcastLocked()
}

// Close is terminal: subsequent Put fails, blocked and future receivers
// get api.ErrMailboxClosed. Messages still queued are returned to the
// caller, who owns them and must hand them back to the pool.
func (mb *Mailbox) Close() []*protocol.Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil
	}
	mb.closed = true
	var orphans []*protocol.Message
	for mb.items.Length() > 0 {
		orphans = append(orphans, mb.items.Remove().(*protocol.Message))
	}
	mb.broadcastLocked()
	return orphans
}

// Len returns a snapshot of the queued message count.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.items.Length()
}

// Closed reports whether Close has been called.
func (mb *Mailbox) Closed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}

func (mb *Mailbox) broadcastLocked() {
	close(mb.notify)
	mb.notify = make(chan struct{})
}
