// File: engine/channelgroup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ChannelGroup is the per-application-goroutine facade: it owns one
// receive mailbox, holds channel numbers and feeds the reactor through
// the shared submission mailbox.

package engine

import (
	"sync"
	"time"

	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/mailbox"
	"github.com/momentics/tofu/protocol"
)

// ChannelGroup routes inbound messages for its channels into one mailbox
// and submits outbound messages on behalf of its owner.
type ChannelGroup struct {
	eng  *Engine
	mbox *mailbox.Mailbox

	mu   sync.Mutex
	conn api.ConnID
}

// BindConn sets the default connection used by Post when a message does
// not carry its own.
func (g *ChannelGroup) BindConn(id api.ConnID) {
	g.mu.Lock()
	g.conn = id
	g.mu.Unlock()
}

// OpenChannel assigns the next free channel number to this group.
func (g *ChannelGroup) OpenChannel() (uint16, error) {
	return g.eng.allocChannel(g)
}

// Claim takes a specific, peer-agreed channel number for this group.
func (g *ChannelGroup) Claim(n uint16) error {
	return g.eng.claimChannel(g, n)
}

// CloseChannel releases a channel number owned by this group.
func (g *ChannelGroup) CloseChannel(n uint16) error {
	return g.eng.releaseChannel(g, n)
}

// Post transfers an owned message to the reactor for writing. On success
// the handle is emptied; on failure the caller keeps ownership for
// cleanup. A zero channel is assigned automatically; a non-zero channel
// must be owned by this group. The target connection is the message's
// own (reply routing), else the group's bound connection.
func (g *ChannelGroup) Post(h *protocol.Handle) error {
	if h == nil || h.IsEmpty() {
		return api.ErrEmptyHandle
	}
	m := h.Msg()

	if err := g.eng.requireRunning(); err != nil {
		return err
	}
	if !m.Opcode.Valid() {
		return api.ErrInvalidArgument
	}
	if m.Channel == 0 {
		n, err := g.eng.allocChannel(g)
		if err != nil {
			return err
		}
		m.Channel = n
	} else if !g.eng.ownsChannel(g, m.Channel) {
		return api.ErrInvalidArgument
	}
	if m.Conn == 0 {
		g.mu.Lock()
		m.Conn = g.conn
		g.mu.Unlock()
	}
	if m.Conn == 0 {
		return api.ErrNotConnected
	}

	// All checks passed; ownership moves now.
	msg, err := h.Take()
	if err != nil {
		return err
	}
	if err := g.eng.subs.Put(msg); err != nil {
		// Submission mailbox closed mid-shutdown: hand ownership back.
		*h = protocol.Wrap(msg)
		return api.ErrEngineDown
	}
	g.eng.rct.Notify()
	return nil
}

// WaitReceive blocks on the group's mailbox until a message arrives, the
// timeout elapses, an interrupt fires, or the mailbox closes. A zero
// timeout polls; a negative timeout waits indefinitely.
func (g *ChannelGroup) WaitReceive(timeout time.Duration) (protocol.Handle, error) {
	m, err := g.mbox.WaitReceive(timeout)
	if err != nil {
		return protocol.Handle{}, err
	}
	return protocol.Wrap(m), nil
}

// Interrupt wakes every receiver currently blocked in WaitReceive.
func (g *ChannelGroup) Interrupt() {
	g.mbox.Interrupt()
}

// Pending returns the number of queued inbound messages.
func (g *ChannelGroup) Pending() int {
	return g.mbox.Len()
}
