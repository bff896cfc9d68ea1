// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral reactor surface.

package reactor

import (
	"github.com/rs/zerolog"
	"github.com/someonegg/gox/syncx"

	"github.com/momentics/tofu/addr"
	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/mailbox"
	"github.com/momentics/tofu/pool"
	"github.com/momentics/tofu/protocol"
)

// Router delivers a completed inbound message to its destination mailbox
// by channel number. Implementations must be safe for calls from the
// reactor goroutine while channels come and go on other goroutines.
type Router interface {
	// RouteInbound takes ownership of m on success. On error the caller
	// keeps ownership and returns the message to the pool.
	RouteInbound(m *protocol.Message) error
}

// Config carries the collaborators and tunables of a reactor.
type Config struct {
	Pool        *pool.MessagePool
	Submissions *mailbox.Mailbox // engine-owned; reactor only drains it
	Router      Router
	Limits      protocol.Limits
	Logger      zerolog.Logger

	// MaxEvents is the epoll batch size per wait call.
	MaxEvents int
	// ReadBufferSize is the per-read scratch buffer size.
	ReadBufferSize int
}

func (c *Config) applyDefaults() {
	if c.MaxEvents <= 0 {
		c.MaxEvents = 128
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 << 10
	}
	if c.Limits == (protocol.Limits{}) {
		c.Limits = protocol.DefaultLimits()
	}
}

// Reactor is the single-goroutine socket owner.
type Reactor interface {
	// Run executes the poll loop until Shutdown. It is started in its own
	// goroutine by the engine.
	Run()

	// Notify wakes the poll wait so newly submitted work is picked up.
	// Safe to call from any goroutine; carries no payload.
	Notify()

	// Dial starts a non-blocking outgoing connection to a client address
	// and registers it with the loop.
	Dial(a addr.Address) (api.ConnID, error)

	// Listen binds a server address and registers the listener. The
	// returned address carries the effective endpoint (resolved port).
	Listen(a addr.Address) (api.ConnID, addr.Address, error)

	// CloseConn closes a connection or listener. Messages still owned by
	// the connection are returned to the pool.
	CloseConn(id api.ConnID) error

	// Shutdown stops the loop, closes every socket and releases the
	// notifier. Idempotent.
	Shutdown() error

	// StopD is signaled once the loop has fully stopped.
	StopD() syncx.DoneChanR
}

// New constructs the platform reactor.
func New(cfg Config) (Reactor, error) {
	cfg.applyDefaults()
	return newReactor(cfg)
}
