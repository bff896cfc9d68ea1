// File: engine/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine is the top-level facade: it owns the message pool, the reactor
// goroutine and the channel groups, and routes inbound messages to group
// mailboxes by channel number.

package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/tofu/addr"
	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/internal/cleanup"
	"github.com/momentics/tofu/internal/logging"
	"github.com/momentics/tofu/mailbox"
	"github.com/momentics/tofu/pool"
	"github.com/momentics/tofu/protocol"
	"github.com/momentics/tofu/reactor"
)

// Channel numbers live in [1, 65534]; 0 means "unassigned" and 65535 is
// held back for future use.
const maxChannel = 65534

// Engine owns the pool, the reactor and all channel groups.
type Engine struct {
	cfg  *Config
	log  zerolog.Logger
	pool *pool.MessagePool
	subs *mailbox.Mailbox
	rct  reactor.Reactor

	mu       sync.RWMutex
	started  bool
	down     bool
	groups   map[*ChannelGroup]struct{}
	channels map[uint16]*ChannelGroup
	nextChan uint16
	free     []uint16
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Engine)(nil)

// Ensure the engine can serve as the reactor's router.
var _ reactor.Router = (*Engine)(nil)

// New constructs an engine. Construction is multi-step; partial failure
// unwinds exactly the steps completed, in reverse.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var cl cleanup.List
	defer cl.Run()

	e := &Engine{
		cfg:      cfg,
		log:      logging.Logger("engine"),
		pool:     pool.New(cfg.PoolInitial, cfg.PoolMax),
		subs:     mailbox.New(),
		groups:   make(map[*ChannelGroup]struct{}),
		channels: make(map[uint16]*ChannelGroup),
	}
	cl.Add(e.pool.Close)
	cl.Add(func() { e.subs.Close() })

	rct, err := reactor.New(reactor.Config{
		Pool:        e.pool,
		Submissions: e.subs,
		Router:      e,
		Limits: protocol.Limits{
			MaxTextHeadersLen: cfg.MaxTextHeadersLen,
			MaxBodyLen:        cfg.MaxBodyLen,
		},
		Logger:         logging.Logger("reactor"),
		MaxEvents:      cfg.MaxEvents,
		ReadBufferSize: cfg.ReadBufferSize,
	})
	if err != nil {
		return nil, err
	}
	e.rct = rct

	cl.Success()
	return e, nil
}

// Start launches the reactor goroutine. Calling Start twice is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return api.ErrEngineDown
	}
	if e.started {
		return nil
	}
	e.started = true
	go e.rct.Run()
	e.log.Info().Msg("engine started")
	return nil
}

// Shutdown stops everything: the reactor, every group mailbox (waking all
// blocked receivers) and the pool. Idempotent.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.down {
		e.mu.Unlock()
		return nil
	}
	e.down = true
	groups := make([]*ChannelGroup, 0, len(e.groups))
	for g := range e.groups {
		groups = append(groups, g)
	}
	e.groups = make(map[*ChannelGroup]struct{})
	e.channels = make(map[uint16]*ChannelGroup)
	e.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		_ = e.rct.Shutdown()
		close(stopped)
	}()
	if e.cfg.ShutdownTimeout > 0 {
		select {
		case <-stopped:
		case <-time.After(time.Duration(e.cfg.ShutdownTimeout)):
			e.log.Warn().Msg("reactor did not stop within the teardown deadline")
		}
	} else {
		<-stopped
	}

	for _, m := range e.subs.Close() {
		e.pool.Put(m)
	}
	for _, g := range groups {
		for _, m := range g.mbox.Close() {
			e.pool.Put(m)
		}
	}
	e.pool.Close()
	e.log.Info().Msg("engine stopped")
	return nil
}

// RouteInbound implements reactor.Router: channel number to group mailbox.
func (e *Engine) RouteInbound(m *protocol.Message) error {
	e.mu.RLock()
	g := e.channels[m.Channel]
	e.mu.RUnlock()
	if g == nil {
		return api.ErrNoRoute
	}
	return g.mbox.Put(m)
}

// CreateGroup makes a new channel group with its own receive mailbox.
func (e *Engine) CreateGroup() (*ChannelGroup, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return nil, api.ErrEngineDown
	}
	g := &ChannelGroup{eng: e, mbox: mailbox.New()}
	e.groups[g] = struct{}{}
	return g, nil
}

// DestroyGroup closes the group's mailbox (waking blocked receivers),
// returns queued messages to the pool and releases its channel numbers.
func (e *Engine) DestroyGroup(g *ChannelGroup) error {
	if g == nil || g.eng != e {
		return api.ErrInvalidArgument
	}
	e.mu.Lock()
	if _, ok := e.groups[g]; !ok {
		e.mu.Unlock()
		return api.ErrInvalidArgument
	}
	delete(e.groups, g)
	for n, owner := range e.channels {
		if owner == g {
			delete(e.channels, n)
			e.free = append(e.free, n)
		}
	}
	e.mu.Unlock()

	for _, m := range g.mbox.Close() {
		e.pool.Put(m)
	}
	return nil
}

// Dial opens an outgoing connection through the reactor.
func (e *Engine) Dial(a addr.Address) (api.ConnID, error) {
	if err := e.requireRunning(); err != nil {
		return 0, err
	}
	return e.rct.Dial(a)
}

// Listen binds a listener through the reactor and returns its id and the
// effective address.
func (e *Engine) Listen(a addr.Address) (api.ConnID, addr.Address, error) {
	if err := e.requireRunning(); err != nil {
		return 0, addr.Address{}, err
	}
	return e.rct.Listen(a)
}

// CloseConn closes a connection or listener.
func (e *Engine) CloseConn(id api.ConnID) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	return e.rct.CloseConn(id)
}

// GetMessage allocates an owned message from the pool.
func (e *Engine) GetMessage(s api.Strategy) (protocol.Handle, error) {
	m, err := e.pool.Get(s)
	if err != nil {
		return protocol.Handle{}, err
	}
	return protocol.Wrap(m), nil
}

// PutMessage returns an owned message to the pool and empties the handle.
func (e *Engine) PutMessage(h *protocol.Handle) error {
	if h == nil {
		return api.ErrEmptyHandle
	}
	m, err := h.Take()
	if err != nil {
		return err
	}
	e.pool.Put(m)
	return nil
}

func (e *Engine) requireRunning() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.down {
		return api.ErrEngineDown
	}
	if !e.started {
		return api.ErrInvalidArgument
	}
	return nil
}

// allocChannel hands out the next free channel number, reusing released
// numbers first and skipping claimed ones.
func (e *Engine) allocChannel(g *ChannelGroup) (uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return 0, api.ErrEngineDown
	}
	if n := len(e.free); n > 0 {
		ch := e.free[n-1]
		e.free = e.free[:n-1]
		e.channels[ch] = g
		return ch, nil
	}
	for e.nextChan < maxChannel {
		e.nextChan++
		if _, taken := e.channels[e.nextChan]; !taken {
			e.channels[e.nextChan] = g
			return e.nextChan, nil
		}
	}
	return 0, api.ErrChannelsExhausted
}

// claimChannel takes a specific, peer-agreed channel number.
func (e *Engine) claimChannel(g *ChannelGroup, n uint16) error {
	if n == 0 || n > maxChannel {
		return api.ErrInvalidArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return api.ErrEngineDown
	}
	if _, taken := e.channels[n]; taken {
		return api.ErrChannelTaken
	}
	e.channels[n] = g
	return nil
}

// releaseChannel returns a channel number to the free set.
func (e *Engine) releaseChannel(g *ChannelGroup, n uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channels[n] != g {
		return api.ErrInvalidArgument
	}
	delete(e.channels, n)
	e.free = append(e.free, n)
	return nil
}

// ownsChannel reports whether g currently owns channel n.
func (e *Engine) ownsChannel(g *ChannelGroup, n uint16) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.channels[n] == g
}
