//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) reactor loop. Cross-goroutine interaction is limited to
// the control queue, the submission mailbox and the notifier; everything
// else in this file runs on the Run goroutine.

package reactor

import (
	"errors"
	"sync"

	"github.com/someonegg/gox/syncx"
	"golang.org/x/sys/unix"

	"github.com/momentics/tofu/addr"
	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/internal/cleanup"
	"github.com/momentics/tofu/protocol"
)

type ctlKind int

const (
	ctlRegisterConn ctlKind = iota
	ctlRegisterListener
	ctlClose
	ctlShutdown
)

type ctlOp struct {
	kind  ctlKind
	conn  *conn
	lst   *listener
	id    api.ConnID
	reply chan error
}

type listener struct {
	fd int
	id api.ConnID
	a  addr.Address
}

type linuxReactor struct {
	cfg  Config
	epfd int
	ntf  *notifier

	stopD syncx.DoneChan

	// Cross-goroutine surface, guarded by mu.
	mu      sync.Mutex
	ctl     []ctlOp
	nextID  api.ConnID
	down    bool
	running bool

	// Run-goroutine private state.
	conns         map[int]*conn
	connsByID     map[api.ConnID]*conn
	listeners     map[int]*listener
	listenersByID map[api.ConnID]*listener
	scratch       []byte
	stopRequested bool
}

func newReactor(cfg Config) (Reactor, error) {
	var cl cleanup.List
	defer cl.Run()

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	cl.Add(func() { _ = unix.Close(epfd) })

	ntf, err := newNotifier()
	if err != nil {
		return nil, err
	}
	cl.Add(ntf.close)

	r := &linuxReactor{
		cfg:           cfg,
		epfd:          epfd,
		ntf:           ntf,
		stopD:         syncx.NewDoneChan(),
		conns:         make(map[int]*conn),
		connsByID:     make(map[api.ConnID]*conn),
		listeners:     make(map[int]*listener),
		listenersByID: make(map[api.ConnID]*listener),
		scratch:       make([]byte, cfg.ReadBufferSize),
	}
	if err := r.epollAdd(ntf.r, unix.EPOLLIN); err != nil {
		return nil, err
	}

	cl.Success()
	return r, nil
}

func (r *linuxReactor) StopD() syncx.DoneChanR { return r.stopD.R() }

func (r *linuxReactor) Notify() { r.ntf.signal() }

// Run executes the poll loop until shutdown.
func (r *linuxReactor) Run() {
	r.mu.Lock()
	if r.down {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	defer r.teardown()

	events := make([]unix.EpollEvent, r.cfg.MaxEvents)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.cfg.Logger.Error().Err(err).Msg("epoll wait failed, stopping reactor")
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == r.ntf.r:
				r.ntf.drain()
				r.handleControl()
				r.drainSubmissions()
			case r.listeners[fd] != nil:
				r.accept(r.listeners[fd])
			default:
				if c := r.conns[fd]; c != nil {
					r.handleConnEvent(c, events[i].Events)
				}
			}
			if r.stopRequested {
				return
			}
		}
	}
}

// Dial initiates a non-blocking connection and registers it.
func (r *linuxReactor) Dial(a addr.Address) (api.ConnID, error) {
	if a.IsServer() {
		return 0, api.ErrInvalidArgument
	}
	fd, connected, remote, err := dialSocket(a)
	if err != nil {
		return 0, err
	}
	state := stateConnecting
	if connected {
		state = stateConnected
	}
	c := newConn(fd, r.allocID(), state, remote)
	if err := r.submitCtl(ctlOp{kind: ctlRegisterConn, conn: c}); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	return c.id, nil
}

// Listen binds a listener socket and registers it.
func (r *linuxReactor) Listen(a addr.Address) (api.ConnID, addr.Address, error) {
	if !a.IsServer() {
		return 0, addr.Address{}, api.ErrInvalidArgument
	}
	fd, eff, err := listenSocket(a)
	if err != nil {
		return 0, addr.Address{}, err
	}
	l := &listener{fd: fd, id: r.allocID(), a: eff}
	if err := r.submitCtl(ctlOp{kind: ctlRegisterListener, lst: l}); err != nil {
		_ = unix.Close(fd)
		if a.Net == addr.Unix {
			_ = unix.Unlink(a.Path)
		}
		return 0, addr.Address{}, err
	}
	return l.id, eff, nil
}

func (r *linuxReactor) CloseConn(id api.ConnID) error {
	return r.submitCtl(ctlOp{kind: ctlClose, id: id})
}

// Shutdown stops the loop and releases every socket. Idempotent; safe to
// call whether or not Run was ever started.
func (r *linuxReactor) Shutdown() error {
	r.mu.Lock()
	if r.down {
		r.mu.Unlock()
		<-r.stopD
		return nil
	}
	r.down = true
	running := r.running
	if !running {
		r.mu.Unlock()
		// Loop never started; nothing else touches reactor state.
		r.teardown()
		return nil
	}
	r.ctl = append(r.ctl, ctlOp{kind: ctlShutdown})
	r.mu.Unlock()
	r.ntf.signal()
	<-r.stopD
	return nil
}

func (r *linuxReactor) allocID() api.ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

func (r *linuxReactor) submitCtl(op ctlOp) error {
	op.reply = make(chan error, 1)
	r.mu.Lock()
	if r.down {
		r.mu.Unlock()
		return api.ErrEngineDown
	}
	r.ctl = append(r.ctl, op)
	r.mu.Unlock()
	r.ntf.signal()
	return <-op.reply
}

func (r *linuxReactor) handleControl() {
	r.mu.Lock()
	ops := r.ctl
	r.ctl = nil
	r.mu.Unlock()

	for _, op := range ops {
		var err error
		switch op.kind {
		case ctlRegisterConn:
			err = r.registerConn(op.conn)
		case ctlRegisterListener:
			err = r.registerListener(op.lst)
		case ctlClose:
			err = r.closeByID(op.id)
		case ctlShutdown:
			r.stopRequested = true
		}
		if op.reply != nil {
			op.reply <- err
		}
	}
}

func (r *linuxReactor) registerConn(c *conn) error {
	events := uint32(unix.EPOLLIN)
	if c.state == stateConnecting {
		// Connect completion is reported as writability.
		events |= unix.EPOLLOUT
		c.writeArmed = true
	}
	if err := r.epollAdd(c.fd, events); err != nil {
		return err
	}
	r.conns[c.fd] = c
	r.connsByID[c.id] = c
	r.cfg.Logger.Debug().Uint64("conn", uint64(c.id)).Str("remote", c.remote).Msg("connection registered")
	return nil
}

func (r *linuxReactor) registerListener(l *listener) error {
	if err := r.epollAdd(l.fd, unix.EPOLLIN); err != nil {
		return err
	}
	r.listeners[l.fd] = l
	r.listenersByID[l.id] = l
	r.cfg.Logger.Info().Uint64("listener", uint64(l.id)).Stringer("addr", l.a).Msg("listening")
	return nil
}

func (r *linuxReactor) closeByID(id api.ConnID) error {
	if c, ok := r.connsByID[id]; ok {
		r.closeConn(c, nil)
		return nil
	}
	if l, ok := r.listenersByID[id]; ok {
		r.closeListener(l)
		return nil
	}
	return api.ErrInvalidArgument
}

// drainSubmissions moves newly posted messages onto their connections'
// outbound queues. A zero-timeout receive is a non-blocking poll.
func (r *linuxReactor) drainSubmissions() {
	for {
		m, err := r.cfg.Submissions.WaitReceive(0)
		if err != nil {
			return // empty, interrupted or closed: nothing more to drain
		}
		c := r.connsByID[m.Conn]
		if c == nil || c.state == stateClosed {
			r.cfg.Logger.Warn().
				Uint64("conn", uint64(m.Conn)).
				Uint16("channel", m.Channel).
				Msg("dropping submission for unknown connection")
			r.cfg.Pool.Put(m)
			continue
		}
		c.enqueue(m)
		r.armWrite(c)
	}
}

func (r *linuxReactor) handleConnEvent(c *conn, ev uint32) {
	if c.state == stateConnecting {
		if ev&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			r.finishConnect(c)
		}
		return
	}
	if ev&unix.EPOLLIN != 0 {
		r.readable(c)
		if c.state == stateClosed {
			return
		}
	}
	if ev&unix.EPOLLOUT != 0 {
		r.writable(c)
		if c.state == stateClosed {
			return
		}
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 && ev&(unix.EPOLLIN|unix.EPOLLOUT) == 0 {
		r.closeConn(c, errors.New("socket error"))
	}
}

func (r *linuxReactor) finishConnect(c *conn) {
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		r.closeConn(c, err)
		return
	}
	if soerr != 0 {
		r.closeConn(c, unix.Errno(soerr))
		return
	}
	c.state = stateConnected
	r.cfg.Logger.Debug().Uint64("conn", uint64(c.id)).Str("remote", c.remote).Msg("connected")
	if c.pendingWrite() {
		r.writable(c)
	} else {
		r.disarmWrite(c)
	}
}

// readable advances the framing state machine with fresh socket bytes.
func (r *linuxReactor) readable(c *conn) {
	progress, alive, rerr := c.readInto(r.scratch)
	if progress {
		for {
			f, err := c.nextFrame(r.cfg.Limits)
			if err != nil {
				r.cfg.Logger.Warn().
					Uint64("conn", uint64(c.id)).
					Err(err).
					Msg("protocol error, closing connection")
				r.closeConn(c, err)
				return
			}
			if f == nil {
				break
			}
			r.deliver(c, f)
			c.consumeFrame()
		}
	}
	if !alive {
		r.closeConn(c, rerr)
	}
}

// deliver finishes a decoded frame into a pooled message and routes it.
func (r *linuxReactor) deliver(c *conn, f *protocol.Frame) {
	m, err := r.cfg.Pool.Get(api.StrategyAlways)
	if err != nil {
		// Pool at ceiling: recoverable, the frame is dropped and reported.
		r.cfg.Logger.Warn().
			Uint64("conn", uint64(c.id)).
			Uint16("channel", f.Header.Channel).
			Err(err).
			Msg("dropping inbound frame, pool exhausted")
		return
	}
	f.FillMessage(m)
	m.Conn = c.id
	if err := r.cfg.Router.RouteInbound(m); err != nil {
		r.cfg.Logger.Warn().
			Uint64("conn", uint64(c.id)).
			Uint16("channel", m.Channel).
			Err(err).
			Msg("unrouteable inbound message, discarding")
		r.cfg.Pool.Put(m)
	}
}

func (r *linuxReactor) writable(c *conn) {
	drained, err := c.flush(r.cfg.Pool.Put)
	if err != nil {
		r.closeConn(c, err)
		return
	}
	if drained {
		r.disarmWrite(c)
	}
}

func (r *linuxReactor) accept(l *listener) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			r.cfg.Logger.Warn().Uint64("listener", uint64(l.id)).Err(err).Msg("accept failed")
			return
		}
		if l.a.Net == addr.TCP {
			_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		}
		c := newConn(nfd, r.allocID(), stateConnected, sockaddrString(sa))
		if err := r.registerConn(c); err != nil {
			r.cfg.Logger.Warn().Err(err).Msg("register accepted connection failed")
			_ = unix.Close(nfd)
		}
	}
}

func (r *linuxReactor) armWrite(c *conn) {
	if c.writeArmed {
		return
	}
	c.writeArmed = true
	if err := r.epollMod(c.fd, unix.EPOLLIN|unix.EPOLLOUT); err != nil {
		r.closeConn(c, err)
	}
}

func (r *linuxReactor) disarmWrite(c *conn) {
	if !c.writeArmed {
		return
	}
	c.writeArmed = false
	if err := r.epollMod(c.fd, unix.EPOLLIN); err != nil {
		r.closeConn(c, err)
	}
}

// closeConn releases the socket and returns every message the connection
// still owns to the pool. reason nil means orderly peer close.
func (r *linuxReactor) closeConn(c *conn, reason error) {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	_ = unix.Close(c.fd)
	delete(r.conns, c.fd)
	delete(r.connsByID, c.id)
	c.releaseOwned(r.cfg.Pool.Put)

	ev := r.cfg.Logger.Debug().Uint64("conn", uint64(c.id)).Str("remote", c.remote)
	if reason != nil {
		ev = ev.Err(reason)
	}
	ev.Msg("connection closed")
}

func (r *linuxReactor) closeListener(l *listener) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, l.fd, nil)
	_ = unix.Close(l.fd)
	delete(r.listeners, l.fd)
	delete(r.listenersByID, l.id)
	if l.a.Net == addr.Unix {
		_ = unix.Unlink(l.a.Path)
	}
	r.cfg.Logger.Debug().Uint64("listener", uint64(l.id)).Stringer("addr", l.a).Msg("listener closed")
}

func (r *linuxReactor) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

func (r *linuxReactor) epollMod(fd int, events uint32) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// teardown runs exactly once, after the loop stops (or instead of it when
// the loop never started). Secondary errors here are intentionally
// suppressed but still logged.
func (r *linuxReactor) teardown() {
	r.mu.Lock()
	r.down = true
	ops := r.ctl
	r.ctl = nil
	r.mu.Unlock()
	for _, op := range ops {
		if op.reply != nil {
			op.reply <- api.ErrEngineDown
		}
	}

	for _, c := range r.conns {
		r.closeConn(c, nil)
	}
	for _, l := range r.listeners {
		r.closeListener(l)
	}
	// Submissions that never reached a connection go back to the pool.
	for {
		m, err := r.cfg.Submissions.WaitReceive(0)
		if err != nil {
			break
		}
		r.cfg.Pool.Put(m)
	}
	r.ntf.close()
	if err := unix.Close(r.epfd); err != nil {
		r.cfg.Logger.Debug().Err(err).Msg("epoll close failed during teardown")
	}
	r.stopD.SetDone()
}
