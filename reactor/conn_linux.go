//go:build linux
// +build linux

// File: reactor/conn_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection framing state machine. All fields are reactor-goroutine
// private; a would-block result is never an error, it ends the socket's
// turn in the current poll iteration.

package reactor

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/protocol"
)

type connState int

const (
	stateConnecting connState = iota
	stateConnected
	stateClosed
)

type conn struct {
	fd    int
	id    api.ConnID
	state connState

	// Inbound accumulation; parsed incrementally by the frame decoder
	// (header, then text headers, then body).
	rbuf           []byte
	pendingConsume int

	// Outbound messages owned by the connection until serialized.
	outq *queue.Queue

	// Current serialized frame and its byte cursor; partial writes resume
	// here on the next writable readiness. Empty wire means no frame in
	// flight (a frame is never shorter than its 20-byte header).
	wire []byte
	woff int

	writeArmed bool
	remote     string
}

func newConn(fd int, id api.ConnID, state connState, remote string) *conn {
	return &conn{
		fd:     fd,
		id:     id,
		state:  state,
		outq:   queue.New(),
		remote: remote,
	}
}

// enqueue appends an owned outbound message.
func (c *conn) enqueue(m *protocol.Message) {
	c.outq.Add(m)
}

// pendingWrite reports whether the connection has bytes or messages left
// to flush.
func (c *conn) pendingWrite() bool {
	return len(c.wire) > c.woff || c.outq.Length() > 0
}

// readInto pulls from the socket into rbuf until the socket would block.
// alive=false means the peer closed or the read failed.
func (c *conn) readInto(scratch []byte) (progress bool, alive bool, err error) {
	for {
		n, rerr := unix.Read(c.fd, scratch)
		switch {
		case rerr == unix.EINTR:
			continue
		case rerr == unix.EAGAIN:
			return progress, true, nil
		case rerr != nil:
			return progress, false, rerr
		case n == 0:
			// Orderly peer close.
			return progress, false, nil
		}
		c.rbuf = append(c.rbuf, scratch[:n]...)
		progress = true
		if n < len(scratch) {
			return progress, true, nil
		}
	}
}

// nextFrame parses one complete frame out of rbuf, if present. The frame
// body aliases rbuf; the caller copies it into a pooled message and then
// calls consumeFrame.
func (c *conn) nextFrame(lim protocol.Limits) (*protocol.Frame, error) {
	f, consumed, err := protocol.DecodeFrameFromBytes(c.rbuf, lim)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	c.pendingConsume = consumed
	return f, nil
}

// consumeFrame drops the bytes of the frame returned by nextFrame.
func (c *conn) consumeFrame() {
	c.rbuf = append(c.rbuf[:0], c.rbuf[c.pendingConsume:]...)
	c.pendingConsume = 0
}

// flush serializes and writes queued messages until the queue drains or
// the socket would block. A message returns to the pool the moment it is
// serialized; the wire bytes are the connection's own copy.
func (c *conn) flush(put func(*protocol.Message)) (drained bool, err error) {
	for {
		if c.woff >= len(c.wire) {
			if c.outq.Length() == 0 {
				return true, nil
			}
			m := c.outq.Remove().(*protocol.Message)
			wire, eerr := protocol.EncodeMessage(c.wire[:0], m)
			put(m)
			if eerr != nil {
				// Post validates opcodes, so this is a local bug; skip the
				// message rather than kill the connection.
				continue
			}
			c.wire = wire
			c.woff = 0
		}
		for c.woff < len(c.wire) {
			n, werr := unix.Write(c.fd, c.wire[c.woff:])
			if werr == unix.EINTR {
				continue
			}
			if werr == unix.EAGAIN {
				return false, nil
			}
			if werr != nil {
				return false, werr
			}
			c.woff += n
		}
		c.wire = c.wire[:0]
		c.woff = 0
	}
}

// releaseOwned hands every message still owned by the connection back to
// the pool. Called on close so nothing leaks.
func (c *conn) releaseOwned(put func(*protocol.Message)) {
	for c.outq.Length() > 0 {
		put(c.outq.Remove().(*protocol.Message))
	}
	c.wire = nil
	c.woff = 0
	c.rbuf = nil
}
