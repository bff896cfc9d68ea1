//go:build linux
// +build linux

// File: reactor/notifier_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cross-thread wakeup primitive: a non-blocking socketpair whose read end
// sits in the same epoll set as the sockets, so one wait call covers both
// I/O readiness and wakeups.

package reactor

import "golang.org/x/sys/unix"

type notifier struct {
	r int // registered with epoll
	w int // written by Signal
}

func newNotifier() (*notifier, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &notifier{r: fds[0], w: fds[1]}, nil
}

// signal is callable from any goroutine. A full pipe means a wakeup is
// already pending, so EAGAIN is success.
func (n *notifier) signal() {
	var one = [1]byte{1}
	for {
		_, err := unix.Write(n.w, one[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// drain empties the pipe; runs on the reactor goroutine.
func (n *notifier) drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(n.r, buf[:])
		if err != nil {
			return
		}
	}
}

func (n *notifier) close() {
	_ = unix.Close(n.r)
	_ = unix.Close(n.w)
}
