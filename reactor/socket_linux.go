//go:build linux
// +build linux

// File: reactor/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket construction for Dial/Listen. Sockets are created non-blocking
// and close-on-exec; connect initiation happens here on the caller, the
// descriptor is owned by the reactor loop from registration on.

package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/tofu/addr"
	"github.com/momentics/tofu/internal/cleanup"
)

const listenBacklog = 128

// dialSocket creates the socket for a client address and initiates the
// connect. connected is false while the connect is still in progress.
func dialSocket(a addr.Address) (fd int, connected bool, remote string, err error) {
	var cl cleanup.List
	defer cl.Run()

	var sa unix.Sockaddr
	var family int
	switch a.Net {
	case addr.TCP:
		sa, family, err = tcpSockaddr(a.Host, a.Port)
		if err != nil {
			return 0, false, "", err
		}
	case addr.Unix:
		sa = &unix.SockaddrUnix{Name: a.Path}
		family = unix.AF_UNIX
	default:
		return 0, false, "", fmt.Errorf("dial: unsupported network %d", a.Net)
	}

	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, false, "", fmt.Errorf("dial %s: socket: %w", a, err)
	}
	cl.Add(func() { _ = unix.Close(fd) })

	if a.Net == addr.TCP {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}

	err = unix.Connect(fd, sa)
	switch err {
	case nil:
		connected = true
	case unix.EINPROGRESS:
		connected = false
	default:
		return 0, false, "", fmt.Errorf("dial %s: connect: %w", a, err)
	}

	cl.Success()
	return fd, connected, a.String(), nil
}

// listenSocket binds and listens on a server address. The returned address
// carries the effective endpoint (resolved TCP port).
func listenSocket(a addr.Address) (fd int, eff addr.Address, err error) {
	var cl cleanup.List
	defer cl.Run()

	eff = a
	switch a.Net {
	case addr.TCP:
		sa, family, serr := tcpSockaddr(a.Host, a.Port)
		if serr != nil {
			return 0, addr.Address{}, serr
		}
		fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return 0, addr.Address{}, fmt.Errorf("listen %s: socket: %w", a, err)
		}
		cl.Add(func() { _ = unix.Close(fd) })
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err = unix.Bind(fd, sa); err != nil {
			return 0, addr.Address{}, fmt.Errorf("listen %s: bind: %w", a, err)
		}
		if err = unix.Listen(fd, listenBacklog); err != nil {
			return 0, addr.Address{}, fmt.Errorf("listen %s: listen: %w", a, err)
		}
		if port, perr := localPort(fd); perr == nil {
			eff.Port = port
		}
	case addr.Unix:
		fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return 0, addr.Address{}, fmt.Errorf("listen %s: socket: %w", a, err)
		}
		cl.Add(func() { _ = unix.Close(fd) })
		// Stale socket files from a previous run block bind.
		_ = unix.Unlink(a.Path)
		if err = unix.Bind(fd, &unix.SockaddrUnix{Name: a.Path}); err != nil {
			return 0, addr.Address{}, fmt.Errorf("listen %s: bind: %w", a, err)
		}
		if err = unix.Listen(fd, listenBacklog); err != nil {
			return 0, addr.Address{}, fmt.Errorf("listen %s: listen: %w", a, err)
		}
	default:
		return 0, addr.Address{}, fmt.Errorf("listen: unsupported network %d", a.Net)
	}

	cl.Success()
	return fd, eff, nil
}

// tcpSockaddr resolves host:port into a sockaddr and family. An empty
// host means all interfaces.
func tcpSockaddr(host string, port int) (unix.Sockaddr, int, error) {
	if host == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}
	ipa, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %q: %w", host, err)
	}
	if ip4 := ipa.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ipa.IP.To16())
	return sa, unix.AF_INET6, nil
}

func localPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return v.Port, nil
	case *unix.SockaddrInet6:
		return v.Port, nil
	default:
		return 0, fmt.Errorf("unexpected sockaddr %T", sa)
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(v.Addr[:]).String(), v.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(v.Addr[:]).String(), v.Port)
	case *unix.SockaddrUnix:
		return v.Name
	default:
		return "unknown"
	}
}
