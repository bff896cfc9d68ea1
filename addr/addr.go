// File: addr/addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Address variants consumed by the reactor as connection targets and
// listener specs. Validation happens at construction; the reactor treats
// an Address as opaque.

package addr

import (
	"fmt"
	"net"
	"strconv"
)

// Network discriminates the socket family of an Address.
type Network int

const (
	TCP Network = iota
	Unix
)

// Role discriminates active (client) from passive (server) endpoints.
type Role int

const (
	Client Role = iota
	Server
)

// Address is a validated connection target or listener spec.
type Address struct {
	Net  Network
	Role Role
	Host string // TCP only
	Port int    // TCP only, 1..65535
	Path string // Unix only
}

// TCPClient builds an address for an outgoing TCP connection.
func TCPClient(host string, port int) (Address, error) {
	if err := checkTCP(host, port); err != nil {
		return Address{}, err
	}
	return Address{Net: TCP, Role: Client, Host: host, Port: port}, nil
}

// TCPServer builds an address for a TCP listener. An empty host binds all
// interfaces; port 0 requests an ephemeral port.
func TCPServer(host string, port int) (Address, error) {
	if port < 0 || port > 65535 {
		return Address{}, fmt.Errorf("tcp server port %d out of range", port)
	}
	return Address{Net: TCP, Role: Server, Host: host, Port: port}, nil
}

// UnixClient builds an address for an outgoing unix-domain connection.
func UnixClient(path string) (Address, error) {
	if path == "" {
		return Address{}, fmt.Errorf("unix client path is empty")
	}
	return Address{Net: Unix, Role: Client, Path: path}, nil
}

// UnixServer builds an address for a unix-domain listener.
func UnixServer(path string) (Address, error) {
	if path == "" {
		return Address{}, fmt.Errorf("unix server path is empty")
	}
	return Address{Net: Unix, Role: Server, Path: path}, nil
}

func checkTCP(host string, port int) error {
	if host == "" {
		return fmt.Errorf("tcp host is empty")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("tcp port %d out of range", port)
	}
	return nil
}

// HostPort renders the host:port form used by the socket layer.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsServer reports whether the address describes a listening endpoint.
func (a Address) IsServer() bool { return a.Role == Server }

// String renders a URL-like form for logs.
func (a Address) String() string {
	switch a.Net {
	case TCP:
		return "tcp://" + a.HostPort()
	case Unix:
		return "unix://" + a.Path
	default:
		return fmt.Sprintf("addr(net=%d)", int(a.Net))
	}
}
