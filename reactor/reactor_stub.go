//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub constructor for unsupported platforms.

package reactor

import "github.com/momentics/tofu/api"

func newReactor(cfg Config) (Reactor, error) {
	return nil, api.ErrNotSupported
}
