// File: protocol/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle is the application-facing ownership wrapper. Go cannot enforce
// move-after-use statically, so transfer is modeled as a holds-or-empty
// handle: a successful transfer leaves the handle empty and any further
// use is rejected with api.ErrEmptyHandle, never silently tolerated.

package protocol

import "github.com/momentics/tofu/api"

// Handle holds at most one owned message.
type Handle struct {
	m *Message
}

// Wrap builds a handle owning m.
func Wrap(m *Message) Handle {
	return Handle{m: m}
}

// IsEmpty reports whether ownership has been transferred away.
func (h *Handle) IsEmpty() bool { return h.m == nil }

// Msg returns the owned message, or nil if the handle is empty.
func (h *Handle) Msg() *Message { return h.m }

// Take transfers the message out, leaving the handle empty. Returns
// api.ErrEmptyHandle if ownership was already given up.
func (h *Handle) Take() (*Message, error) {
	if h.m == nil {
		return nil, api.ErrEmptyHandle
	}
	m := h.m
	h.m = nil
	return m, nil
}
