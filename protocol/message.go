// File: protocol/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message is the pooled, mutable frame container. A message has exactly
// one owner at any instant: the pool, a mailbox in transit, the reactor,
// or one application goroutine. Ownership moves only through explicit
// transfer operations (pool Get/Put, mailbox Put/WaitReceive, group Post).

package protocol

import (
	"fmt"

	"github.com/momentics/tofu/api"
)

// TextHeader is one (name, value) pair. Names are ASCII for fast matching,
// values UTF-8. Insertion order is preserved and wire-significant.
type TextHeader struct {
	Name  string
	Value string
}

// Message holds the decoded binary header fields, the ordered text
// headers and the body of one frame.
type Message struct {
	Opcode  Opcode
	Status  Status
	Channel uint16
	ID      uint64

	headers []TextHeader
	body    []byte

	// Conn is local routing metadata, never encoded. The reactor stamps
	// inbound messages with their source connection; Post prefers it over
	// the group's bound connection, which gives reply routing for free.
	Conn api.ConnID
}

// NewMessage returns an empty message. Application code normally obtains
// messages from the pool instead.
func NewMessage() *Message {
	return &Message{}
}

// Reset returns the message to its pristine state. Capacity of the header
// slice and body buffer is retained for reuse.
func (m *Message) Reset() {
	m.Opcode = 0
	m.Status = StatusOK
	m.Channel = 0
	m.ID = 0
	m.headers = m.headers[:0]
	m.body = m.body[:0]
	m.Conn = 0
}

// AddHeader appends a text header pair, preserving insertion order.
// The name must be non-empty printable ASCII.
func (m *Message) AddHeader(name, value string) error {
	if err := checkHeaderName(name); err != nil {
		return err
	}
	if len(value) > maxHeaderValueLen {
		return fmt.Errorf("header %q value length %d exceeds %d", name, len(value), maxHeaderValueLen)
	}
	m.headers = append(m.headers, TextHeader{Name: name, Value: value})
	return nil
}

// Header returns the value of the first header with the given name.
func (m *Message) Header(name string) (string, bool) {
	for i := range m.headers {
		if m.headers[i].Name == name {
			return m.headers[i].Value, true
		}
	}
	return "", false
}

// Headers returns the ordered header pairs. The slice is owned by the
// message; callers must not retain it across a transfer.
func (m *Message) Headers() []TextHeader {
	return m.headers
}

// SetBody replaces the body with a copy of b.
func (m *Message) SetBody(b []byte) {
	m.body = append(m.body[:0], b...)
}

// Body returns the body buffer, owned by the message.
func (m *Message) Body() []byte {
	return m.body
}

const maxHeaderNameLen = 255
const maxHeaderValueLen = 65535

func checkHeaderName(name string) error {
	if name == "" {
		return fmt.Errorf("header name is empty")
	}
	if len(name) > maxHeaderNameLen {
		return fmt.Errorf("header name length %d exceeds %d", len(name), maxHeaderNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e {
			return fmt.Errorf("header name %q is not printable ASCII", name)
		}
	}
	return nil
}
