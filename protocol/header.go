// File: protocol/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"encoding/binary"

	"github.com/momentics/tofu/api"
)

// HeaderSize is the fixed encoded size of the binary header.
const HeaderSize = 20

// Limits bounds the declared lengths a decoded header may carry. A header
// declaring more is a protocol error and closes the connection.
type Limits struct {
	MaxTextHeadersLen uint32
	MaxBodyLen        uint32
}

// DefaultLimits returns the default decode limits: 64 KiB of text headers,
// 16 MiB of body.
func DefaultLimits() Limits {
	return Limits{
		MaxTextHeadersLen: 64 << 10,
		MaxBodyLen:        16 << 20,
	}
}

// Header is the decoded fixed-size prefix of a frame.
type Header struct {
	Opcode     Opcode
	Status     Status
	Channel    uint16
	ID         uint64
	HeadersLen uint32
	BodyLen    uint32
}

// putHeader encodes h into dst, which must hold HeaderSize bytes.
func putHeader(dst []byte, h Header) {
	dst[0] = byte(h.Opcode)
	dst[1] = byte(h.Status)
	binary.BigEndian.PutUint16(dst[2:4], h.Channel)
	binary.BigEndian.PutUint64(dst[4:12], h.ID)
	binary.BigEndian.PutUint32(dst[12:16], h.HeadersLen)
	binary.BigEndian.PutUint32(dst[16:20], h.BodyLen)
}

// parseHeader decodes and validates a header from raw, which must hold at
// least HeaderSize bytes.
func parseHeader(raw []byte, lim Limits) (Header, error) {
	h := Header{
		Opcode:     Opcode(raw[0]),
		Status:     Status(raw[1]),
		Channel:    binary.BigEndian.Uint16(raw[2:4]),
		ID:         binary.BigEndian.Uint64(raw[4:12]),
		HeadersLen: binary.BigEndian.Uint32(raw[12:16]),
		BodyLen:    binary.BigEndian.Uint32(raw[16:20]),
	}
	if !h.Opcode.Valid() {
		return Header{}, api.ProtocolError("unknown opcode").WithContext("opcode", uint8(h.Opcode))
	}
	if h.HeadersLen > lim.MaxTextHeadersLen {
		return Header{}, api.ProtocolError("text headers exceed limit").
			WithContext("declared", h.HeadersLen).WithContext("limit", lim.MaxTextHeadersLen)
	}
	if h.BodyLen > lim.MaxBodyLen {
		return Header{}, api.ProtocolError("body exceeds limit").
			WithContext("declared", h.BodyLen).WithContext("limit", lim.MaxBodyLen)
	}
	return h, nil
}
