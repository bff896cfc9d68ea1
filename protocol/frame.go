// File: protocol/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame encoding and incremental decoding with declared-size enforcement.
// The decoder works over an accumulation buffer owned by the connection:
// it reports "incomplete" until a full frame is buffered, so a slow peer
// simply ends that socket's turn in the current poll iteration.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/tofu/api"
)

// Frame is one fully decoded wire frame. Body aliases the decode input and
// is only valid until the caller reuses its read buffer; the reactor copies
// it into a pooled Message before releasing the buffer.
type Frame struct {
	Header  Header
	Headers []TextHeader
	Body    []byte
}

// EncodeMessage appends the complete frame for m to dst and returns the
// extended slice. The header's declared lengths are computed here, so they
// always equal the encoded sizes.
func EncodeMessage(dst []byte, m *Message) ([]byte, error) {
	if !m.Opcode.Valid() {
		return dst, api.ProtocolError("encode: unknown opcode").WithContext("opcode", uint8(m.Opcode))
	}
	hdrsLen := encodedTextHeadersLen(m.headers)

	h := Header{
		Opcode:     m.Opcode,
		Status:     m.Status,
		Channel:    m.Channel,
		ID:         m.ID,
		HeadersLen: uint32(hdrsLen),
		BodyLen:    uint32(len(m.body)),
	}
	off := len(dst)
	dst = append(dst, make([]byte, HeaderSize)...)
	putHeader(dst[off:], h)
	dst = appendTextHeaders(dst, m.headers)
	dst = append(dst, m.body...)
	return dst, nil
}

// EncodedSize returns the total wire size of the frame for m.
func EncodedSize(m *Message) int {
	return HeaderSize + encodedTextHeadersLen(m.headers) + len(m.body)
}

// DecodeFrameFromBytes parses one frame from raw. Returns the frame, the
// number of bytes consumed, and an error. An incomplete frame yields
// (nil, 0, nil). Header validation happens as soon as the fixed prefix is
// buffered, before any payload accumulates.
func DecodeFrameFromBytes(raw []byte, lim Limits) (*Frame, int, error) {
	if len(raw) < HeaderSize {
		return nil, 0, nil // Incomplete
	}
	h, err := parseHeader(raw, lim)
	if err != nil {
		return nil, 0, err
	}
	total := HeaderSize + int(h.HeadersLen) + int(h.BodyLen)
	if len(raw) < total {
		return nil, 0, nil // Incomplete
	}

	hdrsRaw := raw[HeaderSize : HeaderSize+int(h.HeadersLen)]
	headers, err := parseTextHeaders(hdrsRaw)
	if err != nil {
		return nil, 0, err
	}

	return &Frame{
		Header:  h,
		Headers: headers,
		Body:    raw[HeaderSize+int(h.HeadersLen) : total],
	}, total, nil
}

// FillMessage copies the decoded frame into a pooled message.
func (f *Frame) FillMessage(m *Message) {
	m.Opcode = f.Header.Opcode
	m.Status = f.Header.Status
	m.Channel = f.Header.Channel
	m.ID = f.Header.ID
	m.headers = append(m.headers[:0], f.Headers...)
	m.body = append(m.body[:0], f.Body...)
}

const pairPrefixLen = 3 // uint8 name length + uint16 value length

func encodedTextHeadersLen(hs []TextHeader) int {
	n := 0
	for i := range hs {
		n += pairPrefixLen + len(hs[i].Name) + len(hs[i].Value)
	}
	return n
}

func appendTextHeaders(dst []byte, hs []TextHeader) []byte {
	for i := range hs {
		dst = append(dst, byte(len(hs[i].Name)))
		var vl [2]byte
		binary.BigEndian.PutUint16(vl[:], uint16(len(hs[i].Value)))
		dst = append(dst, vl[:]...)
		dst = append(dst, hs[i].Name...)
		dst = append(dst, hs[i].Value...)
	}
	return dst
}

// parseTextHeaders decodes the pair run. The run must consume raw exactly;
// trailing or truncated bytes are a protocol error.
func parseTextHeaders(raw []byte) ([]TextHeader, error) {
	var hs []TextHeader
	off := 0
	for off < len(raw) {
		if len(raw)-off < pairPrefixLen {
			return nil, api.ProtocolError("truncated text header prefix")
		}
		nameLen := int(raw[off])
		valueLen := int(binary.BigEndian.Uint16(raw[off+1 : off+3]))
		off += pairPrefixLen
		if nameLen == 0 {
			return nil, api.ProtocolError("empty text header name")
		}
		if len(raw)-off < nameLen+valueLen {
			return nil, api.ProtocolError("truncated text header pair")
		}
		name := string(raw[off : off+nameLen])
		off += nameLen
		value := string(raw[off : off+valueLen])
		off += valueLen
		if err := checkHeaderName(name); err != nil {
			return nil, api.ProtocolError(err.Error())
		}
		hs = append(hs, TextHeader{Name: name, Value: value})
	}
	return hs, nil
}
