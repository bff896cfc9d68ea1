// File: protocol/frame_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	m := protocol.NewMessage()
	m.Opcode = protocol.OpRequest
	m.Channel = 5
	m.ID = 42
	if err := m.AddHeader("x", "1"); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	m.SetBody([]byte("hi"))

	wire, err := protocol.EncodeMessage(nil, m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if len(wire) != protocol.EncodedSize(m) {
		t.Errorf("encoded %d bytes, EncodedSize says %d", len(wire), protocol.EncodedSize(m))
	}

	f, n, err := protocol.DecodeFrameFromBytes(wire, protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("DecodeFrameFromBytes: %v", err)
	}
	if f == nil || n != len(wire) {
		t.Fatalf("decode consumed %d of %d", n, len(wire))
	}
	if f.Header.Opcode != protocol.OpRequest || f.Header.Channel != 5 || f.Header.ID != 42 {
		t.Errorf("header mismatch: %+v", f.Header)
	}
	if len(f.Headers) != 1 || f.Headers[0].Name != "x" || f.Headers[0].Value != "1" {
		t.Errorf("text headers mismatch: %+v", f.Headers)
	}
	if !bytes.Equal(f.Body, []byte("hi")) {
		t.Errorf("body mismatch: %q", f.Body)
	}

	got := protocol.NewMessage()
	f.FillMessage(got)
	if got.Opcode != m.Opcode || got.Channel != m.Channel || !bytes.Equal(got.Body(), m.Body()) {
		t.Errorf("FillMessage mismatch: %+v", got)
	}
}

func TestHeaderOrderPreserved(t *testing.T) {
	m := protocol.NewMessage()
	m.Opcode = protocol.OpSignal
	names := []string{"zeta", "alpha", "mid", "alpha"}
	for i, n := range names {
		if err := m.AddHeader(n, string(rune('0'+i))); err != nil {
			t.Fatalf("AddHeader(%q): %v", n, err)
		}
	}
	wire, err := protocol.EncodeMessage(nil, m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	f, _, err := protocol.DecodeFrameFromBytes(wire, protocol.DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, n := range names {
		if f.Headers[i].Name != n {
			t.Fatalf("header %d = %q, want %q (order lost)", i, f.Headers[i].Name, n)
		}
	}
}

func TestDecodeIncremental(t *testing.T) {
	m := protocol.NewMessage()
	m.Opcode = protocol.OpResponse
	m.Channel = 9
	if err := m.AddHeader("content-type", "text/plain"); err != nil {
		t.Fatal(err)
	}
	m.SetBody([]byte("incremental payload"))
	wire, err := protocol.EncodeMessage(nil, m)
	if err != nil {
		t.Fatal(err)
	}

	// Feed one byte at a time; the decoder must stay "incomplete" until
	// the final byte arrives.
	lim := protocol.DefaultLimits()
	for i := 0; i < len(wire)-1; i++ {
		f, n, err := protocol.DecodeFrameFromBytes(wire[:i+1], lim)
		if err != nil {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
		if f != nil || n != 0 {
			t.Fatalf("byte %d: decoded early (n=%d)", i, n)
		}
	}
	f, n, err := protocol.DecodeFrameFromBytes(wire, lim)
	if err != nil || f == nil || n != len(wire) {
		t.Fatalf("full frame: f=%v n=%d err=%v", f, n, err)
	}
}

func TestDecodeTwoFramesBackToBack(t *testing.T) {
	var wire []byte
	for _, ch := range []uint16{1, 2} {
		m := protocol.NewMessage()
		m.Opcode = protocol.OpSignal
		m.Channel = ch
		m.SetBody([]byte{byte(ch)})
		var err error
		wire, err = protocol.EncodeMessage(wire, m)
		if err != nil {
			t.Fatal(err)
		}
	}
	lim := protocol.DefaultLimits()
	f1, n1, err := protocol.DecodeFrameFromBytes(wire, lim)
	if err != nil || f1 == nil {
		t.Fatalf("first frame: %v", err)
	}
	f2, n2, err := protocol.DecodeFrameFromBytes(wire[n1:], lim)
	if err != nil || f2 == nil {
		t.Fatalf("second frame: %v", err)
	}
	if n1+n2 != len(wire) {
		t.Errorf("consumed %d+%d of %d", n1, n2, len(wire))
	}
	if f1.Header.Channel != 1 || f2.Header.Channel != 2 {
		t.Errorf("wire order lost: %d then %d", f1.Header.Channel, f2.Header.Channel)
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	m := protocol.NewMessage()
	m.Opcode = protocol.OpRequest
	wire, err := protocol.EncodeMessage(nil, m)
	if err != nil {
		t.Fatal(err)
	}
	wire[0] = 0xff
	_, _, err = protocol.DecodeFrameFromBytes(wire, protocol.DefaultLimits())
	var perr *api.Error
	if !errors.As(err, &perr) || perr.Code != api.ErrCodeProtocol {
		t.Fatalf("want protocol error, got %v", err)
	}
}

func TestDecodeRejectsOversizedDeclaredLengths(t *testing.T) {
	lim := protocol.Limits{MaxTextHeadersLen: 16, MaxBodyLen: 16}

	m := protocol.NewMessage()
	m.Opcode = protocol.OpRequest
	m.SetBody(bytes.Repeat([]byte("a"), 17))
	wire, err := protocol.EncodeMessage(nil, m)
	if err != nil {
		t.Fatal(err)
	}
	// Only the header prefix is needed for the limit check to fire.
	if _, _, err := protocol.DecodeFrameFromBytes(wire[:protocol.HeaderSize], lim); err == nil {
		t.Fatal("oversized body length accepted")
	}

	m2 := protocol.NewMessage()
	m2.Opcode = protocol.OpRequest
	if err := m2.AddHeader("name", "value-longer-than-the-limit"); err != nil {
		t.Fatal(err)
	}
	wire2, err := protocol.EncodeMessage(nil, m2)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := protocol.DecodeFrameFromBytes(wire2[:protocol.HeaderSize], lim); err == nil {
		t.Fatal("oversized text headers length accepted")
	}
}

func TestDecodeRejectsMalformedTextHeaders(t *testing.T) {
	m := protocol.NewMessage()
	m.Opcode = protocol.OpRequest
	if err := m.AddHeader("ok", "fine"); err != nil {
		t.Fatal(err)
	}
	wire, err := protocol.EncodeMessage(nil, m)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the name length so the pair run no longer fits the declared
	// text-headers length.
	wire[protocol.HeaderSize] = 0xff
	if _, _, err := protocol.DecodeFrameFromBytes(wire, protocol.DefaultLimits()); err == nil {
		t.Fatal("malformed text headers accepted")
	}
}

func TestAddHeaderValidation(t *testing.T) {
	m := protocol.NewMessage()
	if err := m.AddHeader("", "v"); err == nil {
		t.Error("empty name accepted")
	}
	if err := m.AddHeader("non ascii\x01", "v"); err == nil {
		t.Error("control bytes in name accepted")
	}
	if err := m.AddHeader("utf8-value", "значение"); err != nil {
		t.Errorf("utf-8 value rejected: %v", err)
	}
}

func TestMessageReset(t *testing.T) {
	m := protocol.NewMessage()
	m.Opcode = protocol.OpByeSignal
	m.Status = 7
	m.Channel = 3
	m.ID = 99
	m.Conn = 12
	_ = m.AddHeader("k", "v")
	m.SetBody([]byte("payload"))

	m.Reset()
	if m.Opcode != 0 || m.Status != protocol.StatusOK || m.Channel != 0 || m.ID != 0 || m.Conn != 0 {
		t.Errorf("header fields not pristine: %+v", m)
	}
	if len(m.Headers()) != 0 || len(m.Body()) != 0 {
		t.Errorf("payload not pristine")
	}
}
