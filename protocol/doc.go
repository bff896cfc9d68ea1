// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements the tofu wire frame: a fixed 20-byte binary
// header, an ordered run of text header pairs, and an opaque body.
//
// The byte layout below is the interoperability contract. All integer
// fields are big-endian.
//
//	offset  size  field
//	0       1     opcode
//	1       1     status
//	2       2     channel
//	4       8     message id
//	12      4     text-headers length
//	16      4     body length
//
// Text headers are encoded in insertion order, each pair as a uint8 name
// length, a uint16 value length, the ASCII name bytes and the UTF-8 value
// bytes. Order is wire-significant.
//
// A frame on the wire is the header, then exactly text-headers-length
// bytes of encoded pairs, then exactly body-length bytes of body. The
// header's declared lengths always equal the encoded sizes: the encoder
// computes them at write time and the decoder enforces them at read time.
package protocol
