// File: protocol/opcode.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "fmt"

// Opcode is the closed set of frame kinds. Zero is not a valid opcode; the
// wire may evolve, so all handling code matches exhaustively and fails
// loudly on anything outside the set.
type Opcode uint8

const (
	OpRequest         Opcode = 1
	OpResponse        Opcode = 2
	OpSignal          Opcode = 3
	OpHelloRequest    Opcode = 4
	OpHelloResponse   Opcode = 5
	OpByeRequest      Opcode = 6
	OpByeResponse     Opcode = 7
	OpByeSignal       Opcode = 8
	OpWelcomeRequest  Opcode = 9
	OpWelcomeResponse Opcode = 10
)

// Valid reports whether op is one of the ten known opcodes.
func (op Opcode) Valid() bool {
	return op >= OpRequest && op <= OpWelcomeResponse
}

// String returns the canonical opcode name.
func (op Opcode) String() string {
	switch op {
	case OpRequest:
		return "REQUEST"
	case OpResponse:
		return "RESPONSE"
	case OpSignal:
		return "SIGNAL"
	case OpHelloRequest:
		return "HELLO_REQUEST"
	case OpHelloResponse:
		return "HELLO_RESPONSE"
	case OpByeRequest:
		return "BYE_REQUEST"
	case OpByeResponse:
		return "BYE_RESPONSE"
	case OpByeSignal:
		return "BYE_SIGNAL"
	case OpWelcomeRequest:
		return "WELCOME_REQUEST"
	case OpWelcomeResponse:
		return "WELCOME_RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(op))
	}
}

// Status is the status code carried in the binary header. The value set is
// defined by the layer above; the engine passes it through untouched.
type Status uint8

// StatusOK is the zero status.
const StatusOK Status = 0
