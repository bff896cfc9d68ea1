// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor implements the single I/O-owning control loop. One
// goroutine multiplexes every socket through epoll, assembles inbound
// frames into pooled messages and serializes outbound messages from the
// submission mailbox.
//
// The reactor's internal state (per-connection cursors, registration
// tables) is touched only by the Run goroutine. Other goroutines interact
// exclusively through the submission mailbox, the control queue and the
// notifier; socket creation for Dial/Listen happens on the caller, but the
// descriptor belongs to the reactor from registration on.
//
// Linux (epoll) is the supported platform; elsewhere New returns
// api.ErrNotSupported.
package reactor
