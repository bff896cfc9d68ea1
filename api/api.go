// File: api/api.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ConnID identifies a connection or listener registered with the reactor.
// Zero means "no connection".
type ConnID uint64

// Strategy selects pool allocation behavior on Get.
type Strategy int

const (
	// StrategyPoolOnly returns only recycled messages; an empty free list
	// yields ErrPoolEmpty instead of growing the pool.
	StrategyPoolOnly Strategy = iota

	// StrategyAlways allocates a fresh message when the free list is empty,
	// up to the pool ceiling; at the ceiling Get fails with
	// ErrResourceExhausted.
	StrategyAlways
)

// GracefulShutdown unifies teardown of long-lived components.
type GracefulShutdown interface {
	// Shutdown stops internal services and releases resources.
	// It must be safe to call more than once.
	Shutdown() error
}
