// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the shared contracts of the tofu engine: the error
// taxonomy, connection identifiers, pool allocation strategies and the
// graceful shutdown interface implemented by long-lived components.
//
// Every other package depends on api; api depends on nothing but the
// standard library.
package api
