// File: internal/cleanup/cleanup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package cleanup provides a scoped rollback list for multi-step
// construction. Each completed step registers its undo; reaching the
// success path clears the list, any other scope exit runs the undos in
// reverse order.
package cleanup

// List accumulates rollback actions.
//
//	var cl cleanup.List
//	defer cl.Run()
//	... step ...
//	cl.Add(undoStep)
//	... more steps ...
//	cl.Success()
type List struct {
	fns []func()
}

// Add registers the undo action for a completed step.
func (l *List) Add(fn func()) {
	l.fns = append(l.fns, fn)
}

// Success clears the list; a subsequent Run does nothing.
func (l *List) Success() {
	l.fns = nil
}

// Run executes pending undo actions in reverse registration order.
func (l *List) Run() {
	for i := len(l.fns) - 1; i >= 0; i-- {
		l.fns[i]()
	}
	l.fns = nil
}
