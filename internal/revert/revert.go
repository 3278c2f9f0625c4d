// Package revert provides a stack of cleanup functions for multi-step
// setup, the way the teacher's shared/revert package is used from
// client/events.go's getEvents: push a cleanup after each step that can
// fail, then either Fail() to run them all in reverse, or Success() to
// disarm the stack once every step has succeeded.
package revert

// Reverter is a LIFO stack of cleanup functions.
type Reverter struct {
	fns []func()
}

// New returns an empty Reverter.
func New() *Reverter {
	return &Reverter{}
}

// Add pushes a cleanup function onto the stack.
func (r *Reverter) Add(fn func()) {
	r.fns = append(r.fns, fn)
}

// Fail runs every registered cleanup function in reverse order. Safe to
// call unconditionally via defer; a no-op after Success.
func (r *Reverter) Fail() {
	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}

	r.fns = nil
}

// Success disarms the stack so a deferred Fail becomes a no-op.
func (r *Reverter) Success() {
	r.fns = nil
}
