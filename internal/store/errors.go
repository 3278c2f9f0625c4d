package store

import "errors"

// Sentinel errors checked with errors.Is, the way the teacher's client
// and lxd-migrate packages favour plain wrapped errors over a
// stack-trace library (no such library appears in this teacher's own
// go.mod; see SPEC_FULL.md "Errors").
var (
	ErrNotFound                  = errors.New("store: not found")
	ErrCorrelationWindowExpired  = errors.New("store: dest report older than correlation window")
)
