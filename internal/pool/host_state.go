package pool

import "fmt"

// HostState is the lifecycle state of one worker host.
//
//	Uninitialized -> Initializing -> Idle <-> Busy
//
// Any state may transition to Faulted on an unrecoverable initialization or
// execution failure. Faulted is terminal: a faulted host is discarded and
// replaced, never reused.
type HostState string

const (
	HostUninitialized HostState = "UNINITIALIZED"
	HostInitializing  HostState = "INITIALIZING"
	HostIdle          HostState = "IDLE"
	HostBusy          HostState = "BUSY"
	HostFaulted       HostState = "FAULTED"
)

// IsTerminal reports whether the state ends the host's life.
func IsTerminal(s HostState) bool { return s == HostFaulted }

// transitionHost validates and performs a host state transition.
//
// The caller supplies the expected prior state (from) to make bookkeeping
// bugs observable instead of silently absorbed.
func transitionHost(cur *HostState, from, to HostState) error {
	if *cur != from {
		return fmt.Errorf("invalid host transition: expected %s, got %s", from, *cur)
	}
	if !isAllowedHostTransition(from, to) {
		return fmt.Errorf("disallowed host transition: %s -> %s", from, to)
	}
	*cur = to
	return nil
}

func isAllowedHostTransition(from, to HostState) bool {
	if to == HostFaulted {
		return from != HostFaulted
	}
	switch from {
	case HostUninitialized:
		return to == HostInitializing
	case HostInitializing:
		return to == HostIdle
	case HostIdle:
		return to == HostBusy
	case HostBusy:
		return to == HostIdle
	default:
		return false
	}
}
