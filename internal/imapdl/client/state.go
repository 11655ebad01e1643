// Package client implements the connection-lifecycle state machine,
// command driver, parser adapter, and signal/shutdown controller of
// spec.md §4 — the heart of imapdl, grounded on client.cc's
// IMAP::Copy::Client.
package client

import "fmt"

// State is one step of the monotonically increasing connection
// lifecycle, mirroring client.cc's State enum and its operator++.
// Advance only ever moves forward; the one way back is Machine.rewind,
// used once at the cleanup->download boundary.
type State int

const (
	Disconnected State = iota
	Established
	GotInitialCapabilities
	LoggedIn
	GotCapabilities
	SelectedMailbox
	Fetching
	Fetched
	Stored
	Expunged
	LoggingOut
	LoggedOut
	End
)

var stateNames = [...]string{
	"DISCONNECTED",
	"ESTABLISHED",
	"GOT_INITIAL_CAPABILITIES",
	"LOGGED_IN",
	"GOT_CAPABILITIES",
	"SELECTED_MAILBOX",
	"FETCHING",
	"FETCHED",
	"STORED",
	"EXPUNGED",
	"LOGGING_OUT",
	"LOGGED_OUT",
	"END",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Task distinguishes which command sequence do_task drives: cleanup
// of leftover journaled UIDs, or a fresh download, matching
// client.cc's Task enum.
type Task int

const (
	TaskDownload Task = iota
	TaskCleanup
)

// Machine tracks the current State and rejects any attempt to move it
// backwards, matching the invariant client.cc enforces implicitly by
// only ever calling operator++/operator+ on state_.
type Machine struct {
	state State
}

// NewMachine starts a Machine at Disconnected.
func NewMachine() *Machine {
	return &Machine{state: Disconnected}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Advance moves the machine to s, returning an error if s does not
// strictly follow the current state.
func (m *Machine) Advance(s State) error {
	if s <= m.state {
		return fmt.Errorf("client: illegal state transition %s -> %s", m.state, s)
	}
	m.state = s
	return nil
}

// rewind resets the machine to s without Advance's monotonicity check.
// It exists solely for the cleanup->download boundary: do_cleanup's
// SELECTED_MAILBOX..EXPUNGED run and do_download's own SELECTED_MAILBOX
// ..EXPUNGED run reuse the same states on the same connection, exactly
// as client.cc's do_cleanup falls through into do_download on the same
// Client object without resetting state_ itself (the C++ state only
// ever increases for the sub-steps it touches; re-entering SELECT/FETCH
// is not a regression, it is the documented unconditional chain).
func (m *Machine) rewind(s State) {
	m.state = s
}

// Is reports whether the machine is currently in state s.
func (m *Machine) Is(s State) bool {
	return m.state == s
}
