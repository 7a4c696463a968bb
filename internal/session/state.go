// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

// State is the lifecycle state of a [Session].
type State int

const (
	// Uninitialized is the state without machine. Only init is accepted.
	Uninitialized State = iota
	// Initializing is the state while the machine is created.
	Initializing
	// Ready is the state with a running machine.
	Ready
	// Busy is the state while a snapshot operation runs.
	Busy
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Status values reported in status messages.
const (
	StatusInitialized    = "initialized"
	StatusLoadingState   = "loading_state"
	StatusRestoringState = "restoring_state"
	StatusStateLoaded    = "state_loaded"
	StatusSavingState    = "saving_state"
)

// Tests maps the names accepted by runTest to the commands they send.
var Tests = map[string]string{
	"ls":     "ls -la",
	"python": "python3 --help",
}
