// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is reported for requests that need a machine before
	// init succeeded.
	ErrNotInitialized = errors.New("emulator not initialized")

	// ErrAlreadyInitialized is reported for init requests while a machine
	// exists.
	ErrAlreadyInitialized = errors.New("emulator already initialized")

	// ErrBusy is reported if a snapshot operation is requested while another
	// one is still running.
	ErrBusy = errors.New("snapshot operation in progress")

	// ErrUnknownTest is reported for runTest requests with unknown names.
	ErrUnknownTest = errors.New("unknown test")
)

// PanicError is a recovered panic of a request handler.
type PanicError struct {
	Op    string
	Value any
}

// Error implements the [error] interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Op, e.Value)
}

// Is implements the [errors.Is] interface.
func (*PanicError) Is(other error) bool {
	_, ok := other.(*PanicError)
	return ok
}
