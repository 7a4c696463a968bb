// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned if a required [Config] field is empty.
	ErrMissingField = errors.New("missing required field")

	// ErrNotStarted is returned if a [Machine] is used before it is started.
	ErrNotStarted = errors.New("machine not started")

	// ErrAlreadyStarted is returned if a [Machine] is started twice.
	ErrAlreadyStarted = errors.New("machine already started")

	// ErrClosed is returned if a [Machine] is used after it was closed.
	ErrClosed = errors.New("machine closed")

	// ErrInvalidState is returned if snapshot bytes can not be restored.
	ErrInvalidState = errors.New("invalid machine state")

	// ErrStopped is returned if a started [Machine] can not be used any
	// more, e.g. because the emulator process exited.
	ErrStopped = errors.New("machine stopped")
)

// ConfigError indicates an invalid [Config]. It is terminal for the init
// attempt it occurred in. Retrying with a corrected [Config] is possible.
type ConfigError struct {
	Field string
	Err   error
}

// Error implements the [error] interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

// Is implements the [errors.Is] interface.
func (*ConfigError) Is(other error) bool {
	_, ok := other.(*ConfigError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CapabilityError wraps any error surfaced by a [Machine] call.
type CapabilityError struct {
	Op  string
	Err error
}

// Error implements the [error] interface.
func (e *CapabilityError) Error() string {
	return "emulator " + e.Op + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*CapabilityError) Is(other error) bool {
	_, ok := other.(*CapabilityError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Wrap wraps err in a [CapabilityError] for the given operation. It returns
// nil if err is nil and err unchanged if it is a [CapabilityError] already.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return err
	}

	return &CapabilityError{Op: op, Err: err}
}
