// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"errors"
	"fmt"

	"github.com/aibor/emuctl/internal/emulator"
)

var (
	// ErrArgumentCollision is returned if two [Argument]s are considered equal.
	ErrArgumentCollision = errors.New("colliding args")

	// ErrNotRunning is returned if the QEMU process is not running.
	ErrNotRunning = fmt.Errorf("%w: qemu not running", emulator.ErrStopped)

	// ErrMigrationFailed is returned if QEMU reports a failed migration.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrQMPGreeting is returned if the QMP server did not greet.
	ErrQMPGreeting = errors.New("no qmp greeting")

	// ErrQMPBroken is returned by a [QMP] client whose connection failed.
	ErrQMPBroken = errors.New("qmp connection broken")
)

// ArgumentError indicates an issue with an input argument.
type ArgumentError struct {
	msg string
}

// Error implements the [error] interface.
func (e *ArgumentError) Error() string {
	return "argument error: " + e.msg
}

// Is implements the [errors.Is] interface.
func (*ArgumentError) Is(other error) bool {
	_, ok := other.(*ArgumentError)
	return ok
}

// CommandError wraps any error occurred during QEMU process execution.
type CommandError struct {
	Err error
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	return "qemu: " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// QMPError is an error response of the QMP server.
type QMPError struct {
	Command string
	Class   string
	Desc    string
}

// Error implements the [error] interface.
func (e *QMPError) Error() string {
	return fmt.Sprintf("qmp %s: %s: %s", e.Command, e.Class, e.Desc)
}

// Is implements the [errors.Is] interface.
func (*QMPError) Is(other error) bool {
	_, ok := other.(*QMPError)
	return ok
}
