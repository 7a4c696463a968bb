// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned if a message can not be decoded.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownType is returned if the discriminator of a message is not
	// known for the direction it was received in.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMissingField is returned if a field required by the message type is
	// not set.
	ErrMissingField = errors.New("missing required field")

	// ErrClosed is returned if an [Endpoint] is used after the pipe has been
	// closed.
	ErrClosed = errors.New("transport closed")
)

// Error wraps any error found while decoding or validating a message.
type Error struct {
	Type Type
	Err  error
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}

	return fmt.Sprintf("transport message %s: %v", e.Type, e.Err)
}

// Is implements the [errors.Is] interface.
func (*Error) Is(other error) bool {
	_, ok := other.(*Error)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *Error) Unwrap() error {
	return e.Err
}

func missingField(msgType Type, field string) error {
	return &Error{
		Type: msgType,
		Err:  fmt.Errorf("%w: %s", ErrMissingField, field),
	}
}
