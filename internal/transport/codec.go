// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("transport: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode encodes the message into its wire form.
func Encode(msg Message) ([]byte, error) {
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, &Error{Type: msg.Type, Err: fmt.Errorf("encode: %w", err)}
	}

	return data, nil
}

// Decode decodes a message from its wire form and validates it for the
// given direction.
//
// It returns an [Error] if the data can not be decoded, the type is unknown
// for the direction or a required field is missing.
func Decode(dir Direction, data []byte) (Message, error) {
	var msg Message

	err := decMode.Unmarshal(data, &msg)
	if err != nil {
		return Message{}, &Error{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	return msg, Validate(dir, msg)
}

// EncodeJSON encodes the message into its JSON form.
func EncodeJSON(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &Error{Type: msg.Type, Err: fmt.Errorf("encode: %w", err)}
	}

	return data, nil
}

// DecodeJSON is like [Decode] but for the JSON form.
func DecodeJSON(dir Direction, data []byte) (Message, error) {
	var msg Message

	err := json.Unmarshal(data, &msg)
	if err != nil {
		return Message{}, &Error{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	return msg, Validate(dir, msg)
}

// Validate checks the structure of the message for the given direction.
func Validate(dir Direction, msg Message) error {
	if msg.Type == "" {
		return missingField(msg.Type, "type")
	}

	if !slices.Contains(directionTypes[dir], msg.Type) {
		return &Error{
			Type: msg.Type,
			Err:  fmt.Errorf("%w %s", ErrUnknownType, dir),
		}
	}

	switch msg.Type {
	case TypeInit:
		if msg.Config == nil {
			return missingField(msg.Type, "config")
		}
	case TypeLoadState:
		if msg.StateURL == "" {
			return missingField(msg.Type, "stateUrl")
		}
	case TypeRunTest:
		if msg.TestType == "" {
			return missingField(msg.Type, "testType")
		}
	case TypeStatus:
		if msg.Status == "" {
			return missingField(msg.Type, "status")
		}
	case TypeError:
		if msg.Message == "" {
			return missingField(msg.Type, "message")
		}
	case TypeSerialOutput:
		if msg.Char == "" {
			return missingField(msg.Type, "char")
		}
	case TypeStateSaved:
		if msg.State == nil {
			return missingField(msg.Type, "state")
		}
	}

	return nil
}
