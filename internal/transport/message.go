// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"github.com/aibor/emuctl/internal/emulator"
)

// Type is the discriminator of a [Message].
type Type string

// Supervisor to worker message types.
const (
	TypeInit        Type = "init"
	TypeSendCommand Type = "sendCommand"
	TypeLoadState   Type = "loadState"
	TypeSaveState   Type = "saveState"
	TypeRunTest     Type = "runTest"
	TypeCleanCache  Type = "cleanCache"
)

// Worker to supervisor message types.
const (
	TypeWorkerReady         Type = "workerReady"
	TypeStatus              Type = "status"
	TypeError               Type = "error"
	TypeEmulatorReady       Type = "emulatorReady"
	TypeSerialOutput        Type = "serialOutput"
	TypeShellPromptDetected Type = "shellPromptDetected"
	TypeStateSaved          Type = "stateSaved"
)

// Direction is the direction a [Message] travels in.
type Direction int

const (
	// ToWorker is the direction from the supervisor to the worker.
	ToWorker Direction = iota
	// ToSupervisor is the direction from the worker to the supervisor.
	ToSupervisor
)

// String implements [fmt.Stringer].
func (d Direction) String() string {
	switch d {
	case ToWorker:
		return "to worker"
	case ToSupervisor:
		return "to supervisor"
	default:
		return "unknown direction"
	}
}

var directionTypes = map[Direction][]Type{
	ToWorker: {
		TypeInit,
		TypeSendCommand,
		TypeLoadState,
		TypeSaveState,
		TypeRunTest,
		TypeCleanCache,
	},
	ToSupervisor: {
		TypeWorkerReady,
		TypeStatus,
		TypeError,
		TypeEmulatorReady,
		TypeSerialOutput,
		TypeShellPromptDetected,
		TypeStateSaved,
	},
}

// Message is a single protocol message.
//
// Only the fields of the variant selected by Type are set. Use the
// constructor functions to create messages.
type Message struct {
	Type        Type             `json:"type"`
	Config      *emulator.Config `json:"config,omitempty"`
	Command     string           `json:"command,omitempty"`
	StateURL    string           `json:"stateUrl,omitempty"`
	Compression string           `json:"compression,omitempty"`
	TestType    string           `json:"testType,omitempty"`
	Status      string           `json:"status,omitempty"`
	Details     string           `json:"details,omitempty"`
	Message     string           `json:"message,omitempty"`
	Char        string           `json:"char,omitempty"`
	State       []byte           `json:"state,omitempty"`
}

// Init creates an init message for the given config.
func Init(cfg emulator.Config) Message {
	return Message{Type: TypeInit, Config: &cfg}
}

// SendCommand creates a message that writes the command to the serial
// console.
func SendCommand(command string) Message {
	return Message{Type: TypeSendCommand, Command: command}
}

// LoadState creates a message that restores the snapshot fetched from the
// given URL. Compression names the decompression policy. Empty means
// content sniffing.
func LoadState(stateURL, compression string) Message {
	return Message{
		Type:        TypeLoadState,
		StateURL:    stateURL,
		Compression: compression,
	}
}

// SaveState creates a message that requests a snapshot.
func SaveState() Message {
	return Message{Type: TypeSaveState}
}

// RunTest creates a message that runs the named canned test command.
func RunTest(testType string) Message {
	return Message{Type: TypeRunTest, TestType: testType}
}

// CleanCache creates a message that resets the output buffers.
func CleanCache() Message {
	return Message{Type: TypeCleanCache}
}

// WorkerReady creates the message a worker sends once it accepts messages.
func WorkerReady() Message {
	return Message{Type: TypeWorkerReady}
}

// Status creates a status message.
func Status(status, details string) Message {
	return Message{Type: TypeStatus, Status: status, Details: details}
}

// ErrorMessage creates an error message.
func ErrorMessage(message string) Message {
	return Message{Type: TypeError, Message: message}
}

// EmulatorReady creates the message sent once the emulator runs.
func EmulatorReady() Message {
	return Message{Type: TypeEmulatorReady}
}

// SerialOutput creates a message for a single serial output character.
func SerialOutput(char string) Message {
	return Message{Type: TypeSerialOutput, Char: char}
}

// ShellPromptDetected creates the message sent when a shell prompt is found
// in the serial output.
func ShellPromptDetected() Message {
	return Message{Type: TypeShellPromptDetected}
}

// StateSaved creates a message carrying a snapshot.
func StateSaved(state []byte, details string) Message {
	return Message{Type: TypeStateSaved, State: state, Details: details}
}
