// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"fmt"

	"github.com/aibor/emuctl/internal/controller"
)

const eventBuffer = 16

type savedState struct {
	data    []byte
	details string
}

// events collects the controller callbacks the command waits for. Events
// nobody waits for are dropped once the buffers are full.
type events struct {
	prompts  chan struct{}
	statuses chan string
	errors   chan string
	states   chan savedState
}

func newEvents() *events {
	return &events{
		prompts:  make(chan struct{}, 1),
		statuses: make(chan string, eventBuffer),
		errors:   make(chan string, eventBuffer),
		states:   make(chan savedState, 1),
	}
}

func (e *events) callbacks() controller.Callbacks {
	return controller.Callbacks{
		OnStatusChange: func(status, _ string) {
			notify(e.statuses, status)
		},
		OnError: func(message string) {
			notify(e.errors, message)
		},
		OnShellPromptDetected: func() {
			notify(e.prompts, struct{}{})
		},
		OnStateSaved: func(state []byte, details string) {
			notify(e.states, savedState{data: state, details: details})
		},
	}
}

func notify[T any](ch chan T, value T) {
	select {
	case ch <- value:
	default:
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// await waits for a value on ch that matches. A nil match accepts any value.
// Errors reported by the worker end the wait.
func await[T any](
	ctx context.Context,
	ctrl *controller.Controller,
	events *events,
	ch chan T,
	match func(T) bool,
) (T, error) {
	var zero T

	for {
		select {
		case value := <-ch:
			if match == nil || match(value) {
				return value, nil
			}
		case message := <-events.errors:
			return zero, fmt.Errorf("%w: %s", ErrEmulator, message)
		case <-ctrl.Done():
			return zero, controller.ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err() //nolint:wrapcheck
		}
	}
}

// joinCallbacks returns callbacks that call all given callbacks in order.
func joinCallbacks(list ...controller.Callbacks) controller.Callbacks {
	return controller.Callbacks{
		OnStatusChange: func(status, details string) {
			for _, cb := range list {
				if cb.OnStatusChange != nil {
					cb.OnStatusChange(status, details)
				}
			}
		},
		OnError: func(message string) {
			for _, cb := range list {
				if cb.OnError != nil {
					cb.OnError(message)
				}
			}
		},
		OnSerialOutput: func(char string) {
			for _, cb := range list {
				if cb.OnSerialOutput != nil {
					cb.OnSerialOutput(char)
				}
			}
		},
		OnShellPromptDetected: func() {
			for _, cb := range list {
				if cb.OnShellPromptDetected != nil {
					cb.OnShellPromptDetected()
				}
			}
		},
		OnEmulatorReady: func() {
			for _, cb := range list {
				if cb.OnEmulatorReady != nil {
					cb.OnEmulatorReady()
				}
			}
		},
		OnStateSaved: func(state []byte, details string) {
			for _, cb := range list {
				if cb.OnStateSaved != nil {
					cb.OnStateSaved(state, details)
				}
			}
		},
	}
}
