// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"context"
	"sync"
)

// Machine is the capability set of an emulator engine the control channel
// depends on.
//
// Listeners must be registered before [Machine.Start] is called. They fire
// for every occurrence in emission order on a goroutine owned by the
// Machine. Implementations must be safe for concurrent use of
// [Machine.SendSerial] and the snapshot methods.
//
// Once the machine is gone for good, its methods return errors matching
// [ErrStopped]. Only [Machine.Close] is of use then.
type Machine interface {
	// Start boots the machine. Readiness is reported asynchronously to the
	// listeners registered with OnReady.
	Start(ctx context.Context) error

	// SendSerial writes data to the serial console input.
	SendSerial(data []byte) error

	// OnReady registers a listener called once the machine is running.
	OnReady(fn func())

	// OnOutputByte registers a listener called for every byte written to
	// the serial console by the guest.
	OnOutputByte(fn func(byte))

	// SaveState captures the complete machine state.
	SaveState(ctx context.Context) ([]byte, error)

	// RestoreState replaces the machine state with the given snapshot.
	RestoreState(ctx context.Context, state []byte) error

	// Close stops the machine and releases all resources.
	Close() error
}

// Factory constructs a [Machine] for the given parameters. The returned
// Machine is not started yet.
type Factory func(params BootParams) (Machine, error)

// Listeners is a registry of listener functions for one event type.
//
// The zero value is ready to use.
type Listeners[T any] struct {
	mu  sync.RWMutex
	fns []func(T)
}

// Add registers the given listener.
func (l *Listeners[T]) Add(fn func(T)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fns = append(l.fns, fn)
}

// Emit calls all registered listeners in registration order.
func (l *Listeners[T]) Emit(value T) {
	l.mu.RLock()
	fns := l.fns
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(value)
	}
}
