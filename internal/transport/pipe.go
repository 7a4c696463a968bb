// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"sync"
)

// DefaultBuffer is the number of messages that may be in flight in one
// direction before [Endpoint.Send] blocks.
const DefaultBuffer = 4096

// pipe is the shared state of two connected [Endpoint]s.
type pipe struct {
	toWorker     chan []byte
	toSupervisor chan []byte
	done         chan struct{}
	closeOnce    sync.Once
}

func (p *pipe) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Endpoint is one side of a [Pipe].
//
// Messages sent on one endpoint are received on the other endpoint in send
// order. Every message is delivered at most once. An Endpoint is safe for
// concurrent use.
type Endpoint struct {
	pipe *pipe
	// outbound is the direction of sent messages.
	outbound Direction
	tx       chan<- []byte
	rx       <-chan []byte
}

// Pipe creates a connected pair of endpoints with the given per direction
// buffer size.
func Pipe(buffer int) (*Endpoint, *Endpoint) {
	p := &pipe{
		toWorker:     make(chan []byte, buffer),
		toSupervisor: make(chan []byte, buffer),
		done:         make(chan struct{}),
	}

	supervisor := &Endpoint{
		pipe:     p,
		outbound: ToWorker,
		tx:       p.toWorker,
		rx:       p.toSupervisor,
	}

	worker := &Endpoint{
		pipe:     p,
		outbound: ToSupervisor,
		tx:       p.toSupervisor,
		rx:       p.toWorker,
	}

	return supervisor, worker
}

// Send encodes and sends the message to the other endpoint.
//
// It blocks until the message is buffered, the context is done or the pipe
// is closed.
func (e *Endpoint) Send(ctx context.Context, msg Message) error {
	err := Validate(e.outbound, msg)
	if err != nil {
		return err
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	return e.SendRaw(ctx, data)
}

// SendRaw sends already encoded data to the other endpoint. The data is not
// validated. The receiving side reports invalid data as [Error].
func (e *Endpoint) SendRaw(ctx context.Context, data []byte) error {
	select {
	case <-e.pipe.done:
		return ErrClosed
	default:
	}

	select {
	case <-e.pipe.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case e.tx <- data:
		return nil
	}
}

// Receive waits for the next message from the other endpoint.
//
// If the received data is not a valid message, the returned error is an
// [Error] and the endpoint stays usable. [ErrClosed] is returned once the
// pipe is closed.
func (e *Endpoint) Receive(ctx context.Context) (Message, error) {
	select {
	case <-e.pipe.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case data := <-e.rx:
		return Decode(e.inbound(), data)
	}
}

func (e *Endpoint) inbound() Direction {
	if e.outbound == ToWorker {
		return ToSupervisor
	}

	return ToWorker
}

// Close closes the pipe for both endpoints. Pending messages are discarded.
func (e *Endpoint) Close() {
	e.pipe.close()
}
