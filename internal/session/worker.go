// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aibor/emuctl/internal/emulator"
	"github.com/aibor/emuctl/internal/transport"
)

// Worker is the supervisor side handle of a [Session] running in its own
// goroutine.
type Worker struct {
	endpoint  *transport.Endpoint
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Spawn starts a new [Session] in its own goroutine connected by a fresh
// [transport.Pipe]. The session runs until the context is done or
// [Worker.Terminate] is called.
func Spawn(
	ctx context.Context,
	factory emulator.Factory,
	fetcher Fetcher,
	opts ...Option,
) *Worker {
	supervisor, worker := transport.Pipe(transport.DefaultBuffer)
	session := New(worker, factory, fetcher, opts...)

	ctx, cancel := context.WithCancel(ctx)

	w := &Worker{
		endpoint: supervisor,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(w.done)

		err := session.Run(ctx)
		if err != nil && ctx.Err() == nil {
			session.logger.Error("Session stopped", slog.Any("error", err))
		}
	}()

	return w
}

// Post sends the message to the session.
func (w *Worker) Post(ctx context.Context, msg transport.Message) error {
	return w.endpoint.Send(ctx, msg)
}

// Receive waits for the next message from the session.
func (w *Worker) Receive(ctx context.Context) (transport.Message, error) {
	return w.endpoint.Receive(ctx)
}

// Terminate stops the session and waits until it has released its machine.
// Pending messages are discarded. It is safe to call Terminate multiple
// times.
func (w *Worker) Terminate() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.endpoint.Close()
	})

	<-w.done
}
