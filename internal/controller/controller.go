// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aibor/emuctl/internal/emulator"
	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/aibor/emuctl/internal/transport"
)

// Worker is the handle of a session running off the caller's goroutine.
type Worker interface {
	Post(ctx context.Context, msg transport.Message) error
	Receive(ctx context.Context) (transport.Message, error)
	Terminate()
}

// Callbacks are called for the messages received from the worker. All
// callbacks are called from the same goroutine in message order. Nil
// callbacks are skipped.
//
// Callbacks must not call [Controller.Close].
type Callbacks struct {
	OnStatusChange        func(status, details string)
	OnError               func(message string)
	OnSerialOutput        func(char string)
	OnShellPromptDetected func()
	OnEmulatorReady       func()
	OnStateSaved          func(state []byte, details string)
}

// Options configure a [Controller].
type Options struct {
	// Config is sent to the worker with the init message.
	Config emulator.Config

	// StateURL is the snapshot to load once the emulator is ready. Nothing
	// is loaded if empty.
	StateURL string

	// Compression is the decompression policy for StateURL.
	Compression snapshot.Compression

	Callbacks Callbacks
	Logger    *slog.Logger
}

// Controller is the supervisor side of a session.
type Controller struct {
	worker    Worker
	callbacks Callbacks
	logger    *slog.Logger

	//nolint:containedctx
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	mu           sync.Mutex
	ready        bool
	readyCh      chan struct{}
	status       string
	output       strings.Builder
	capturing    bool
	pendingState transport.Message
}

// New creates a new [Controller] that takes ownership of the given worker.
//
// It sends the init message right away. If [Options.StateURL] is set, the
// load state message is sent once the worker reported the emulator ready.
func New(ctx context.Context, worker Worker, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)

	ctrl := &Controller{
		worker:    worker,
		callbacks: opts.Callbacks,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		readyCh:   make(chan struct{}),
		capturing: true,
	}

	if opts.StateURL != "" {
		ctrl.pendingState = transport.LoadState(opts.StateURL, string(opts.Compression))
	}

	err := worker.Post(ctx, transport.Init(opts.Config))
	if err != nil {
		cancel()
		worker.Terminate()

		return nil, err //nolint:wrapcheck
	}

	go ctrl.receive()

	return ctrl, nil
}

func (c *Controller) receive() {
	defer close(c.done)

	for {
		msg, err := c.worker.Receive(c.ctx)
		if err != nil {
			if errors.Is(err, &transport.Error{}) {
				c.dispatch(transport.ErrorMessage(err.Error()))
				continue
			}

			c.logger.Debug("Stop receiving", slog.Any("error", err))

			return
		}

		c.dispatch(msg)
	}
}

//nolint:cyclop
func (c *Controller) dispatch(msg transport.Message) {
	if c.closed.Load() {
		return
	}

	cb := c.callbacks

	switch msg.Type {
	case transport.TypeWorkerReady:
		c.logger.Debug("Worker ready")
	case transport.TypeStatus:
		c.mu.Lock()
		c.status = msg.Status
		c.mu.Unlock()

		c.logger.Debug("Status changed",
			slog.String("status", msg.Status),
			slog.String("details", msg.Details))

		if cb.OnStatusChange != nil {
			cb.OnStatusChange(msg.Status, msg.Details)
		}
	case transport.TypeError:
		c.logger.Warn("Worker error", slog.String("message", msg.Message))

		if cb.OnError != nil {
			cb.OnError(msg.Message)
		}
	case transport.TypeEmulatorReady:
		c.postPendingState()

		if cb.OnEmulatorReady != nil {
			cb.OnEmulatorReady()
		}
	case transport.TypeSerialOutput:
		c.mu.Lock()
		if c.capturing {
			c.output.WriteString(msg.Char)
		}
		c.mu.Unlock()

		if cb.OnSerialOutput != nil {
			cb.OnSerialOutput(msg.Char)
		}
	case transport.TypeShellPromptDetected:
		c.mu.Lock()
		c.capturing = false

		if !c.ready {
			c.ready = true
			close(c.readyCh)
		}
		c.mu.Unlock()

		if cb.OnShellPromptDetected != nil {
			cb.OnShellPromptDetected()
		}
	case transport.TypeStateSaved:
		if cb.OnStateSaved != nil {
			cb.OnStateSaved(msg.State, msg.Details)
		}
	default:
		c.logger.Warn("Unexpected message", slog.String("type", string(msg.Type)))
	}
}

// postPendingState sends the load state message requested on construction.
// It is sent at most once.
func (c *Controller) postPendingState() {
	c.mu.Lock()
	msg := c.pendingState
	c.pendingState = transport.Message{}
	c.mu.Unlock()

	if msg.Type == "" {
		return
	}

	err := c.worker.Post(c.ctx, msg)
	if err != nil {
		c.logger.Warn("Post load state", slog.Any("error", err))
	}
}

func (c *Controller) post(ctx context.Context, msg transport.Message) error {
	if c.closed.Load() {
		return ErrClosed
	}

	return c.worker.Post(ctx, msg) //nolint:wrapcheck
}

func (c *Controller) startCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.output.Reset()
	c.capturing = true
}

// SendCommand sends the command to the serial console.
//
// The output captured for [Controller.Output] is reset.
func (c *Controller) SendCommand(ctx context.Context, command string) error {
	c.startCapture()
	return c.post(ctx, transport.SendCommand(command))
}

// RunTest runs the named test command.
//
// The output captured for [Controller.Output] is reset.
func (c *Controller) RunTest(ctx context.Context, name string) error {
	c.startCapture()
	return c.post(ctx, transport.RunTest(name))
}

// SaveState requests a snapshot. The snapshot is delivered to
// [Callbacks.OnStateSaved].
func (c *Controller) SaveState(ctx context.Context) error {
	return c.post(ctx, transport.SaveState())
}

// LoadState requests to restore the snapshot from the given URL.
func (c *Controller) LoadState(
	ctx context.Context,
	url string,
	compression snapshot.Compression,
) error {
	return c.post(ctx, transport.LoadState(url, string(compression)))
}

// CleanCache resets the worker's output buffers.
func (c *Controller) CleanCache(ctx context.Context) error {
	return c.post(ctx, transport.CleanCache())
}

// IsReady reports whether a shell prompt was detected. Once true, it stays
// true.
func (c *Controller) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ready
}

// Status returns the last status reported by the worker.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Output returns the serial output received since the last command until the
// following shell prompt.
func (c *Controller) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.output.String()
}

// WaitReady blocks until the first shell prompt was detected, the context is
// done or the controller stopped receiving.
func (c *Controller) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		if c.IsReady() {
			return nil
		}

		return ErrClosed
	}
}

// Done returns a channel that is closed once the controller stopped
// receiving from the worker.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close terminates the worker. No callback is called after Close returned.
// It is safe to call Close multiple times.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.worker.Terminate()
	})

	<-c.done
}
