// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const qmpDialInterval = 20 * time.Millisecond

type qmpRequest struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
}

type qmpResponse struct {
	QMP    json.RawMessage `json:"QMP"`
	Return json.RawMessage `json:"return"`
	Event  string          `json:"event"`
	Error  *struct {
		Class string `json:"class"`
		Desc  string `json:"desc"`
	} `json:"error"`
}

// QMP is a client for the QEMU machine protocol.
//
// Commands are executed one at a time. Asynchronous events are discarded.
// Once sending or receiving failed, the connection is out of sync and all
// further commands fail with [ErrQMPBroken].
type QMP struct {
	mu      sync.Mutex
	conn    net.Conn
	decoder *json.Decoder
	encoder *json.Encoder
	err     error
}

// DialQMP connects to the QMP unix socket at the given path. It retries
// until the socket is available or the context is done.
func DialQMP(ctx context.Context, path string) (*QMP, error) {
	var dialer net.Dialer

	for {
		conn, err := dialer.DialContext(ctx, "unix", path)
		if err == nil {
			return NewQMP(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial qmp: %w", errors.Join(ctx.Err(), err))
		case <-time.After(qmpDialInterval):
		}
	}
}

// NewQMP creates a new [QMP] client on the given connection. It waits for
// the server greeting and negotiates the capabilities.
func NewQMP(ctx context.Context, conn net.Conn) (*QMP, error) {
	qmp := &QMP{
		conn:    conn,
		decoder: json.NewDecoder(conn),
		encoder: json.NewEncoder(conn),
	}

	err := qmp.greeting(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	err = qmp.Execute(ctx, "qmp_capabilities", nil, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return qmp, nil
}

func (q *QMP) greeting(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	defer q.setDeadline(ctx)()

	var resp qmpResponse

	err := q.decoder.Decode(&resp)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	if resp.QMP == nil {
		return ErrQMPGreeting
	}

	return nil
}

// setDeadline applies the context deadline and cancellation to the
// connection and returns a function that removes them again.
func (q *QMP) setDeadline(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = q.conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = q.conn.SetDeadline(time.Now())
	})

	return func() {
		stop()

		_ = q.conn.SetDeadline(time.Time{})
	}
}

// Execute executes the command with the given arguments. If result is not
// nil, the return value is decoded into it.
//
// Errors reported by the server are returned as [QMPError].
func (q *QMP) Execute(ctx context.Context, command string, args, result any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return fmt.Errorf("qmp %s: %w", command, q.err)
	}

	defer q.setDeadline(ctx)()

	err := q.encoder.Encode(qmpRequest{Execute: command, Arguments: args})
	if err != nil {
		return q.fail(command, "send", err)
	}

	for {
		var resp qmpResponse

		err := q.decoder.Decode(&resp)
		if err != nil {
			return q.fail(command, "receive", err)
		}

		switch {
		case resp.Event != "":
			continue
		case resp.Error != nil:
			return &QMPError{
				Command: command,
				Class:   resp.Error.Class,
				Desc:    resp.Error.Desc,
			}
		case result != nil:
			err := json.Unmarshal(resp.Return, result)
			if err != nil {
				return fmt.Errorf("qmp %s: decode return: %w", command, err)
			}
		}

		return nil
	}
}

// fail marks the client broken. Must be called with q.mu held.
func (q *QMP) fail(command, stage string, err error) error {
	q.err = fmt.Errorf("%w: %w", ErrQMPBroken, err)
	return fmt.Errorf("qmp %s: %s: %w", command, stage, q.err)
}

// Broken reports whether the client failed to send or receive before.
func (q *QMP) Broken() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.err != nil
}

// Close closes the connection.
func (q *QMP) Close() error {
	return q.conn.Close() //nolint:wrapcheck
}
