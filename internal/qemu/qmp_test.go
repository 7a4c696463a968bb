// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/aibor/emuctl/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type qmpCommand struct {
	Execute   string          `json:"execute"`
	Arguments json.RawMessage `json:"arguments"`
}

// fakeQMP serves the QMP protocol on conn. It answers each command with the
// value returned by handle. Commands received are sent to the returned
// channel.
func fakeQMP(
	t *testing.T,
	conn net.Conn,
	handle func(qmpCommand) any,
) <-chan qmpCommand {
	t.Helper()

	received := make(chan qmpCommand, 16)

	go func() {
		defer close(received)
		defer conn.Close()

		encoder := json.NewEncoder(conn)
		decoder := json.NewDecoder(conn)

		_ = encoder.Encode(map[string]any{
			"QMP": map[string]any{"version": map[string]any{}, "capabilities": []string{}},
		})

		for {
			var cmd qmpCommand

			err := decoder.Decode(&cmd)
			if err != nil {
				return
			}

			received <- cmd

			_ = encoder.Encode(map[string]any{
				"event":     "STOP",
				"timestamp": map[string]int{"seconds": 0},
			})
			_ = encoder.Encode(handle(cmd))
		}
	}()

	return received
}

func TestQMP_Execute(t *testing.T) {
	client, server := net.Pipe()

	received := fakeQMP(t, server, func(cmd qmpCommand) any {
		switch cmd.Execute {
		case "query-status":
			return map[string]any{"return": map[string]any{"status": "running", "running": true}}
		case "migrate":
			return map[string]any{"error": map[string]string{
				"class": "GenericError",
				"desc":  "no migration in progress",
			}}
		default:
			return map[string]any{"return": map[string]any{}}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	qmp, err := qemu.NewQMP(ctx, client)
	require.NoError(t, err)

	assert.Equal(t, "qmp_capabilities", (<-received).Execute)

	var status struct {
		Status  string `json:"status"`
		Running bool   `json:"running"`
	}

	require.NoError(t, qmp.Execute(ctx, "query-status", nil, &status))
	assert.Equal(t, "running", status.Status)
	assert.True(t, status.Running)
	assert.Equal(t, "query-status", (<-received).Execute)

	err = qmp.Execute(ctx, "migrate", map[string]string{"uri": "exec:cat > state"}, nil)
	require.ErrorIs(t, err, &qemu.QMPError{})
	assert.Contains(t, err.Error(), "no migration in progress")

	cmd := <-received
	assert.Equal(t, "migrate", cmd.Execute)
	assert.JSONEq(t, `{"uri": "exec:cat > state"}`, string(cmd.Arguments))

	require.NoError(t, qmp.Close())

	for range received {
	}
}

func TestQMP_NoGreeting(t *testing.T) {
	client, server := net.Pipe()

	go func() {
		defer server.Close()

		_ = json.NewEncoder(server).Encode(map[string]any{"return": map[string]any{}})
	}()

	_, err := qemu.NewQMP(context.Background(), client)
	require.ErrorIs(t, err, qemu.ErrQMPGreeting)
}

func TestQMP_Canceled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The server never greets.
	_, err := qemu.NewQMP(ctx, client)
	require.Error(t, err)
}

func TestQMP_BrokenAfterCancel(t *testing.T) {
	client, server := net.Pipe()
	hang := make(chan struct{})

	received := fakeQMP(t, server, func(cmd qmpCommand) any {
		if cmd.Execute == "query-migrate" {
			<-hang
		}

		return map[string]any{"return": map[string]any{}}
	})

	qmp, err := qemu.NewQMP(context.Background(), client)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = qmp.Execute(ctx, "query-migrate", nil, nil)
	require.ErrorIs(t, err, qemu.ErrQMPBroken)
	assert.True(t, qmp.Broken())

	// The reply of the canceled command would be taken as the reply of the
	// next one, so the client refuses to continue.
	err = qmp.Execute(context.Background(), "cont", nil, nil)
	require.ErrorIs(t, err, qemu.ErrQMPBroken)

	close(hang)
	require.NoError(t, qmp.Close())

	var commands []string
	for cmd := range received {
		commands = append(commands, cmd.Execute)
	}

	assert.Equal(t, []string{"qmp_capabilities", "query-migrate"}, commands)
}

func TestDialQMP_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := qemu.DialQMP(ctx, filepath.Join(t.TempDir(), "missing.sock"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
