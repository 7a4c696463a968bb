// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aibor/emuctl/internal/bridge"
	"github.com/aibor/emuctl/internal/controller"
	"github.com/aibor/emuctl/internal/emulator"
	"github.com/aibor/emuctl/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	hub := bridge.NewHub(logger, nil)

	worker := session.Spawn(context.Background(), emulator.NewScripted, nil)

	ctrl, err := controller.New(context.Background(), worker, controller.Options{
		Config: emulator.Config{
			WasmPath:         "a",
			BiosPath:         "b",
			VGABiosPath:      "c",
			FilesystemBaseFS: "d",
		},
		Callbacks: hub.Callbacks(),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	hub.Attach(ctrl)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- serve(ctx, listener, newServeMux(hub, ctrl), hub, logger)
	}()

	baseURL := "http://" + listener.Addr().String()

	require.NoError(t, ctrl.WaitReady(ctx))

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)

	var status statusResponse

	err = json.NewDecoder(resp.Body).Decode(&status)
	_ = resp.Body.Close()

	require.NoError(t, err)
	assert.Equal(t, statusResponse{Ready: true, Status: session.StatusInitialized}, status)

	conn, wsResp, err := websocket.DefaultDialer.Dial("ws://"+listener.Addr().String()+"/ws", nil)
	require.NoError(t, err)

	_ = wsResp.Body.Close()

	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Drain messages published before the shutdown.
	for err == nil {
		_, _, err = conn.ReadMessage()
	}

	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "error: %v", err)
}
