// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aibor/emuctl/internal/bridge"
	"github.com/aibor/emuctl/internal/controller"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type statusResponse struct {
	Ready  bool   `json:"ready"`
	Status string `json:"status"`
}

func newServeMux(hub *bridge.Hub, ctrl *controller.Controller) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", hub)
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		_ = json.NewEncoder(w).Encode(statusResponse{
			Ready:  ctrl.IsReady(),
			Status: ctrl.Status(),
		})
	})

	return mux
}

// serve serves the handler on the listener until the context is done. The
// hub is closed on shutdown, so websocket clients are disconnected.
func serve(
	ctx context.Context,
	listener net.Listener,
	handler http.Handler,
	hub *bridge.Hub,
	logger *slog.Logger,
) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	server.RegisterOnShutdown(hub.Close)

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.Serve(listener)
	}()

	logger.Info("Serving websocket bridge",
		slog.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	err = <-errCh
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}
