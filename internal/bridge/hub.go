// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aibor/emuctl/internal/controller"
	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/aibor/emuctl/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	writeTimeout     = 5 * time.Second
	requestTimeout   = 5 * time.Second
)

// Dispatcher executes supervisor requests. It is implemented by
// [controller.Controller].
type Dispatcher interface {
	SendCommand(ctx context.Context, command string) error
	RunTest(ctx context.Context, name string) error
	SaveState(ctx context.Context) error
	LoadState(ctx context.Context, url string, compression snapshot.Compression) error
	CleanCache(ctx context.Context) error
}

var _ Dispatcher = (*controller.Controller)(nil)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		if err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout),
	)
}

// Hub fans out worker messages to websocket clients and dispatches their
// requests.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	clients    map[*client]struct{}
	dispatcher Dispatcher
}

var _ http.Handler = (*Hub)(nil)

// NewHub creates a new [Hub]. If checkOrigin is nil, only same origin
// requests are accepted.
func NewHub(logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[*client]struct{}),
	}
}

// Attach sets the dispatcher requests are sent to.
func (h *Hub) Attach(dispatcher Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dispatcher = dispatcher
}

// Callbacks returns [controller.Callbacks] that publish every event.
func (h *Hub) Callbacks() controller.Callbacks {
	return controller.Callbacks{
		OnStatusChange: func(status, details string) {
			h.Publish(transport.Status(status, details))
		},
		OnError: func(message string) {
			h.Publish(transport.ErrorMessage(message))
		},
		OnSerialOutput: func(char string) {
			h.Publish(transport.SerialOutput(char))
		},
		OnShellPromptDetected: func() {
			h.Publish(transport.ShellPromptDetected())
		},
		OnEmulatorReady: func() {
			h.Publish(transport.EmulatorReady())
		},
		OnStateSaved: func(state []byte, details string) {
			h.Publish(transport.StateSaved(state, details))
		},
	}
}

// Publish sends the message to all connected clients. Clients that can not
// keep up are disconnected.
func (h *Hub) Publish(msg transport.Message) {
	data, err := transport.EncodeJSON(msg)
	if err != nil {
		h.logger.Warn("Encode message", slog.Any("error", err))
		return
	}

	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Client too slow, disconnecting",
			slog.String("remote", c.conn.RemoteAddr().String()))
		h.removeClient(c)
	}
}

// sendTo sends the message to a single client if it is still connected.
func (h *Hub) sendTo(c *client, msg transport.Message) {
	data, err := transport.EncodeJSON(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, exists := h.clients[c]; !exists {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) addClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()

	return c
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[c]; exists {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket connection and serves the
// client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Upgrade failed", slog.Any("error", err))
		return
	}

	c := h.addClient(conn)
	defer h.removeClient(c)

	h.logger.Debug("Client connected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.Int("clients", h.ClientCount()))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("Client disconnected", slog.Any("error", err))
			return
		}

		err = h.handle(r.Context(), data)
		if err != nil {
			h.sendTo(c, transport.ErrorMessage(err.Error()))
		}
	}
}

func (h *Hub) handle(ctx context.Context, data []byte) error {
	msg, err := transport.DecodeJSON(transport.ToWorker, data)
	if err != nil {
		return err //nolint:wrapcheck
	}

	h.mu.RLock()
	dispatcher := h.dispatcher
	h.mu.RUnlock()

	if dispatcher == nil {
		return ErrNoDispatcher
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch msg.Type {
	case transport.TypeInit:
		return ErrInitRejected
	case transport.TypeSendCommand:
		return dispatcher.SendCommand(ctx, msg.Command) //nolint:wrapcheck
	case transport.TypeRunTest:
		return dispatcher.RunTest(ctx, msg.TestType) //nolint:wrapcheck
	case transport.TypeSaveState:
		return dispatcher.SaveState(ctx) //nolint:wrapcheck
	case transport.TypeLoadState:
		err := checkStateURL(msg.StateURL)
		if err != nil {
			return err
		}

		compression := snapshot.Compression(msg.Compression)

		return dispatcher.LoadState(ctx, msg.StateURL, compression) //nolint:wrapcheck
	case transport.TypeCleanCache:
		return dispatcher.CleanCache(ctx) //nolint:wrapcheck
	default:
		return &transport.Error{Type: msg.Type, Err: transport.ErrUnknownType}
	}
}

// checkStateURL only lets remote state URLs through. Other schemes, like
// file URLs, are for the host operator only.
func checkStateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStateURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q", ErrStateURL, parsed.Scheme)
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
