// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bridge exposes a single session to browser clients via
// websockets.
//
// Worker messages are published to all connected clients in their JSON form.
// Clients send supervisor requests in the same JSON form. The init request is
// reserved to the host application.
package bridge
