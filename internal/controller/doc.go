// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package controller implements the supervisor side of the emulator control
// channel.
//
// A [Controller] owns one worker. It translates method calls into messages
// and republishes the worker's messages as callbacks and derived state.
package controller
