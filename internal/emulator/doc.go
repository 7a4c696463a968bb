// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package emulator defines the boundary between the control channel and the
// emulator engine.
//
// The engine is consumed through the narrow [Machine] capability: construct,
// start, send serial bytes, listen for output bytes and readiness, save and
// restore a snapshot. Boot parameters are described by [Config], which is
// validated and completed with defaults by [Config.BootParams].
//
// [Scripted] is an in-process [Machine] that emulates a tiny interactive
// shell. It is used for tests and for running the control channel without an
// engine installed.
package emulator
