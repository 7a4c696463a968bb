// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport provides the message protocol between the supervisor and
// the worker hosting the emulator.
//
// The protocol is a closed set of [Message] variants discriminated by their
// [Type]. Messages carry plain data only. They are encoded on send and decoded
// and validated on receive, so no value is shared between the two sides. An
// unknown or malformed message is reported as [Error] by the receiving side
// instead of being dropped.
//
// [Pipe] connects two [Endpoint]s in-process with one ordered channel per
// direction.
package transport
