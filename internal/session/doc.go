// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session implements the worker side of the emulator control
// channel.
//
// A [Session] exclusively owns one [emulator.Machine]. It processes the
// messages received on its [transport.Endpoint] one at a time and reports
// everything that happens as messages back to the supervisor. Failures never
// end the session. They are reported as error messages instead.
package session
