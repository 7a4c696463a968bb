// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu provides an [emulator.Machine] backed by a QEMU system
// emulation process. It expects the QEMU binary to be present on the system.
//
// The guest's first serial port is connected to a pair of FIFOs. The machine
// is controlled through a QMP socket, which is also used to capture and
// restore snapshots by migrating the machine into and from a file.
package qemu
