// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package snapshot fetches machine snapshots and turns them into bytes ready
// to be restored.
//
// Snapshots are fetched whole over HTTP(S) or from file URLs. Whether they
// are decompressed is decided by an explicit [Compression] policy passed by
// the caller. [CompressionAuto] sniffs the zstd and lz4 frame magic numbers.
package snapshot
