// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package snapshot

import (
	"encoding/hex"
	"strconv"

	"github.com/zeebo/blake3"
)

// Digest returns the content reference of the snapshot in the form
// "blake3:<hex>".
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// Details returns a short description of the snapshot with its size and
// digest.
func Details(data []byte) string {
	return "size=" + strconv.Itoa(len(data)) + " " + Digest(data)
}
