// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"bytes"
)

const (
	// OutputLimit is the length above which an [OutputBuffer] is truncated.
	OutputLimit = 10000

	// OutputKeep is the number of trailing units an [OutputBuffer] keeps
	// when it is truncated.
	OutputKeep = 1000
)

// PromptSuffixes are the trailing sequences that indicate a shell waits for
// input.
var PromptSuffixes = []string{"$", "#", "~%"}

// OutputBuffer accumulates serial output. Once its length exceeds
// [OutputLimit], it is truncated to its trailing [OutputKeep] units.
//
// The zero value is ready to use. It is not safe for concurrent use.
type OutputBuffer struct {
	data []byte
}

// Append appends a single byte.
func (b *OutputBuffer) Append(c byte) {
	b.data = append(b.data, c)

	if len(b.data) > OutputLimit {
		n := copy(b.data, b.data[len(b.data)-OutputKeep:])
		b.data = b.data[:n]
	}
}

// Reset empties the buffer.
func (b *OutputBuffer) Reset() {
	b.data = b.data[:0]
}

// String returns the buffered output.
func (b *OutputBuffer) String() string {
	return string(b.data)
}

// HasPromptSuffix reports whether the buffer, with trailing whitespace
// removed, ends in one of the [PromptSuffixes].
func (b *OutputBuffer) HasPromptSuffix() bool {
	trimmed := bytes.TrimRight(b.data, " \t\r\n\v\f")

	for _, suffix := range PromptSuffixes {
		if bytes.HasSuffix(trimmed, []byte(suffix)) {
			return true
		}
	}

	return false
}
