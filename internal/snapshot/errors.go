// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCompression is returned for unsupported compression names.
	ErrUnknownCompression = errors.New("unknown compression")

	// ErrEmptySnapshot is returned if a fetched snapshot has no content.
	ErrEmptySnapshot = errors.New("empty snapshot")

	// ErrUnsupportedScheme is returned for URLs a [Loader] does not accept.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// FetchError indicates the snapshot could not be fetched. Either StatusCode
// is set for a non success response, or Err for a failed request.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the [error] interface.
func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}

	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Is implements the [errors.Is] interface.
func (*FetchError) Is(other error) bool {
	_, ok := other.(*FetchError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// DecompressionError indicates the snapshot could not be decompressed,
// either because the payload is corrupt or the decoder could not be
// initialized.
type DecompressionError struct {
	Codec Compression
	Err   error
}

// Error implements the [error] interface.
func (e *DecompressionError) Error() string {
	return fmt.Sprintf("decompress %s: %v", e.Codec, e.Err)
}

// Is implements the [errors.Is] interface.
func (*DecompressionError) Is(other error) bool {
	_, ok := other.(*DecompressionError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *DecompressionError) Unwrap() error {
	return e.Err
}
