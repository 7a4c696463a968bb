// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

var (
	// ErrHelp is returned when help or the version is requested.
	ErrHelp = pflag.ErrHelp

	ErrReadBuildInfo       = errors.New("failed to read build info")
	ErrEmptyFilePath       = errors.New("file path must not be empty")
	ErrNotRegularFile      = errors.New("not a regular file")
	ErrUnknownBackend      = errors.New("unknown backend")
	ErrUnknownConfigFormat = errors.New("unknown config file format")
	ErrKernelRequired      = errors.New("bzimage_path required by the qemu backend")

	// ErrEmulator is returned if the worker reported an error while the
	// command waited for an event.
	ErrEmulator = errors.New("emulator error")
)

// ParseArgsError wraps errors that occur during argument parsing.
type ParseArgsError struct {
	err error
	msg string
}

func (e *ParseArgsError) Error() string {
	if e.err == nil {
		return e.msg
	}

	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *ParseArgsError) Is(other error) bool {
	_, ok := other.(*ParseArgsError)
	return ok
}

func (e *ParseArgsError) Unwrap() error {
	return e.err
}
