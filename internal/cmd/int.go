// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

var ErrValueOutOfRange = errors.New("value is outside of range")

// LimitedUintValue is a [pflag.Value] for unsigned integers within a range.
// Zero limits are not enforced.
type LimitedUintValue struct {
	Value    *uint64
	Min, Max uint64
}

var _ pflag.Value = (*LimitedUintValue)(nil)

func (u *LimitedUintValue) String() string {
	if u.Value == nil {
		return "0"
	}

	return strconv.FormatUint(*u.Value, 10)
}

func (u *LimitedUintValue) Set(s string) error {
	value, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if u.Min > 0 && value < u.Min {
		return fmt.Errorf("%d < %d: %w", value, u.Min, ErrValueOutOfRange)
	}

	if u.Max > 0 && value > u.Max {
		return fmt.Errorf("%d > %d: %w", value, u.Max, ErrValueOutOfRange)
	}

	*u.Value = value

	return nil
}

func (*LimitedUintValue) Type() string {
	return "uint"
}
