// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// Argument is a QEMU argument with or without value.
//
// Its name might be marked to be unique in [Arguments].
type Argument struct {
	name          string
	value         string
	nonUniqueName bool
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	s := "-" + a.name
	if a.value != "" {
		s += " " + a.value
	}

	return s
}

// Name returns the name of the [Argument].
func (a Argument) Name() string {
	return a.name
}

// Value returns the value of the [Argument].
func (a Argument) Value() string {
	return a.value
}

// Equal compares the [Argument]s.
//
// If the name is marked unique, only names are
// compared. Otherwise name and value are compared.
func (a Argument) Equal(other Argument) bool {
	if a.name != other.name {
		return false
	}

	if a.nonUniqueName {
		return a.value == other.value
	}

	return true
}

// UniqueArg returns a new [Argument] with the given name that is marked as
// unique and so can be used in [Arguments] only once. Multiple values are
// joined by comma as QEMU expects for option lists.
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns a new [Argument] with the given name that is not
// unique and so can be used in [Arguments] multiple times.
func RepeatableArg(name string, value ...string) Argument {
	return Argument{
		name:          name,
		value:         strings.Join(value, ","),
		nonUniqueName: true,
	}
}

// escapeOption escapes commas in values of QEMU option lists.
func escapeOption(value string) string {
	return strings.ReplaceAll(value, ",", ",,")
}

// Arguments is a list of [Argument]s.
type Arguments []Argument

// Add appends the given [Argument]s.
func (a *Arguments) Add(args ...Argument) {
	*a = append(*a, args...)
}

// Build compiles the [Arguments] into a slice of strings which can be used
// with [exec.Command].
//
// It returns an error if any name uniqueness constraint is violated.
func (a Arguments) Build() ([]string, error) {
	argStrings := make([]string, 0, 2*len(a))

	for idx, arg := range a {
		if i := slices.IndexFunc(a[:idx], arg.Equal); i != -1 {
			return nil, fmt.Errorf(
				"%w: %s, %s",
				ErrArgumentCollision,
				arg.String(),
				a[i].String(),
			)
		}

		argStrings = append(argStrings, "-"+arg.name)

		if arg.value != "" {
			argStrings = append(argStrings, arg.value)
		}
	}

	return argStrings, nil
}
