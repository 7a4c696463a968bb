// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const envArgsName = "EMUCTL_ARGS"

// EnvArgs returns emuctl arguments from the environment.
func EnvArgs() []string {
	return strings.Fields(os.Getenv(envArgsName))
}

// LocalConfigArgs returns emuctl arguments from a local args file.
//
// The file's format is one argument per line. Environment variables may be used
// and are expanded with [os.ExpandEnv].
func LocalConfigArgs(fsys fs.FS, file string) ([]string, error) {
	conf, err := fs.ReadFile(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read file: %w", err)
	}

	args := []string{}

	expandedConf := os.ExpandEnv(string(conf))
	for line := range strings.SplitSeq(expandedConf, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			args = append(args, line)
		}
	}

	return args, nil
}

// MergedArgs returns the arguments from the local args file, the environment
// and the given args in this order. Later flags take precedence.
func MergedArgs(args []string, fsys fs.FS, file string) ([]string, error) {
	localArgs, err := LocalConfigArgs(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("local args: %w", err)
	}

	merged := make([]string, 0, len(localArgs)+len(args))
	merged = append(merged, localArgs...)
	merged = append(merged, EnvArgs()...)
	merged = append(merged, args...)

	return merged, nil
}
