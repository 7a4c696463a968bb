// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/aibor/emuctl/internal/session"
	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/spf13/pflag"
)

const (
	name = "emuctl"

	memMin = 128
	memMax = 16384

	defaultTimeout = 2 * time.Minute

	usageMessage = `Usage of 'emuctl':
    emuctl --config FILE [flags...]

Boot and wait for the shell, then run a test command:
	emuctl --config emulator.yaml --test ls

Restore a snapshot and save a new one:
	emuctl --config emulator.yaml --state https://example.com/s.zst --save s.lz4

Expose the session to websocket clients:
	emuctl --config emulator.yaml --serve localhost:8080

All emuctl flags can also be provided via environment variable EMUCTL_ARGS
and via file ./.emuctl-args, with one argument per line.

Flags:
`
)

// Set on build.
var version = "dev"

// Backends a machine can be created with.
const (
	BackendQEMU     = "qemu"
	BackendScripted = "scripted"
)

type flags struct {
	ConfigPath      FilePath
	Backend         string
	StateURL        string
	Compression     snapshot.Compression
	Test            string
	SavePath        FilePath
	SaveCompression snapshot.Compression
	ServeAddr       string
	Timeout         time.Duration
	Memory          uint64
	NoKVM           bool
	Debug           bool
	Version         bool

	flagSet *pflag.FlagSet
	output  io.Writer
}

func newFlagSet(f *flags, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SortFlags = false

	fs.Usage = func() {
		fmt.Fprint(output, usageMessage)
		fs.PrintDefaults()
	}

	fs.VarP(
		&f.ConfigPath,
		"config",
		"c",
		"emulator configuration file (.yaml, .yml, .json, .jsonc)",
	)

	fs.StringVar(
		&f.Backend,
		"backend",
		BackendQEMU,
		"machine backend: qemu, scripted",
	)

	fs.StringVar(
		&f.StateURL,
		"state",
		"",
		"snapshot URL to restore once the emulator is ready (http, https, file)",
	)

	fs.Var(
		&f.Compression,
		"compression",
		"compression of the restored snapshot: auto, zstd, lz4, none",
	)

	fs.StringVar(
		&f.Test,
		"test",
		"",
		"test command to run once the shell is ready: ls, python",
	)

	fs.Var(
		&f.SavePath,
		"save",
		"save a snapshot to this file once the shell is ready",
	)

	fs.Var(
		&f.SaveCompression,
		"save-compression",
		"compression of the saved snapshot: zstd, lz4, none",
	)

	fs.StringVar(
		&f.ServeAddr,
		"serve",
		"",
		"serve the session to websocket clients on this address until"+
			" interrupted",
	)

	fs.DurationVar(
		&f.Timeout,
		"timeout",
		defaultTimeout,
		"time to wait for each emulator event",
	)

	fs.Var(
		&LimitedUintValue{Value: &f.Memory, Min: memMin, Max: memMax},
		"memory",
		"memory (in MiB) for the guest, overrides the config file",
	)

	fs.BoolVar(
		&f.NoKVM,
		"nokvm",
		false,
		"disable hardware support for the qemu backend",
	)

	fs.BoolVar(
		&f.Debug,
		"debug",
		false,
		"enable debug output",
	)

	fs.BoolVar(
		&f.Version,
		"version",
		false,
		"show version and exit",
	)

	return fs
}

// fail fails like pflag does. It prints the error first and then usage.
func (f *flags) fail(msg string, err error) error {
	err = &ParseArgsError{msg: msg, err: err}
	fmt.Fprintln(f.output, err.Error())

	f.flagSet.Usage()

	return err
}

func (f *flags) printVersionInformation() error {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return ErrReadBuildInfo
	}

	fmt.Fprintf(f.output, "%s: %s\n\n", name, version)
	fmt.Fprintln(f.output, buildInfo.String())

	return nil
}

func parseArgs(args []string, output io.Writer) (*flags, error) {
	f := &flags{output: output}
	f.flagSet = newFlagSet(f, output)

	err := f.flagSet.Parse(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelp
		}

		return nil, &ParseArgsError{msg: "flag parse", err: err}
	}

	// With version flag, just print the version and exit. Using [ErrHelp]
	// the main binary is supposed to return with a non error exit code.
	if f.Version {
		err := f.printVersionInformation()
		if err != nil {
			return nil, err
		}

		return nil, ErrHelp
	}

	if f.ConfigPath == "" {
		return nil, f.fail("no config given (use --config)", nil)
	}

	if f.flagSet.NArg() > 0 {
		return nil, f.fail("unexpected positional arguments", nil)
	}

	switch f.Backend {
	case BackendQEMU, BackendScripted:
	default:
		return nil, f.fail("backend", fmt.Errorf("%w: %s", ErrUnknownBackend, f.Backend))
	}

	if f.Test != "" {
		if _, exists := session.Tests[f.Test]; !exists {
			return nil, f.fail("test", fmt.Errorf("%w: %s", session.ErrUnknownTest, f.Test))
		}
	}

	return f, nil
}
