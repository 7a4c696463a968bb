// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/aibor/emuctl/internal/bridge"
	"github.com/aibor/emuctl/internal/controller"
	"github.com/aibor/emuctl/internal/emulator"
	"github.com/aibor/emuctl/internal/qemu"
	"github.com/aibor/emuctl/internal/session"
	"github.com/aibor/emuctl/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

const localArgsFile = ".emuctl-args"

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func newFactory(flags *flags, cfg IO, logger *slog.Logger) (emulator.Factory, error) {
	switch flags.Backend {
	case BackendScripted:
		return emulator.NewScripted, nil
	case BackendQEMU:
		return qemu.NewFactory(qemu.Options{
			NoKVM:  flags.NoKVM,
			Stderr: cfg.Stderr,
			Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, flags.Backend)
	}
}

func loadConfig(flags *flags) (emulator.Config, error) {
	emuCfg, err := ReadConfig(string(flags.ConfigPath))
	if err != nil {
		return emulator.Config{}, err
	}

	if flags.Memory > 0 {
		emuCfg.MemorySize = flags.Memory << 20
	}

	// The scripted backend does not touch any of the files.
	if flags.Backend == BackendQEMU {
		err := Validate(emuCfg)
		if err != nil {
			return emulator.Config{}, fmt.Errorf("validate: %w", err)
		}
	}

	return emuCfg, nil
}

func run(ctx context.Context, flags *flags, cfg IO, logger *slog.Logger) error {
	emuCfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	factory, err := newFactory(flags, cfg, logger)
	if err != nil {
		return err
	}

	var listener net.Listener

	// Listen before the session is started, so address errors fail early.
	if flags.ServeAddr != "" {
		listener, err = net.Listen("tcp", flags.ServeAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		defer listener.Close()
	}

	return runSession(ctx, flags, emuCfg, factory, listener, cfg, logger)
}

func runSession(
	ctx context.Context,
	flags *flags,
	emuCfg emulator.Config,
	factory emulator.Factory,
	listener net.Listener,
	cfg IO,
	logger *slog.Logger,
) error {
	events := newEvents()
	callbacks := []controller.Callbacks{events.callbacks()}

	var hub *bridge.Hub

	if listener != nil {
		hub = bridge.NewHub(logger, nil)
		defer hub.Close()

		callbacks = append(callbacks, hub.Callbacks())
	}

	worker := session.Spawn(
		ctx,
		factory,
		// Websocket clients can not reach file URLs, the hub rejects them.
		snapshot.NewLoader(nil, logger, snapshot.WithFileURLs()),
		session.WithLogger(logger),
	)

	ctrl, err := controller.New(ctx, worker, controller.Options{
		Config:      emuCfg,
		StateURL:    flags.StateURL,
		Compression: flags.Compression,
		Callbacks:   joinCallbacks(callbacks...),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer ctrl.Close()

	group, ctx := errgroup.WithContext(ctx)

	if hub != nil {
		hub.Attach(ctrl)

		group.Go(func() error {
			return serve(ctx, listener, newServeMux(hub, ctrl), hub, logger)
		})
	}

	group.Go(func() error {
		err := drive(ctx, flags, ctrl, events, cfg.Stdout, logger)
		if err != nil || hub == nil {
			return err
		}

		// Keep serving until interrupted.
		select {
		case <-ctx.Done():
			return nil
		case <-ctrl.Done():
			return controller.ErrClosed
		}
	})

	return group.Wait() //nolint:wrapcheck
}

// drive runs the requested operations one after the other.
func drive(
	ctx context.Context,
	flags *flags,
	ctrl *controller.Controller,
	events *events,
	stdout io.Writer,
	logger *slog.Logger,
) error {
	err := waitReady(ctx, flags, ctrl, events)
	if err != nil {
		return err
	}

	logger.Debug("Emulator ready", slog.String("status", ctrl.Status()))

	if flags.Test != "" {
		err := runTest(ctx, flags, ctrl, events, stdout)
		if err != nil {
			return err
		}
	}

	if flags.SavePath != "" {
		err := saveState(ctx, flags, ctrl, events, logger)
		if err != nil {
			return err
		}
	}

	return nil
}

func (f *flags) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, f.Timeout)
}

func waitReady(
	ctx context.Context,
	flags *flags,
	ctrl *controller.Controller,
	events *events,
) error {
	ctx, cancel := flags.waitContext(ctx)
	defer cancel()

	// A restored machine does not print a new prompt, so wait for the restore
	// instead.
	if flags.StateURL != "" {
		_, err := await(ctx, ctrl, events, events.statuses, func(status string) bool {
			return status == session.StatusStateLoaded
		})
		if err != nil {
			return fmt.Errorf("restore state: %w", err)
		}

		return nil
	}

	_, err := await(ctx, ctrl, events, events.prompts, nil)
	if err != nil {
		return fmt.Errorf("wait for shell: %w", err)
	}

	return nil
}

func runTest(
	ctx context.Context,
	flags *flags,
	ctrl *controller.Controller,
	events *events,
	stdout io.Writer,
) error {
	ctx, cancel := flags.waitContext(ctx)
	defer cancel()

	drain(events.prompts)

	err := ctrl.RunTest(ctx, flags.Test)
	if err != nil {
		return fmt.Errorf("run test: %w", err)
	}

	_, err = await(ctx, ctrl, events, events.prompts, nil)
	if err != nil {
		return fmt.Errorf("run test %s: %w", flags.Test, err)
	}

	fmt.Fprintln(stdout, ctrl.Output())

	return nil
}

func saveState(
	ctx context.Context,
	flags *flags,
	ctrl *controller.Controller,
	events *events,
	logger *slog.Logger,
) error {
	ctx, cancel := flags.waitContext(ctx)
	defer cancel()

	err := ctrl.SaveState(ctx)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	state, err := await(ctx, ctrl, events, events.states, nil)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	data, err := snapshot.Compress(state.data, flags.SaveCompression)
	if err != nil {
		return fmt.Errorf("compress state: %w", err)
	}

	path := string(flags.SavePath)

	err = os.WriteFile(path, data, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	logger.Info("Saved state",
		slog.String("path", path),
		slog.String("details", state.details),
		slog.Int("compressed", len(data)))

	return nil
}

func handleParseArgsError(err error, logger *slog.Logger) int {
	// [ErrHelp] is returned when help is requested. So exit without error
	// in this case.
	if errors.Is(err, ErrHelp) {
		return 0
	}

	// Parsing already prints errors, so we just exit without an error.
	if !errors.Is(err, &ParseArgsError{}) {
		logger.Error(err.Error())
	}

	return -1
}

func handleRunError(err error, logger *slog.Logger) int {
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("emulator did not respond in time, maybe increase --timeout")
	}

	logger.Error(err.Error())

	return -1
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	logger := newLogger(cfg.Stderr, false)

	args, err := MergedArgs(args, os.DirFS("."), localArgsFile)
	if err != nil {
		return handleParseArgsError(err, logger)
	}

	flags, err := parseArgs(args, cfg.Stderr)
	if err != nil {
		return handleParseArgsError(err, logger)
	}

	logger = newLogger(cfg.Stderr, flags.Debug)

	err = run(ctx, flags, cfg, logger)
	if err != nil {
		return handleRunError(err, logger)
	}

	return 0
}
