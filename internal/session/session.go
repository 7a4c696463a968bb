// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aibor/emuctl/internal/emulator"
	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/aibor/emuctl/internal/transport"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Fetcher fetches snapshots ready to be restored.
type Fetcher interface {
	Fetch(ctx context.Context, url string, policy snapshot.Compression) ([]byte, error)
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the logger of the [Session].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is the worker side state machine. It owns at most one
// [emulator.Machine] at a time.
type Session struct {
	endpoint *transport.Endpoint
	factory  emulator.Factory
	fetcher  Fetcher
	logger   *slog.Logger

	//nolint:containedctx
	ctx context.Context

	mu      sync.Mutex
	state   State
	machine emulator.Machine
	capture OutputBuffer
	window  OutputBuffer

	snapshots errgroup.Group
	busy      atomic.Bool
}

// New creates a new [Session] that communicates through the given worker
// side endpoint and creates machines with the given factory.
//
// If fetcher is nil, a [snapshot.Loader] with default client is used.
func New(
	endpoint *transport.Endpoint,
	factory emulator.Factory,
	fetcher Fetcher,
	opts ...Option,
) *Session {
	s := &Session{
		endpoint: endpoint,
		factory:  factory,
		fetcher:  fetcher,
		ctx:      context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.logger = s.logger.With(slog.String("session", uuid.Must(uuid.NewV7()).String()))

	if s.fetcher == nil {
		s.fetcher = snapshot.NewLoader(nil, s.logger)
	}

	s.snapshots.SetLimit(1)

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Ready && s.busy.Load() {
		return Busy
	}

	return s.state
}

// Captured returns the output captured since the last command or cache
// cleaning.
func (s *Session) Captured() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.capture.String()
}

// Run announces the worker and processes inbound messages until the context
// is done or the endpoint is closed. Before returning, it waits for a running
// snapshot operation and closes the machine.
//
// Run returns nil if the endpoint was closed and the context's error if it
// was canceled.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	defer func() {
		cancel()
		_ = s.snapshots.Wait()
		s.release()
	}()

	err := s.endpoint.Send(ctx, transport.WorkerReady())
	if err != nil {
		return s.runError(err)
	}

	s.logger.Debug("Worker ready")

	for {
		msg, err := s.endpoint.Receive(ctx)
		if err != nil {
			if errors.Is(err, &transport.Error{}) {
				s.logger.Warn("Invalid message", slog.Any("error", err))
				s.emitError(err)

				continue
			}

			return s.runError(err)
		}

		s.handle(msg)
	}
}

func (s *Session) runError(err error) error {
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}

	return err
}

func (s *Session) handle(msg transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Op: string(msg.Type), Value: r}
			s.logger.Error("Handler panicked", slog.Any("error", err))
			s.emitError(err)
		}
	}()

	s.logger.Debug("Handle message", slog.String("type", string(msg.Type)))

	var err error

	switch msg.Type {
	case transport.TypeInit:
		err = s.init(*msg.Config)
	case transport.TypeSendCommand:
		err = s.sendCommand(msg.Command)
	case transport.TypeRunTest:
		err = s.runTest(msg.TestType)
	case transport.TypeCleanCache:
		err = s.cleanCache()
	case transport.TypeLoadState:
		err = s.loadState(msg.StateURL, msg.Compression)
	case transport.TypeSaveState:
		err = s.saveState()
	default:
		err = &transport.Error{Type: msg.Type, Err: transport.ErrUnknownType}
	}

	if err != nil {
		s.logger.Warn("Request failed",
			slog.String("type", string(msg.Type)),
			slog.Any("error", err))
		s.emitError(err)
	}
}

func (s *Session) init(cfg emulator.Config) error {
	s.mu.Lock()

	if s.state != Uninitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}

	s.state = Initializing
	s.mu.Unlock()

	var machine emulator.Machine

	defer func() {
		if machine == nil {
			s.setState(Uninitialized)
		}
	}()

	machine, err := s.createMachine(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.machine = machine
	s.state = Ready
	s.capture.Reset()
	s.window.Reset()
	ctx := s.ctx
	s.mu.Unlock()

	s.emit(transport.Status(StatusInitialized, ""))

	err = machine.Start(ctx)
	if err != nil {
		s.release()
		return emulator.Wrap("start", err)
	}

	s.logger.Info("Machine started")

	return nil
}

func (s *Session) createMachine(cfg emulator.Config) (emulator.Machine, error) {
	params, err := cfg.BootParams()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	machine, err := s.factory(params)
	if err != nil {
		return nil, emulator.Wrap("create", err)
	}

	machine.OnReady(s.handleReady)
	machine.OnOutputByte(s.handleOutput)

	return machine, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}

// release closes and forgets the machine and returns to [Uninitialized].
func (s *Session) release() {
	s.mu.Lock()
	machine := s.machine
	s.machine = nil
	s.state = Uninitialized
	s.mu.Unlock()

	s.closeMachine(machine)
}

// discard releases the given machine unless it was replaced already.
func (s *Session) discard(machine emulator.Machine) {
	s.mu.Lock()
	if s.machine != machine {
		s.mu.Unlock()
		return
	}

	s.machine = nil
	s.state = Uninitialized
	s.mu.Unlock()

	s.closeMachine(machine)
}

func (s *Session) closeMachine(machine emulator.Machine) {
	if machine == nil {
		return
	}

	err := machine.Close()
	if err != nil {
		s.logger.Warn("Close machine", slog.Any("error", err))
	}
}

// machineError wraps the error of a machine call. A stopped machine is
// discarded, so the next init starts over.
func (s *Session) machineError(machine emulator.Machine, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, emulator.ErrStopped) {
		s.logger.Warn("Machine stopped", slog.String("op", op), slog.Any("error", err))
		s.discard(machine)
	}

	return emulator.Wrap(op, err)
}

// readyMachine returns the machine if the session is initialized.
func (s *Session) readyMachine() (emulator.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready || s.machine == nil {
		return nil, ErrNotInitialized
	}

	return s.machine, nil
}

func (s *Session) sendCommand(command string) error {
	machine, err := s.readyMachine()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.capture.Reset()
	s.mu.Unlock()

	return s.machineError(machine, "send serial", machine.SendSerial([]byte(command+"\n")))
}

func (s *Session) runTest(name string) error {
	_, err := s.readyMachine()
	if err != nil {
		return err
	}

	command, exists := Tests[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTest, name)
	}

	return s.sendCommand(command)
}

func (s *Session) cleanCache() error {
	_, err := s.readyMachine()
	if err != nil {
		return err
	}

	s.resetOutput()

	return nil
}

func (s *Session) resetOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capture.Reset()
	s.window.Reset()
}

func (s *Session) loadState(url, compression string) error {
	machine, err := s.readyMachine()
	if err != nil {
		return err
	}

	policy, err := snapshot.ParseCompression(compression)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return s.goSnapshot("load state", func(ctx context.Context) error {
		s.emit(transport.Status(StatusLoadingState, url))

		state, err := s.fetcher.Fetch(ctx, url, policy)
		if err != nil {
			return err //nolint:wrapcheck
		}

		s.emit(transport.Status(StatusRestoringState, ""))

		err = machine.RestoreState(ctx, state)
		if err != nil {
			return s.machineError(machine, "restore state", err)
		}

		s.resetOutput()

		s.emit(transport.Status(StatusStateLoaded, snapshot.Details(state)))
		s.logger.Info("State loaded", slog.String("url", url))

		return nil
	})
}

func (s *Session) saveState() error {
	machine, err := s.readyMachine()
	if err != nil {
		return err
	}

	return s.goSnapshot("save state", func(ctx context.Context) error {
		s.emit(transport.Status(StatusSavingState, ""))

		state, err := machine.SaveState(ctx)
		if err != nil {
			return s.machineError(machine, "save state", err)
		}

		s.emit(transport.StateSaved(state, snapshot.Details(state)))
		s.logger.Info("State saved", slog.Int("size", len(state)))

		return nil
	})
}

// goSnapshot runs fn asynchronously unless another snapshot operation is
// running. Errors and panics of fn are reported as error messages.
func (s *Session) goSnapshot(op string, fn func(context.Context) error) error {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	started := s.snapshots.TryGo(func() error {
		s.busy.Store(true)
		defer s.busy.Store(false)

		defer func() {
			if r := recover(); r != nil {
				err := &PanicError{Op: op, Value: r}
				s.logger.Error("Snapshot operation panicked", slog.Any("error", err))
				s.emitError(err)
			}
		}()

		err := fn(ctx)
		if err != nil {
			s.logger.Warn("Snapshot operation failed",
				slog.String("op", op),
				slog.Any("error", err))
			s.emitError(err)
		}

		return nil
	})
	if !started {
		return ErrBusy
	}

	return nil
}

func (s *Session) handleReady() {
	s.logger.Debug("Emulator ready")
	s.emit(transport.EmulatorReady())
}

func (s *Session) handleOutput(char byte) {
	var prompt bool

	s.mu.Lock()
	if char != '\r' {
		s.capture.Append(char)
		s.window.Append(char)

		if s.window.HasPromptSuffix() {
			s.window.Reset()

			prompt = true
		}
	}
	s.mu.Unlock()

	s.emit(transport.SerialOutput(string(rune(char))))

	if prompt {
		s.emit(transport.ShellPromptDetected())
	}
}

func (s *Session) emitError(err error) {
	s.emit(transport.ErrorMessage(err.Error()))
}

func (s *Session) emit(msg transport.Message) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	err := s.endpoint.Send(ctx, msg)
	if err != nil {
		s.logger.Debug("Drop message",
			slog.String("type", string(msg.Type)),
			slog.Any("error", err))
	}
}
