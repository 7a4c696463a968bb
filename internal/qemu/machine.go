// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/aibor/emuctl/internal/emulator"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const (
	defaultStartTimeout = 10 * time.Second
	defaultStopTimeout  = 5 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	serialBufferSize    = 4096
)

// Migration states reported by query-migrate.
const (
	migrationCompleted = "completed"
	migrationFailed    = "failed"
	migrationCancelled = "cancelled"
)

// Options configure QEMU backed machines.
type Options struct {
	// Directory the per machine working directory is created in. The
	// default directory for temporary files is used if empty.
	WorkDir string

	// Disable KVM even if available.
	NoKVM bool

	// Stderr of the QEMU process. If not set, [os.Stderr] is used.
	Stderr io.Writer

	// ExtraArgs are passed to every QEMU process.
	ExtraArgs []Argument

	// Time to wait for the QMP socket of a new process.
	StartTimeout time.Duration

	// Time to wait for the process to exit after it was asked to quit.
	StopTimeout time.Duration

	// Interval migration progress is polled in.
	PollInterval time.Duration

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}

	if o.StartTimeout == 0 {
		o.StartTimeout = defaultStartTimeout
	}

	if o.StopTimeout == 0 {
		o.StopTimeout = defaultStopTimeout
	}

	if o.PollInterval == 0 {
		o.PollInterval = defaultPollInterval
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// NewFactory returns an [emulator.Factory] for QEMU backed machines.
func NewFactory(opts Options) emulator.Factory {
	return func(params emulator.BootParams) (emulator.Machine, error) {
		return New(params, opts), nil
	}
}

// process is a single QEMU process. Restoring a snapshot replaces it.
type process struct {
	cmd    *exec.Cmd
	qmp    *QMP
	socket string
	exited chan struct{}
	err    error
}

// Machine is an [emulator.Machine] running a QEMU process.
type Machine struct {
	params emulator.BootParams
	opts   Options

	ready  emulator.Listeners[struct{}]
	output emulator.Listeners[byte]

	// opMu serializes lifecycle and snapshot operations.
	opMu sync.Mutex

	mu        sync.Mutex
	dir       string
	initramfs string
	serialIn  *os.File
	serialOut *os.File
	proc      *process
	started   bool
	closed    bool

	//nolint:containedctx
	ctx   context.Context
	group errgroup.Group
}

var _ emulator.Machine = (*Machine)(nil)

// New creates a new [Machine] for the given boot parameters.
func New(params emulator.BootParams, opts Options) *Machine {
	opts.setDefaults()

	return &Machine{
		params: params,
		opts:   opts,
	}
}

// OnReady implements [emulator.Machine].
func (m *Machine) OnReady(fn func()) {
	m.ready.Add(func(struct{}) { fn() })
}

// OnOutputByte implements [emulator.Machine].
func (m *Machine) OnOutputByte(fn func(byte)) {
	m.output.Add(fn)
}

// Start implements [emulator.Machine]. The QEMU process is bound to the
// given context.
func (m *Machine) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return emulator.ErrClosed
	case m.started:
		m.mu.Unlock()
		return emulator.ErrAlreadyStarted
	}

	m.started = true
	m.ctx = ctx
	m.mu.Unlock()

	err := m.prepare()
	if err != nil {
		m.cleanup()
		return err
	}

	proc, err := m.launch("")
	if err != nil {
		m.cleanup()
		return err
	}

	m.mu.Lock()
	m.proc = proc
	m.mu.Unlock()

	m.group.Go(m.readSerial)

	m.opts.Logger.Debug("QEMU started", slog.String("dir", m.dir))

	return nil
}

// prepare creates the working directory with the serial FIFOs and the
// initramfs.
func (m *Machine) prepare() error {
	dir, err := os.MkdirTemp(m.opts.WorkDir, "emuctl-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	m.mu.Lock()
	m.dir = dir
	m.mu.Unlock()

	initramfs, err := m.prepareInitramfs(dir)
	if err != nil {
		return err
	}

	serialIn, err := openFIFO(m.serialPath() + ".in")
	if err != nil {
		return err
	}

	serialOut, err := openFIFO(m.serialPath() + ".out")
	if err != nil {
		_ = serialIn.Close()
		return err
	}

	m.mu.Lock()
	m.initramfs = initramfs
	m.serialIn = serialIn
	m.serialOut = serialOut
	m.mu.Unlock()

	return nil
}

// prepareInitramfs returns the initramfs for the base filesystem. A
// directory is packed into a new archive. Any other file is used as is.
// Without a kernel there is nothing to hand the archive to, so none is
// prepared.
func (m *Machine) prepareInitramfs(dir string) (string, error) {
	if m.params.BzImagePath == "" {
		m.opts.Logger.Debug("No kernel, base filesystem not passed as initramfs")
		return "", nil
	}

	basefs := m.params.FilesystemBaseFS

	info, err := os.Stat(basefs)
	if err != nil {
		return "", &ArgumentError{msg: "filesystem base: " + err.Error()}
	}

	if !info.IsDir() {
		return basefs, nil
	}

	path := filepath.Join(dir, "initramfs.cpio")

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create initramfs: %w", err)
	}
	defer file.Close()

	err = WriteInitramfs(file, DirFS(basefs))
	if err != nil {
		return "", fmt.Errorf("write initramfs: %w", err)
	}

	return path, nil
}

// openFIFO creates a FIFO and opens it for reading and writing, so opening
// does not block and the FIFO survives QEMU restarts.
func openFIFO(path string) (*os.File, error) {
	err := unix.Mkfifo(path, 0o600)
	if err != nil {
		return nil, fmt.Errorf("mkfifo %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open fifo: %w", err)
	}

	return file, nil
}

func (m *Machine) serialPath() string {
	return filepath.Join(m.dir, "serial")
}

func (m *Machine) spec(incoming string) Spec {
	spec := SpecFor(m.params)
	spec.Initramfs = m.initramfs
	spec.SerialPath = m.serialPath()
	spec.QMPSocket = filepath.Join(m.dir, "qmp.sock")
	spec.NoKVM = m.opts.NoKVM || !KVMAvailable()
	spec.Incoming = incoming
	spec.ExtraArgs = m.opts.ExtraArgs

	return spec
}

// launch starts a new QEMU process and connects to its QMP socket.
func (m *Machine) launch(incoming string) (*process, error) {
	spec := m.spec(incoming)

	args, err := spec.Args().Build()
	if err != nil {
		return nil, err
	}

	_ = os.Remove(spec.QMPSocket)

	cmd := exec.CommandContext(m.ctx, spec.Executable, args...)
	cmd.Stderr = m.opts.Stderr

	m.opts.Logger.Debug("QEMU command", slog.String("command", cmd.String()))

	err = cmd.Start()
	if err != nil {
		return nil, &CommandError{Err: err}
	}

	proc := &process{
		cmd:    cmd,
		socket: spec.QMPSocket,
		exited: make(chan struct{}),
	}

	m.group.Go(func() error {
		proc.err = cmd.Wait()
		close(proc.exited)

		return nil
	})

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.StartTimeout)
	defer cancel()

	go func() {
		select {
		case <-proc.exited:
			cancel()
		case <-ctx.Done():
		}
	}()

	proc.qmp, err = DialQMP(ctx, spec.QMPSocket)
	if err != nil {
		_ = cmd.Process.Kill()
		<-proc.exited

		if proc.err != nil {
			err = errors.Join(err, proc.err)
		}

		return nil, &CommandError{Err: err}
	}

	return proc, nil
}

// readSerial emits the serial output until the FIFO is closed.
func (m *Machine) readSerial() error {
	m.ready.Emit(struct{}{})

	buf := make([]byte, serialBufferSize)

	for {
		n, err := m.serialOut.Read(buf)
		for _, char := range buf[:n] {
			m.output.Emit(char)
		}

		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return nil
			}

			return fmt.Errorf("read serial: %w", err)
		}
	}
}

func (m *Machine) running() (*process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return nil, emulator.ErrClosed
	case !m.started:
		return nil, emulator.ErrNotStarted
	case m.proc == nil:
		return nil, ErrNotRunning
	}

	select {
	case <-m.proc.exited:
		err := ErrNotRunning
		if m.proc.err != nil {
			err = fmt.Errorf("%w: %w", ErrNotRunning, m.proc.err)
		}

		return nil, &CommandError{Err: err}
	default:
		return m.proc, nil
	}
}

// SendSerial implements [emulator.Machine].
func (m *Machine) SendSerial(data []byte) error {
	_, err := m.running()
	if err != nil {
		return err
	}

	_, err = m.serialIn.Write(data)
	if err != nil {
		return fmt.Errorf("write serial: %w", err)
	}

	return nil
}

// SaveState implements [emulator.Machine]. The machine is paused while its
// state is migrated into a file.
func (m *Machine) SaveState(ctx context.Context) ([]byte, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	proc, err := m.running()
	if err != nil {
		return nil, err
	}

	qmp, err := m.control(ctx, proc)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(m.dir, "save.state")
	_ = os.Remove(path)

	err = qmp.Execute(ctx, "stop", nil, nil)
	if err != nil {
		return nil, err
	}

	defer m.resume(proc)

	err = qmp.Execute(ctx, "migrate", map[string]string{
		"uri": "exec:cat > " + shellQuote(path),
	}, nil)
	if err != nil {
		return nil, err
	}

	err = m.awaitMigration(ctx, qmp)
	if err != nil {
		return nil, err
	}

	state, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	return state, nil
}

// resume continues the paused machine. It does not use the context of the
// operation that paused it, as that might be canceled already.
func (m *Machine) resume(proc *process) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StopTimeout)
	defer cancel()

	qmp, err := m.control(ctx, proc)
	if err == nil {
		err = qmp.Execute(ctx, "cont", nil, nil)
	}

	if err != nil {
		m.opts.Logger.Warn("Resume after save", slog.Any("error", err))
	}
}

// control returns the QMP client of the process. A broken client is
// replaced by a new connection. Must be called with m.opMu held.
func (m *Machine) control(ctx context.Context, proc *process) (*QMP, error) {
	if !proc.qmp.Broken() {
		return proc.qmp, nil
	}

	_ = proc.qmp.Close()

	m.opts.Logger.Debug("Reconnect QMP", slog.String("socket", proc.socket))

	qmp, err := DialQMP(ctx, proc.socket)
	if err != nil {
		return nil, &CommandError{Err: err}
	}

	proc.qmp = qmp

	return qmp, nil
}

func (m *Machine) awaitMigration(ctx context.Context, qmp *QMP) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		var info struct {
			Status    string `json:"status"`
			ErrorDesc string `json:"error-desc"`
		}

		err := qmp.Execute(ctx, "query-migrate", nil, &info)
		if err != nil {
			return err
		}

		switch info.Status {
		case migrationCompleted:
			return nil
		case migrationFailed, migrationCancelled:
			return fmt.Errorf("%w: %s %s", ErrMigrationFailed, info.Status, info.ErrorDesc)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RestoreState implements [emulator.Machine]. The QEMU process is replaced
// by a new one that migrates the state in from a file. If the new process
// fails, the machine is stopped and the error matches [ErrNotRunning].
func (m *Machine) RestoreState(ctx context.Context, state []byte) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	proc, err := m.running()
	if err != nil {
		return err
	}

	path := filepath.Join(m.dir, "restore.state")

	err = os.WriteFile(path, state, 0o600)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	m.stop(proc)

	proc, err = m.launch(path)
	if err != nil {
		m.mu.Lock()
		m.proc = nil
		m.mu.Unlock()

		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}

	m.mu.Lock()
	m.proc = proc
	m.mu.Unlock()

	err = m.awaitIncoming(ctx, proc)
	if err != nil {
		select {
		case <-proc.exited:
			return fmt.Errorf("%w: %w", ErrNotRunning, err)
		default:
			return err
		}
	}

	return nil
}

func (m *Machine) awaitIncoming(ctx context.Context, proc *process) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		var info struct {
			Status  string `json:"status"`
			Running bool   `json:"running"`
		}

		err := proc.qmp.Execute(ctx, "query-status", nil, &info)
		if err != nil {
			return err
		}

		switch {
		case info.Running:
			return nil
		case info.Status != "inmigrate":
			return proc.qmp.Execute(ctx, "cont", nil, nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// stop asks the process to quit and kills it if it does not exit in time.
func (m *Machine) stop(proc *process) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StopTimeout)
	defer cancel()

	select {
	case <-proc.exited:
	default:
		// The connection might be closed before the reply is received.
		qmp, err := m.control(ctx, proc)
		if err == nil {
			_ = qmp.Execute(ctx, "quit", nil, nil)
		}
	}

	select {
	case <-proc.exited:
	case <-ctx.Done():
		_ = proc.cmd.Process.Kill()
		<-proc.exited
	}

	_ = proc.qmp.Close()
}

// cleanup closes the FIFOs and removes the working directory.
func (m *Machine) cleanup() {
	m.mu.Lock()
	files := []*os.File{m.serialIn, m.serialOut}
	dir := m.dir
	m.mu.Unlock()

	for _, file := range files {
		if file != nil {
			_ = file.Close()
		}
	}

	_ = m.group.Wait()

	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}

// Close implements [emulator.Machine]. It stops the QEMU process and waits
// for all goroutines to finish.
func (m *Machine) Close() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}

	m.closed = true
	proc := m.proc
	m.mu.Unlock()

	if proc != nil {
		m.stop(proc)
	}

	m.cleanup()

	return nil
}
