// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ScriptedPrompt is the shell prompt printed by [Scripted].
const ScriptedPrompt = "localhost:~# "

const (
	scriptedMagic   = "emuctl-scripted"
	scriptedVersion = 1
	scriptedQueue   = 64
)

const pythonUsage = "usage: python3 [option] ... [-c cmd | -m mod | file | -] [arg] ...\r\n" +
	"Options (and corresponding environment variables):\r\n" +
	"-c cmd : program passed in as string (terminates option list)\r\n" +
	"-h     : print this help message and exit (also -? or --help)\r\n" +
	"-V     : print the Python version number and exit (also --version)\r\n"

// scriptedState is the part of a [Scripted] machine that is captured by
// snapshots.
type scriptedState struct {
	Magic   string   `cbor:"magic"`
	Version int      `cbor:"version"`
	Files   []string `cbor:"files"`
}

// Scripted is an in-process [Machine] that behaves like a minimal serial
// console shell.
//
// It echoes input, understands a handful of commands (ls, touch, rm, echo,
// python3 --help) and prints [ScriptedPrompt] after every command. Its state,
// the list of files, is captured by snapshots.
type Scripted struct {
	ready  Listeners[struct{}]
	output Listeners[byte]

	mu      sync.Mutex
	files   []string
	line    []byte
	started bool

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Machine = (*Scripted)(nil)

// NewScripted is a [Factory] for [Scripted] machines.
func NewScripted(_ BootParams) (Machine, error) {
	return &Scripted{
		files: []string{"bin", "etc", "root"},
		queue: make(chan []byte, scriptedQueue),
		done:  make(chan struct{}),
	}, nil
}

// OnReady implements [Machine].
func (m *Scripted) OnReady(fn func()) {
	m.ready.Add(func(struct{}) { fn() })
}

// OnOutputByte implements [Machine].
func (m *Scripted) OnOutputByte(fn func(byte)) {
	m.output.Add(fn)
}

// Start implements [Machine]. It prints a boot banner followed by the prompt.
func (m *Scripted) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	if m.started {
		return ErrAlreadyStarted
	}

	m.started = true

	m.wg.Add(1)

	go m.run()

	return m.enqueue([]byte("Booting scripted machine\r\n\r\n" + ScriptedPrompt))
}

func (m *Scripted) run() {
	defer m.wg.Done()

	m.ready.Emit(struct{}{})

	for {
		select {
		case <-m.done:
			return
		case chunk := <-m.queue:
			for _, b := range chunk {
				m.output.Emit(b)
			}
		}
	}
}

// enqueue must be called with mu held.
func (m *Scripted) enqueue(data []byte) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case <-m.done:
		return ErrClosed
	case m.queue <- data:
		return nil
	}
}

// SendSerial implements [Machine]. Input is echoed and executed line by line.
func (m *Scripted) SendSerial(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNotStarted
	}

	var out []byte

	for _, b := range data {
		switch b {
		case '\r':
			continue
		case '\n':
			out = append(out, '\r', '\n')
			out = append(out, m.execute(string(m.line))...)
			out = append(out, ScriptedPrompt...)
			m.line = m.line[:0]
		default:
			m.line = append(m.line, b)
			out = append(out, b)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return m.enqueue(out)
}

// execute must be called with mu held.
func (m *Scripted) execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	args := fields[1:]

	switch fields[0] {
	case "ls":
		return m.list(slices.Contains(args, "-la") || slices.Contains(args, "-l"))
	case "touch":
		for _, name := range args {
			if !slices.Contains(m.files, name) {
				m.files = append(m.files, name)
			}
		}

		slices.Sort(m.files)

		return ""
	case "rm":
		m.files = slices.DeleteFunc(m.files, func(name string) bool {
			return slices.Contains(args, name)
		})

		return ""
	case "echo":
		return strings.Join(args, " ") + "\r\n"
	case "python3", "python":
		if slices.Contains(args, "--help") || slices.Contains(args, "-h") {
			return pythonUsage
		}

		return "python3: interactive mode not supported\r\n"
	default:
		return "sh: " + fields[0] + ": not found\r\n"
	}
}

// list must be called with mu held.
func (m *Scripted) list(long bool) string {
	var builder strings.Builder

	if long {
		builder.WriteString("total " + strconv.Itoa(len(m.files)) + "\r\n")
	}

	for _, name := range m.files {
		if long {
			builder.WriteString("-rw-r--r--    1 root     root    0 ")
		}

		builder.WriteString(name + "\r\n")
	}

	return builder.String()
}

// SaveState implements [Machine].
func (m *Scripted) SaveState(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil, ErrNotStarted
	}

	return cbor.Marshal(scriptedState{
		Magic:   scriptedMagic,
		Version: scriptedVersion,
		Files:   slices.Clone(m.files),
	})
}

// RestoreState implements [Machine]. Pending input is discarded.
func (m *Scripted) RestoreState(_ context.Context, state []byte) error {
	var snapshot scriptedState

	err := cbor.Unmarshal(state, &snapshot)
	if err != nil || snapshot.Magic != scriptedMagic {
		return ErrInvalidState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNotStarted
	}

	m.files = snapshot.Files
	m.line = m.line[:0]

	return nil
}

// Close implements [Machine]. It waits for the output goroutine to finish.
func (m *Scripted) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()

	return nil
}
