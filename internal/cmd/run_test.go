// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aibor/emuctl/internal/cmd"
	"github.com/aibor/emuctl/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scriptedConfig = `wasm_path: v86.wasm
bios_path: seabios.bin
vgabios_path: vgabios.bin
filesystem_basefs: rootfs.json
filesystem_baseurl: https://example.com/rootfs/
`

type result struct {
	exitCode int
	stdout   string
	stderr   string
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func run(t *testing.T, args ...string) result {
	t.Helper()

	t.Setenv("EMUCTL_ARGS", "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer

	exitCode := cmd.Run(ctx, args, cmd.IO{
		Stdin:  &bytes.Buffer{},
		Stdout: &stdout,
		Stderr: &stderr,
	})

	return result{
		exitCode: exitCode,
		stdout:   stdout.String(),
		stderr:   stderr.String(),
	}
}

func TestRun_Help(t *testing.T) {
	actual := run(t, "--help")

	assert.Equal(t, 0, actual.exitCode)
	assert.Contains(t, actual.stderr, "Usage of 'emuctl'")
}

func TestRun_ArgumentErrors(t *testing.T) {
	config := writeConfig(t, "emu.yaml", scriptedConfig)

	tests := []struct {
		name string
		args []string
	}{
		{
			name: "no config",
			args: []string{"--backend=scripted"},
		},
		{
			name: "unknown backend",
			args: []string{"--config", config, "--backend=bochs"},
		},
		{
			name: "unknown test",
			args: []string{"--config", config, "--test=uname"},
		},
		{
			name: "missing config file",
			args: []string{"--config", config + ".missing", "--backend=scripted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := run(t, tt.args...)

			assert.Equal(t, -1, actual.exitCode)
			assert.Empty(t, actual.stdout)
			assert.NotEmpty(t, actual.stderr)
		})
	}
}

func TestRun_QEMUValidation(t *testing.T) {
	config := writeConfig(t, "emu.json", `{
		// not installed anywhere
		"wasm_path": "emuctl-test-no-such-qemu",
		"bios_path": "bios.bin",
		"vgabios_path": "vgabios.bin",
		"filesystem_basefs": "rootfs",
	}`)

	actual := run(t, "--config", config, "--backend=qemu")

	assert.Equal(t, -1, actual.exitCode)
	assert.Contains(t, actual.stderr, "emulator binary")
}

func TestRun_Test(t *testing.T) {
	config := writeConfig(t, "emu.yaml", scriptedConfig)

	tests := []struct {
		name     string
		test     string
		expected string
	}{
		{
			name:     "ls",
			test:     "ls",
			expected: "total 3",
		},
		{
			name:     "python",
			test:     "python",
			expected: "usage: python3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := run(t, "--config", config, "--backend=scripted", "--test", tt.test)

			require.Equal(t, 0, actual.exitCode, actual.stderr)
			assert.Contains(t, actual.stdout, tt.expected)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	config := writeConfig(t, "emu.yaml", "wasm_path: v86.wasm\n")

	actual := run(t, "--config", config, "--backend=scripted", "--timeout=5s")

	assert.Equal(t, -1, actual.exitCode)
	assert.Contains(t, actual.stderr, cmd.ErrEmulator.Error())
	assert.Contains(t, actual.stderr, "bios_path")
}

func TestRun_SaveAndRestore(t *testing.T) {
	config := writeConfig(t, "emu.yaml", scriptedConfig)
	statePath := filepath.Join(t.TempDir(), "state.lz4")

	saved := run(t,
		"--config", config,
		"--backend=scripted",
		"--save", statePath,
		"--save-compression=lz4",
	)
	require.Equal(t, 0, saved.exitCode, saved.stderr)

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, snapshot.CompressionLZ4, snapshot.Detect(data))

	restored := run(t,
		"--config", config,
		"--backend=scripted",
		"--state", "file://"+statePath,
		"--compression=lz4",
		"--test=ls",
	)
	require.Equal(t, 0, restored.exitCode, restored.stderr)
	assert.Contains(t, restored.stdout, "total 3")
}

func TestRun_RestoreMissingState(t *testing.T) {
	config := writeConfig(t, "emu.yaml", scriptedConfig)
	statePath := filepath.Join(t.TempDir(), "missing.zst")

	actual := run(t,
		"--config", config,
		"--backend=scripted",
		"--state", "file://"+statePath,
	)

	assert.Equal(t, -1, actual.exitCode)
	assert.Contains(t, actual.stderr, "restore state")
}
