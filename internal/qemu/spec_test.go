// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"slices"
	"testing"

	"github.com/aibor/emuctl/internal/emulator"
	"github.com/aibor/emuctl/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bootParams(t *testing.T, modify func(*emulator.Config)) emulator.BootParams {
	t.Helper()

	cfg := emulator.Config{
		WasmPath:         "qemu-system-i386",
		BiosPath:         "/usr/share/seabios/bios.bin",
		VGABiosPath:      "/usr/share/seabios/vgabios.bin",
		FilesystemBaseFS: "/srv/basefs",
	}

	if modify != nil {
		modify(&cfg)
	}

	params, err := cfg.BootParams()
	require.NoError(t, err)

	return params
}

func TestSpecFor(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*emulator.Config)
		expected qemu.Spec
	}{
		{
			name: "defaults",
			expected: qemu.Spec{
				Executable: "qemu-system-i386",
				BIOS:       "/usr/share/seabios/bios.bin",
				VGABIOS:    "/usr/share/seabios/vgabios.bin",
				VGAMemory:  4,
				Memory:     128,
				Cmdline:    emulator.DefaultCmdline,
			},
		},
		{
			name: "file url shared",
			modify: func(c *emulator.Config) {
				c.FilesystemBaseURL = "file:///srv/rootfs/"
				c.MemorySize = 512 << 20
				c.BzImagePath = "/boot/bzImage"
				c.Cmdline = "console=ttyS0"
			},
			expected: qemu.Spec{
				Executable: "qemu-system-i386",
				BIOS:       "/usr/share/seabios/bios.bin",
				VGABIOS:    "/usr/share/seabios/vgabios.bin",
				VGAMemory:  4,
				Memory:     512,
				Kernel:     "/boot/bzImage",
				Cmdline:    "console=ttyS0",
				SharedDir:  "/srv/rootfs",
			},
		},
		{
			name: "local path shared",
			modify: func(c *emulator.Config) {
				c.FilesystemBaseURL = "rootfs/flat"
			},
			expected: qemu.Spec{
				Executable: "qemu-system-i386",
				BIOS:       "/usr/share/seabios/bios.bin",
				VGABIOS:    "/usr/share/seabios/vgabios.bin",
				VGAMemory:  4,
				Memory:     128,
				Cmdline:    emulator.DefaultCmdline,
				SharedDir:  "rootfs/flat",
			},
		},
		{
			name: "remote url not shared",
			modify: func(c *emulator.Config) {
				c.FilesystemBaseURL = "https://example.com/rootfs/"
				c.VGAMemorySize = 1024
			},
			expected: qemu.Spec{
				Executable: "qemu-system-i386",
				BIOS:       "/usr/share/seabios/bios.bin",
				VGABIOS:    "/usr/share/seabios/vgabios.bin",
				VGAMemory:  1,
				Memory:     128,
				Cmdline:    emulator.DefaultCmdline,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, qemu.SpecFor(bootParams(t, tt.modify)))
		})
	}
}

func TestSpec_Args(t *testing.T) {
	common := []string{
		"-bios", "/usr/share/seabios/bios.bin",
		"-m", "128",
		"-display", "none",
		"-monitor", "none",
		"-no-user-config",
		"-nodefaults",
		"-device", "VGA,romfile=/usr/share/seabios/vgabios.bin,vgamem_mb=4",
		"-chardev", "pipe,id=serial0,path=/tmp/work/serial",
		"-serial", "chardev:serial0",
		"-qmp", "unix:/tmp/work/qmp.sock,server=on,wait=off",
	}

	tests := []struct {
		name     string
		modify   func(*emulator.Config)
		incoming string
		expected []string
	}{
		{
			name: "kernel boot",
			modify: func(c *emulator.Config) {
				c.FilesystemBaseURL = "file:///srv/root,fs"
				c.BzImagePath = "/boot/bzImage"
			},
			incoming: "/tmp/work/restore.state",
			expected: []string{
				"-kernel", "/boot/bzImage",
				"-append", emulator.DefaultCmdline,
				"-initrd", "/tmp/work/initramfs.cpio",
				"-virtfs", "local,path=/srv/root,,fs,mount_tag=host9p,security_model=none,id=host9p",
				"-incoming", "exec:cat '/tmp/work/restore.state'",
			},
		},
		{
			name: "initramfs without kernel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := qemu.SpecFor(bootParams(t, tt.modify))
			spec.Initramfs = "/tmp/work/initramfs.cpio"
			spec.SerialPath = "/tmp/work/serial"
			spec.QMPSocket = "/tmp/work/qmp.sock"
			spec.Incoming = tt.incoming
			spec.NoKVM = true

			args, err := spec.Args().Build()
			require.NoError(t, err)

			expected := append(slices.Clone(common), tt.expected...)
			assert.Equal(t, expected, args)
		})
	}
}

func TestSpec_ArgsBIOSPath(t *testing.T) {
	spec := qemu.SpecFor(bootParams(t, func(c *emulator.Config) {
		c.BiosPath = "/srv/fw,v2/bios.bin"
	}))

	args, err := spec.Args().Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"-bios", "/srv/fw,v2/bios.bin"}, args[:2])
}

func TestSpec_ArgsKVM(t *testing.T) {
	spec := qemu.SpecFor(bootParams(t, nil))

	args, err := spec.Args().Build()
	require.NoError(t, err)
	assert.Contains(t, args, "-enable-kvm")
	assert.NotContains(t, args, "-kernel")

	spec.ExtraArgs = []qemu.Argument{qemu.UniqueArg("m", "64")}

	_, err = spec.Args().Build()
	require.ErrorIs(t, err, qemu.ErrArgumentCollision)
}
