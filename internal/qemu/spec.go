// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aibor/emuctl/internal/emulator"
)

// MountTag is the 9p mount tag of the shared base filesystem.
const MountTag = "host9p"

const mebibyte = 1 << 20

// Spec defines the parameters of a QEMU process.
type Spec struct {
	// Path to the qemu-system binary.
	Executable string

	// Path to the BIOS firmware.
	BIOS string

	// Path to the VGA BIOS ROM.
	VGABIOS string

	// VGA memory in MiB.
	VGAMemory uint64

	// Memory for the machine in MiB.
	Memory uint64

	// Path to the initramfs cpio archive. Only used with Kernel.
	Initramfs string

	// Path to the kernel to boot directly. The BIOS boots from its default
	// devices if empty.
	Kernel string

	// Kernel command line. Only used with Kernel.
	Cmdline string

	// Host directory shared with the guest via 9p with [MountTag].
	SharedDir string

	// Disable KVM support.
	NoKVM bool

	// Base path of the serial FIFOs. QEMU reads from SerialPath.in and
	// writes to SerialPath.out.
	SerialPath string

	// Path of the QMP unix socket.
	QMPSocket string

	// Snapshot file the machine state is migrated in from. The machine
	// boots regularly if empty.
	Incoming string

	// ExtraArgs are extra arguments that are passed to the QEMU command.
	// They must not interfere with the arguments set by the other fields or
	// an error will be returned by [Arguments.Build].
	ExtraArgs []Argument
}

// SpecFor creates a [Spec] for the given boot parameters. The paths of the
// serial FIFOs, the QMP socket and the initramfs are left for the caller.
func SpecFor(params emulator.BootParams) Spec {
	return Spec{
		Executable: params.WasmPath,
		BIOS:       params.BiosPath,
		VGABIOS:    params.VGABiosPath,
		VGAMemory:  toMebibyte(params.VGAMemorySize),
		Memory:     toMebibyte(params.MemorySize),
		Kernel:     params.BzImagePath,
		Cmdline:    params.Cmdline,
		SharedDir:  localPath(params.FilesystemBaseURL),
	}
}

func toMebibyte(size uint64) uint64 {
	return max(1, size/mebibyte)
}

// localPath returns the local path for the given base URL. It returns an
// empty string for remote URLs.
func localPath(baseURL string) string {
	if baseURL == "" {
		return ""
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	switch parsed.Scheme {
	case "":
		return filepath.Clean(baseURL)
	case "file":
		return filepath.Clean(parsed.Path)
	default:
		return ""
	}
}

// shellQuote quotes the string for use in a POSIX shell command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Args compiles the [Arguments] for the QEMU command.
func (s *Spec) Args() Arguments {
	args := Arguments{
		UniqueArg("bios", s.BIOS),
		UniqueArg("m", strconv.FormatUint(s.Memory, 10)),
		UniqueArg("display", "none"),
		UniqueArg("monitor", "none"),
		UniqueArg("no-user-config"),
		UniqueArg("nodefaults"),
		RepeatableArg("device",
			"VGA",
			"romfile="+escapeOption(s.VGABIOS),
			"vgamem_mb="+strconv.FormatUint(s.VGAMemory, 10),
		),
		RepeatableArg("chardev",
			"pipe",
			"id=serial0",
			"path="+escapeOption(s.SerialPath),
		),
		RepeatableArg("serial", "chardev:serial0"),
		UniqueArg("qmp",
			"unix:"+escapeOption(s.QMPSocket),
			"server=on",
			"wait=off",
		),
	}

	if !s.NoKVM {
		args.Add(UniqueArg("enable-kvm"))
	}

	// QEMU accepts -append and -initrd only along with -kernel.
	if s.Kernel != "" {
		args.Add(UniqueArg("kernel", s.Kernel))

		if s.Cmdline != "" {
			args.Add(UniqueArg("append", s.Cmdline))
		}

		if s.Initramfs != "" {
			args.Add(UniqueArg("initrd", s.Initramfs))
		}
	}

	if s.SharedDir != "" {
		args.Add(RepeatableArg("virtfs",
			"local",
			"path="+escapeOption(s.SharedDir),
			"mount_tag="+MountTag,
			"security_model=none",
			"id="+MountTag,
		))
	}

	if s.Incoming != "" {
		args.Add(UniqueArg("incoming", "exec:cat "+shellQuote(s.Incoming)))
	}

	args.Add(s.ExtraArgs...)

	return args
}
