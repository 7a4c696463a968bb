// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/aibor/emuctl/internal/emulator"
)

// Validate checks that the files referenced by the config are present on
// the host. QEMU can pass the base filesystem to the guest only along with a
// kernel, so the kernel is required.
func Validate(cfg emulator.Config) error {
	err := cfg.Validate()
	if err != nil {
		return err //nolint:wrapcheck
	}

	// Check files are actually present.
	_, err = exec.LookPath(cfg.WasmPath)
	if err != nil {
		return fmt.Errorf("emulator binary: %w", err)
	}

	err = ValidateFilePath(cfg.BiosPath)
	if err != nil {
		return fmt.Errorf("bios file: %w", err)
	}

	err = ValidateFilePath(cfg.VGABiosPath)
	if err != nil {
		return fmt.Errorf("vga bios file: %w", err)
	}

	if cfg.BzImagePath == "" {
		return fmt.Errorf("kernel file: %w", ErrKernelRequired)
	}

	err = ValidateFilePath(cfg.BzImagePath)
	if err != nil {
		return fmt.Errorf("kernel file: %w", err)
	}

	_, err = os.Stat(cfg.FilesystemBaseFS)
	if err != nil {
		return fmt.Errorf("base filesystem: %w", err)
	}

	return nil
}
