// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package emulator

const (
	// DefaultMemorySize is the guest memory size used if none is configured.
	DefaultMemorySize uint64 = 128 << 20

	// DefaultVGAMemorySize is the VGA memory size used if none is
	// configured.
	DefaultVGAMemorySize uint64 = 4 << 20

	// DefaultCmdline is the kernel command line used if none is configured.
	// It boots from the 9p root filesystem and puts the console on the first
	// serial port.
	DefaultCmdline = "rw root=host9p rootfstype=9p " +
		"rootflags=trans=virtio,cache=loose modules=virtio_pci " +
		"tsc=reliable console=ttyS0"
)

// Config describes the boot parameters of an emulator.
//
// The field names on the wire are the snake_case names of the struct tags.
// Sizes are in bytes.
type Config struct {
	WasmPath          string `json:"wasm_path"                 yaml:"wasm_path"`
	BiosPath          string `json:"bios_path"                 yaml:"bios_path"`
	VGABiosPath       string `json:"vgabios_path"              yaml:"vgabios_path"`
	FilesystemBaseFS  string `json:"filesystem_basefs"         yaml:"filesystem_basefs"`
	FilesystemBaseURL string `json:"filesystem_baseurl"        yaml:"filesystem_baseurl"`
	BzImagePath       string `json:"bzimage_path,omitempty"    yaml:"bzimage_path,omitempty"`
	MemorySize        uint64 `json:"memory_size,omitempty"     yaml:"memory_size,omitempty"`
	VGAMemorySize     uint64 `json:"vga_memory_size,omitempty" yaml:"vga_memory_size,omitempty"`
	Cmdline           string `json:"cmdline,omitempty"         yaml:"cmdline,omitempty"`
}

// Validate checks that all required fields are set.
//
// It returns a [ConfigError] for the first empty required field.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"wasm_path", c.WasmPath},
		{"bios_path", c.BiosPath},
		{"vgabios_path", c.VGABiosPath},
		{"filesystem_basefs", c.FilesystemBaseFS},
	}

	for _, field := range required {
		if field.value == "" {
			return &ConfigError{Field: field.name, Err: ErrMissingField}
		}
	}

	return nil
}

// BootParams are the parameters a [Machine] is constructed with. They are a
// validated [Config] with defaults applied.
type BootParams struct {
	Config
}

// BootParams validates the config and returns it with defaults applied for
// all optional fields that are not set.
func (c *Config) BootParams() (BootParams, error) {
	err := c.Validate()
	if err != nil {
		return BootParams{}, err
	}

	params := BootParams{Config: *c}

	if params.MemorySize == 0 {
		params.MemorySize = DefaultMemorySize
	}

	if params.VGAMemorySize == 0 {
		params.VGAMemorySize = DefaultVGAMemorySize
	}

	if params.Cmdline == "" {
		params.Cmdline = DefaultCmdline
	}

	return params, nil
}
