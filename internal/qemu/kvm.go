// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"os"
)

// KVMDevice is the path of the KVM device node.
var KVMDevice = "/dev/kvm"

// KVMAvailable checks if the KVM device can be used by the current user.
func KVMAvailable() bool {
	f, err := os.OpenFile(KVMDevice, os.O_WRONLY, 0)
	if err != nil {
		return false
	}

	_ = f.Close()

	return true
}
