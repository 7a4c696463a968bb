// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package controller

import "errors"

// ErrClosed is returned if a [Controller] is used after it was closed.
var ErrClosed = errors.New("controller closed")
