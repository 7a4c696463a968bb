// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import "errors"

var (
	// ErrInitRejected is reported to clients that send an init request.
	ErrInitRejected = errors.New("init is reserved to the host")

	// ErrNoDispatcher is reported if requests arrive before a dispatcher is
	// attached.
	ErrNoDispatcher = errors.New("no session attached")

	// ErrStateURL is reported for state URLs that are not http or https.
	ErrStateURL = errors.New("state url must be http or https")
)
