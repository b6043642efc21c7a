/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package version

// Version and BuildDate are set at build time via -ldflags.
var (
	Version   = "0.0.0-no-proper-build"
	BuildDate = "reproducible"
)
