//go:build tools

/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

// Package contactrelay pins the code generators used by go generate.
package contactrelay

import (
	_ "go.uber.org/mock/mockgen"
)
