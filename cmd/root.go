/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"stash.kopano.io/kgol/contactrelay/version"
)

// RootCmd is the root command shared by all binaries.
var RootCmd = &cobra.Command{
	Version:       fmt.Sprintf("%s (built %s)", version.Version, version.BuildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}
