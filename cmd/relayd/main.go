/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2018 Kopano and its licensors
 */

package main

import (
	"fmt"
	"os"

	"stash.kopano.io/kgol/contactrelay/cmd"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/common"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/gen"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/send"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/serve"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/sink"
	"stash.kopano.io/kgol/contactrelay/cmd/relayd/status"
)

func main() {
	cmd.RootCmd.Use = "relayd"
	cmd.RootCmd.Short = "Contact message relay"

	cmd.RootCmd.PersistentFlags().StringVarP(&common.DefaultEnvConfigFile, "config", "c", common.DefaultEnvConfigFile, "Full path to config file")

	cmd.RootCmd.AddCommand(serve.CommandServe())
	cmd.RootCmd.AddCommand(status.CommandStatus())
	cmd.RootCmd.AddCommand(send.CommandSend())
	cmd.RootCmd.AddCommand(sink.CommandSink())
	cmd.RootCmd.AddCommand(gen.CommandGen())

	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
