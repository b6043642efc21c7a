/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package gen

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func CommandAutoComplete() *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "autocomplete [bash|zsh|fish]",
		Short: "Generate shell autocompletion script",
		Long: `To load completions:

Bash:

  $ source <(relayd gen autocomplete bash)

  # To load completions for each session, execute once:
  $ relayd gen autocomplete bash > /etc/bash_completion.d/relayd

Zsh:

  # To load completions for each session, execute once:
  $ relayd gen autocomplete zsh > "${fpath[1]}/_relayd"

fish:

  $ relayd gen autocomplete fish | source
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Run: func(cmd *cobra.Command, args []string) {
			if err := autocomplete(cmd.Root(), os.Stdout, args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}

	return completionCmd
}

func autocomplete(root *cobra.Command, w io.Writer, shell string) error {
	root.Use = DefaultRootUse

	switch shell {
	case "bash":
		return root.GenBashCompletion(w)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
}
