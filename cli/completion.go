package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion {bash|zsh|fish|powershell}",
	Short: "Generate the shell completion script of flotilla",
	Long: `Generate the shell completion script of flotilla for the given shell.

To load completions in the current shell:

  bash:       source <(flotilla completion bash)
  zsh:        source <(flotilla completion zsh)
  fish:       flotilla completion fish | source
  powershell: flotilla completion powershell | Out-String | Invoke-Expression

To load them in every new session, write the script where your shell looks for
completions, for example ~/.local/share/bash-completion/completions/flotilla or
~/.config/fish/completions/flotilla.fish.`,

	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,

	// Completion scripts need neither a config file nor provider credentials
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return writeCompletion(cmd, args[0])
	},
}

func writeCompletion(cmd *cobra.Command, shell string) error {
	out := cmd.OutOrStdout()
	switch shell {
	case "bash":
		return flotillaCmd.GenBashCompletionV2(out, true)
	case "zsh":
		return flotillaCmd.GenZshCompletion(out)
	case "fish":
		return flotillaCmd.GenFishCompletion(out, true)
	case "powershell":
		return flotillaCmd.GenPowerShellCompletionWithDesc(out)
	}
	return fmt.Errorf("unsupported shell '%s'", shell)
}
