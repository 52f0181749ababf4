package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for shell completions
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for hubportal.

View names and selection fields complete too, from the configured catalog.

Bash:

  $ source <(hubportal completion bash)

Zsh:

  $ hubportal completion zsh > "${fpath[1]}/_hubportal"

Fish:

  $ hubportal completion fish | source

PowerShell:

  PS> hubportal completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			root := cmd.Root()

			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// completeSelection completes the view name first, then field= prefixes of
// the fields not given yet
func completeSelection(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer a.Close()

	if len(args) == 0 {
		return a.catalog.Names(), cobra.ShellCompDirectiveNoFileComp
	}

	v, err := a.catalog.Get(args[0])
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	given := make(map[string]bool, len(args))
	for _, arg := range args[1:] {
		field, _, _ := strings.Cut(arg, "=")
		given[field] = true
	}

	// after "field=" offer that field's options under the fields already given
	if field, prefix, ok := strings.Cut(toComplete, "="); ok {
		key, err := parseSelection(v, args[1:])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		opts, err := v.Resolver.Resolve(field, key)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var out []string
		for _, o := range opts {
			if strings.HasPrefix(o, prefix) {
				out = append(out, field+"="+o)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}

	var out []string
	for _, f := range v.Order.Fields() {
		if !given[f] {
			out = append(out, f+"=")
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}
