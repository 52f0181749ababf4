package commands

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// chooser asks for one of options; def is preselected when it is one of them
type chooser func(message string, options []string, def string) (string, error)

func surveyChooser(message string, options []string, def string) (string, error) {
	prompt := &survey.Select{
		Message: message,
		Options: options,
	}
	if slices.Contains(options, def) {
		prompt.Default = def
	}

	var answer string
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	return answer, nil
}

// NewSelectCommand creates the select command
func NewSelectCommand() *cobra.Command {
	return newSelectCommand(surveyChooser)
}

func newSelectCommand(choose chooser) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select [view] [field=value...]",
		Short: "Walk a view's selection cascade interactively",
		Long: `Walk a view's selection cascade interactively.

Each field is asked in order from the options its predecessors allow;
changing a field clears the ones after it. Fields given as field=value
pairs are offered as the defaults. When the cascade is complete the
portal URL of the selection and its resources are printed.`,
		Args:              cobra.ArbitraryArgs,
		ValidArgsFunction: completeSelection,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			nc := noColor(cmd)
			var v *views.View
			if len(args) == 0 {
				name, err := choose("Select a view:", a.catalog.Names(), "")
				if err != nil {
					return err
				}
				args = []string{name}
			}
			v, err = a.view(cmd.ErrOrStderr(), args[0], nc)
			if err != nil {
				return err
			}
			key, err := selectionArgs(cmd, v, args[1:])
			if err != nil {
				return err
			}

			chosen, err := walkCascade(v, key, choose)
			if err != nil {
				return err
			}

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			writePageURL(out, v, chosen)
			snap := portal.Evaluate(ctx, v, chosen, a.fetcher, a.logger)
			return writeSnapshot(out, v, chosen, snap, asJSON(cmd), nc)
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().Duration("timeout", 30*time.Second, "Give up on fetches after this long")
	return cmd
}

// walkCascade asks every field in order, starting from the options of the
// current prefix. It stops at the first field without options.
func walkCascade(v *views.View, initial selection.Key, choose chooser) (selection.Key, error) {
	nav := selection.NewNavigator(v.Key(nil))
	defaults := initial

	for _, field := range v.Order.Fields() {
		options, err := v.Resolver.Resolve(field, nav.Key())
		if err != nil {
			return selection.Key{}, err
		}
		if len(options) == 0 {
			break
		}

		value, err := choose(field+":", options, defaults.Value(field))
		if err != nil {
			return selection.Key{}, err
		}
		if value != defaults.Value(field) {
			// later defaults belong to the abandoned branch
			defaults = v.Key(nil)
		}
		if _, err := nav.SetField(field, value); err != nil {
			return selection.Key{}, err
		}
	}
	return nav.Key(), nil
}

func writePageURL(w io.Writer, v *views.View, key selection.Key) {
	url := "/views/" + v.Name
	if q := key.Encode(); q != "" {
		url += "?" + q
	}
	fmt.Fprintf(w, "%s\n\n", url)
}
