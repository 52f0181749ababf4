package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hippocampushub/hubportal/internal/cli/ui"
	"github.com/hippocampushub/hubportal/internal/portal"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration, indexes and views",
		Long: `Check the configuration, load the index datasets and build every view.

With --probe, each view's default selection is also evaluated against the
configured data source and every resource that should load is reported.`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
	cmd.Flags().Bool("probe", false, "Fetch the default selection of every view")
	cmd.Flags().Duration("timeout", 30*time.Second, "Give up on each probe after this long")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	nc := noColor(cmd)

	var a *app
	err := ui.WithSpinner(out, "Loading configuration and views", nc, func() error {
		var err error
		a, err = newApp(cmd.Context(), cmd)
		return err
	})
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, nc))
		return err
	}
	defer a.Close()

	ui.WriteSuccess(out, fmt.Sprintf("%d views", len(a.catalog.Names())), nc)
	if a.cfg.Data.BaseURL == "" && a.cfg.Data.Dir == "" {
		fmt.Fprint(out, ui.Warning("no data source configured, using the embedded samples", nil, nc))
	}

	probe, _ := cmd.Flags().GetBool("probe")
	if !probe {
		return nil
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	table := ui.NewTable(out, []string{"View", "Resource", "Problem"}, &ui.TableOptions{NoColor: nc})
	all := a.catalog.Views()

	err = ui.WithProgress(out, "Probed default selections", len(all), nc, func(bar *ui.ProgressBar) error {
		for _, v := range all {
			key := v.Preselection.Merge(v.Key(nil))
			ctx, cancel := contextWithTimeout(cmd, timeout)
			snap := portal.Evaluate(ctx, v, key, a.fetcher, a.logger)
			cancel()

			for _, r := range v.Resources {
				st := snap.Resources[r.Name]
				switch {
				case !st.Ready:
					table.AddRow(v.Name, r.Name, "not determined by the default selection")
				case st.Payload == nil:
					table.AddRow(v.Name, r.Name, "failed to load")
				}
			}
			bar.Add(1)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if table.Len() == 0 {
		return nil
	}
	fmt.Fprintln(out)
	table.Render()
	return fmt.Errorf("%d resources did not load", table.Len())
}
