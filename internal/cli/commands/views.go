package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hippocampushub/hubportal/internal/api"
	"github.com/hippocampushub/hubportal/internal/cli/ui"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/pkg/payload"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// maxListedOptions caps how many options a table cell shows
const maxListedOptions = 6

// NewViewsCommand creates the views command
func NewViewsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "List the portal views",
		Long: `List every view of the portal with its selection fields, in cascade
order, and the resources it loads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			nc := noColor(cmd)
			if asJSON(cmd) {
				summaries := make([]api.ViewSummary, 0, len(a.catalog.Views()))
				for _, v := range a.catalog.Views() {
					summaries = append(summaries, api.Summarize(v))
				}
				return writeJSON(out, summaries)
			}

			table := ui.NewTable(out, []string{"View", "Fields", "Resources"}, &ui.TableOptions{NoColor: nc})
			for _, v := range a.catalog.Views() {
				names := make([]string, len(v.Resources))
				for i, r := range v.Resources {
					names[i] = r.Name
				}
				table.AddRow(v.Name, strings.Join(v.Order.Fields(), " > "), strings.Join(names, ", "))
			}
			table.Render()
			return nil
		},
	}
	addJSONFlag(cmd)
	return cmd
}

// NewOptionsCommand creates the options command
func NewOptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options <view> [field=value...]",
		Short: "Show the options of every field for a selection",
		Long: `Resolve the options of every selection field of a view.

Fields are given as field=value pairs. Without any of the view's driving
fields the view's default selection is applied, as the portal page does;
--no-defaults turns that off.`,
		Example: `  hubportal options digital-reconstructions/neurons
  hubportal options digital-reconstructions/neurons layer=SP mtype=SP_PC`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeSelection,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			nc := noColor(cmd)
			v, err := a.view(cmd.ErrOrStderr(), args[0], nc)
			if err != nil {
				return err
			}
			key, err := selectionArgs(cmd, v, args[1:])
			if err != nil {
				return err
			}

			options := v.Resolver.ResolveAll(key)
			if asJSON(cmd) {
				return writeJSON(out, map[string]any{
					"view":     v.Name,
					"query":    key.Encode(),
					"key":      key.Values(),
					"options":  options,
					"complete": v.Complete(key),
				})
			}

			writeSelection(out, v, key, nc)
			fmt.Fprintln(out)
			table := ui.NewTable(out, []string{"Field", "Selected", "Options"}, &ui.TableOptions{NoColor: nc})
			for _, f := range v.Order.Fields() {
				table.AddRow(f, key.Value(f), summarizeOptions(options[f]))
			}
			table.Render()
			return nil
		},
	}
	addSelectionFlags(cmd)
	return cmd
}

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <view> [field=value...]",
		Short: "Load the resources of a view for a selection",
		Long: `Load every resource of a view whose path is fully determined by the
selection, through the configured data source and payload cache, and
report what each one contains.`,
		Example: `  hubportal fetch experimental-data/layer-anatomy layer=SLM
  hubportal fetch digital-reconstructions/neurons --json`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeSelection,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			nc := noColor(cmd)
			v, err := a.view(cmd.ErrOrStderr(), args[0], nc)
			if err != nil {
				return err
			}
			key, err := selectionArgs(cmd, v, args[1:])
			if err != nil {
				return err
			}

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()

			snap := portal.Evaluate(ctx, v, key, a.fetcher, a.logger)
			return writeSnapshot(cmd.OutOrStdout(), v, key, snap, asJSON(cmd), nc)
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().Duration("timeout", 30*time.Second, "Give up on fetches after this long")
	return cmd
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Print JSON instead of tables")
}

func addSelectionFlags(cmd *cobra.Command) {
	addJSONFlag(cmd)
	cmd.Flags().Bool("no-defaults", false, "Do not apply the view's default selection")
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// selectionArgs builds the key from field=value arguments, merging the
// view's defaults unless --no-defaults is set
func selectionArgs(cmd *cobra.Command, v *views.View, args []string) (selection.Key, error) {
	key, err := parseSelection(v, args)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.FieldError(v.Name, err.Error(), v.Order.Fields(), noColor(cmd)))
		return selection.Key{}, err
	}

	skip, _ := cmd.Flags().GetBool("no-defaults")
	if !skip && v.Preselection.Needed(key) {
		key = v.Preselection.Merge(key)
	}
	return key, nil
}

// parseSelection turns field=value arguments into a key of v. Fields may
// come in any order; a field is dropped when one ordered before it is unset.
func parseSelection(v *views.View, args []string) (selection.Key, error) {
	values := url.Values{}
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return selection.Key{}, fmt.Errorf("expected field=value, got %q", arg)
		}
		if !v.Order.Has(field) {
			return selection.Key{}, fmt.Errorf("%w: %s", selection.ErrUnknownField, field)
		}
		if values.Has(field) {
			return selection.Key{}, fmt.Errorf("field %s given twice", field)
		}
		values.Set(field, value)
	}
	return v.Key(values), nil
}

// writeViewNotFound prints the unknown view error with close names
func writeViewNotFound(w io.Writer, name string, names []string, noColor bool) {
	fmt.Fprint(w, ui.ViewNotFoundError(name, ui.FindSimilar(name, names, nil), noColor))
}

func writeSelection(w io.Writer, v *views.View, key selection.Key, noColor bool) {
	ui.Header(w, fmt.Sprintf("%s (%s)", v.Title, v.Name), noColor)
	kv := ui.NewKeyValueTable(w, noColor)
	query := key.Encode()
	if query == "" {
		query = "(empty)"
	}
	kv.AddRow("query", query)
	kv.AddRow("complete", fmt.Sprint(v.Complete(key)))
	kv.Render()
}

func writeSnapshot(w io.Writer, v *views.View, key selection.Key, snap portal.Snapshot, raw, noColor bool) error {
	if raw {
		return writeJSON(w, snap)
	}

	writeSelection(w, v, key, noColor)
	fmt.Fprintln(w)

	table := ui.NewTable(w, []string{"Resource", "Ready", "Loaded", "Path"}, &ui.TableOptions{NoColor: noColor})
	var gated []string
	for _, r := range v.Resources {
		st := snap.Resources[r.Name]
		table.AddRow(r.Name, yesNo(st.Ready), describePayload(st.Payload), st.Path)
		if len(r.PlotIDs) > 0 && st.Payload != nil {
			gated = append(gated, fmt.Sprintf("%s: %s", r.Name, strings.Join(payload.Available(st.Available, r.PlotIDs), ", ")))
		}
	}
	table.Render()

	if len(gated) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Available plots", noColor)
		list := ui.NewList(w, ui.ListOptions{NoColor: noColor})
		for _, g := range gated {
			list.AddItem(g)
		}
		list.Render()
	}

	for _, r := range v.Resources {
		l := snap.Resources[r.Name].Laminar
		if len(l) == 0 {
			continue
		}
		fmt.Fprintln(w)
		ui.Header(w, "Laminar distribution: "+r.Name, noColor)
		kv := ui.NewKeyValueTable(w, noColor)
		kv.AddRow("layers", strings.Join(l.Layers(), ", "))
		kv.AddRow("cell types", strings.Join(l.CellTypes(), ", "))
		kv.Render()
	}
	return nil
}

func describePayload(p *payload.Payload) string {
	if p == nil {
		return "-"
	}
	switch p.Kind {
	case payload.KindBundle:
		return fmt.Sprintf("bundle, %d plots", len(p.Bundle.Values))
	case payload.KindFactsheet:
		return fmt.Sprintf("factsheet, %d facts", len(p.Factsheet))
	default:
		return fmt.Sprintf("document, %d bytes", len(p.Document))
	}
}

func summarizeOptions(opts []string) string {
	if len(opts) == 0 {
		return "-"
	}
	if len(opts) <= maxListedOptions {
		return strings.Join(opts, ", ")
	}
	return fmt.Sprintf("%s, ... (%d more)", strings.Join(opts[:maxListedOptions], ", "), len(opts)-maxListedOptions)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// contextWithTimeout bounds the command context by d when d is positive
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
