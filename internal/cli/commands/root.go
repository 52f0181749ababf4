package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hubportal",
		Short: "Hippocampus hub data portal",
		Long: color.CyanString(`hubportal - Hippocampus hub data portal

Serves the hub's cascading-selection views: pick a layer, a cell type,
an instance, and the portal resolves the options and loads the matching
datasets and factsheets.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor(cmd) {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default ./hubportal.yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewViewsCommand())
	rootCmd.AddCommand(NewOptionsCommand())
	rootCmd.AddCommand(NewFetchCommand())
	rootCmd.AddCommand(NewSelectCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewHistoryCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewRoutesCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

func noColor(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-color")
	return v
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the hubportal version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "hubportal version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
