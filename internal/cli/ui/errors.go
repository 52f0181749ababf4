package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ VIEW NOT FOUND: Cannot find view 'digital-reconstructions/neuron'.
//	   Cannot find view 'digital-reconstructions/neuron'.
//
//	   Did you mean: digital-reconstructions/neurons?
//
//	   → See all views: hubportal views
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}

	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ViewNotFoundError reports an unknown view name
func ViewNotFoundError(name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:        ErrorLevelError,
		Context:      "VIEW NOT FOUND",
		Problem:      fmt.Sprintf("Cannot find view '%s'.", name),
		Suggestions:  suggestions,
		HelpCommands: []string{"See all views: hubportal views"},
		NoColor:      noColor,
	})
}

// FieldError reports a selection argument the view does not accept
func FieldError(view, message string, fields []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "INVALID SELECTION",
		Problem:     message,
		Consequence: fmt.Sprintf("Fields of %s, in order: %s", view, strings.Join(fields, ", ")),
		HelpCommands: []string{
			"See the options: hubportal options " + view,
		},
		NoColor: noColor,
	})
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "CONFIGURATION ERROR",
		Problem:     message,
		Suggestions: suggestions,
		HelpCommands: []string{
			"View config: cat hubportal.yaml",
			"Check it: hubportal validate",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelWarning,
		Problem:     message,
		Suggestions: suggestions,
		NoColor:     noColor,
	})
}
