package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table writes rows under a header, columns padded to their widest cell
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// TableOptions configures table behavior
type TableOptions struct {
	NoColor bool
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, headers []string, opts *TableOptions) *Table {
	t := &Table{writer: w, headers: headers}
	if opts != nil {
		t.noColor = opts.NoColor
	}
	return t
}

// AddRow adds a row. Cells past the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	}
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows added so far
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = width(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], width(cell))
		}
	}

	head := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if t.noColor {
		head.DisableColor()
		gray.DisableColor()
	}

	t.line(len(t.headers), func(i int) {
		if i == len(t.headers)-1 {
			head.Fprint(t.writer, t.headers[i])
			return
		}
		head.Fprint(t.writer, padRight(t.headers[i], widths[i]))
	})
	t.line(len(widths), func(i int) {
		gray.Fprint(t.writer, strings.Repeat("─", widths[i]))
	})
	for _, row := range t.rows {
		t.line(len(row), func(i int) {
			if i == len(row)-1 {
				fmt.Fprint(t.writer, row[i])
				return
			}
			fmt.Fprint(t.writer, padRight(row[i], widths[i]))
		})
	}
}

func (t *Table) line(n int, cell func(int)) {
	for i := 0; i < n; i++ {
		if i > 0 {
			fmt.Fprint(t.writer, "  ")
		}
		cell(i)
	}
	fmt.Fprintln(t.writer)
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

func padRight(s string, w int) string {
	if n := width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

// KeyValueTable writes aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the rows with the values lined up
func (t *KeyValueTable) Render() {
	keyWidth := 0
	for _, k := range t.keys {
		keyWidth = max(keyWidth, width(k))
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for i, k := range t.keys {
		cyan.Fprint(t.writer, padRight(k+":", keyWidth+1))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// List writes bulleted or numbered items
type List struct {
	writer   io.Writer
	items    []string
	numbered bool
	noColor  bool
}

// ListOptions configures list behavior
type ListOptions struct {
	Numbered bool
	NoColor  bool
}

// NewList creates a new list
func NewList(w io.Writer, opts ListOptions) *List {
	return &List{writer: w, numbered: opts.Numbered, noColor: opts.NoColor}
}

// AddItem adds an item to the list
func (l *List) AddItem(item string) {
	l.items = append(l.items, item)
}

// Render writes the items, one per line
func (l *List) Render() {
	cyan := color.New(color.FgCyan)
	if l.noColor {
		cyan.DisableColor()
	}

	for i, item := range l.items {
		if l.numbered {
			cyan.Fprintf(l.writer, "%d. ", i+1)
		} else {
			cyan.Fprint(l.writer, "• ")
		}
		fmt.Fprintln(l.writer, item)
	}
}

// Header writes a title underlined to its own width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		gray.DisableColor()
	}
	bold.Fprintln(w, title)
	gray.Fprintln(w, strings.Repeat("─", width(title)))
}
