package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows under a bold header and a separator line
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	right   map[int]bool
	noColor bool
}

// TableOptions configures table behavior
type TableOptions struct {
	NoColor bool
	// AlignRight lists the columns rendered right-aligned, typically counts
	AlignRight []int
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, headers []string, opts *TableOptions) *Table {
	t := &Table{
		writer:  w,
		headers: headers,
		right:   make(map[int]bool),
	}
	if opts != nil {
		t.noColor = opts.NoColor
		for _, col := range opts.AlignRight {
			t.right[col] = true
		}
	}
	return t
}

// AddRow adds a row to the table. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows added
func (t *Table) Len() int {
	return len(t.rows)
}

// Render renders the table to the writer
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
			if i < len(widths) && width(cell) > widths[i] {
				widths[i] = width(cell)
			}
		}
	}

	bold := t.color(color.Bold, color.FgCyan)
	for i, header := range t.headers {
		bold.Fprint(t.writer, t.pad(i, header, widths[i]))
		t.gap(i, len(t.headers))
	}
	fmt.Fprintln(t.writer)

	gray := t.color(color.FgHiBlack)
	for i, w := range widths {
		gray.Fprint(t.writer, strings.Repeat("─", w))
		t.gap(i, len(widths))
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		n := len(row)
		if n > len(widths) {
			n = len(widths)
		}
		for i := 0; i < n; i++ {
			fmt.Fprint(t.writer, t.pad(i, row[i], widths[i]))
			t.gap(i, n)
		}
		fmt.Fprintln(t.writer)
	}
}

func (t *Table) gap(i, n int) {
	if i < n-1 {
		fmt.Fprint(t.writer, "  ")
	}
}

func (t *Table) pad(col int, s string, w int) string {
	if t.right[col] {
		return padLeft(s, w)
	}
	return padRight(s, w)
}

func (t *Table) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

func padRight(s string, w int) string {
	if width(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-width(s))
}

func padLeft(s string, w int) string {
	if width(s) >= w {
		return s
	}
	return strings.Repeat(" ", w-width(s)) + s
}

// KeyValueTable renders aligned "key: value" lines
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

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	keyWidth := 0
	for _, k := range t.keys {
		if width(k) > keyWidth {
			keyWidth = width(k)
		}
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

// Header renders a styled title underlined with a divider
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
