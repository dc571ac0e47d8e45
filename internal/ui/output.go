package ui

import (
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders rows with aligned columns.
type Table struct {
	writer table.Writer
	rows   int
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)

	return &Table{writer: t}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	t.writer.AppendRow(row)
	t.rows++
}

// Len returns the number of rows added.
func (t *Table) Len() int {
	return t.rows
}

// Render writes the table to w. Nothing is written for an empty table.
func (t *Table) Render(w io.Writer) {
	if t.rows == 0 {
		return
	}
	t.writer.SetOutputMirror(w)
	t.writer.Render()
}

// Print prints the table to stdout
func (t *Table) Print() {
	t.Render(os.Stdout)
}

// PrintJSON prints data as JSON
func PrintJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
