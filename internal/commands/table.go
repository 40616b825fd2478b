package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Alignment controls how a column's cells are justified.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Column describes one column of a rendered table. Cells wider than
// MaxWidth are cut short with an ellipsis; zero means no limit.
type Column struct {
	Header   string
	Align    Alignment
	MaxWidth int
}

// Columns is shorthand for left-aligned, unbounded columns.
func Columns(headers ...string) []Column {
	cols := make([]Column, len(headers))
	for i, header := range headers {
		cols[i] = Column{Header: header}
	}
	return cols
}

// RenderTable draws rows in the light box style used by every waterboy
// listing. Headers keep their case. Short rows are padded with blanks.
func RenderTable(columns []Column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.Header
		align := text.AlignLeft
		if col.Align == AlignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
		if col.MaxWidth > 0 {
			configs[i].WidthMax = col.MaxWidth
			configs[i].WidthMaxEnforcer = ellipsis
		}
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func ellipsis(cell string, maxLen int) string {
	if maxLen <= 1 || text.RuneWidthWithoutEscSequences(cell) <= maxLen {
		return text.Trim(cell, maxLen)
	}
	return text.Trim(cell, maxLen-1) + "…"
}
