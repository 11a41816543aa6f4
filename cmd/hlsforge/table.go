package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"hlsforge/internal/queue"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableColumn pairs a header title with its cell alignment.
type tableColumn struct {
	title string
	align columnAlignment
}

// statusColors maps job statuses to row colors. Rows are painted only when
// stdout is a terminal so piped and captured output stays plain.
var statusColors = map[string]text.Colors{
	string(queue.StatusFailed):   {text.FgRed},
	string(queue.StatusComplete): {text.FgGreen},
	string(queue.StatusEncoding): {text.FgCyan},
}

func renderTable(columns []tableColumn, rows [][]string) string {
	return renderTableWithFooter(columns, rows, nil)
}

func renderTableWithFooter(columns []tableColumn, rows [][]string, footer []string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, column := range columns {
		header[i] = column.title
		align := text.AlignLeft
		if column.align == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			AlignFooter: align,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		tw.AppendRow(paddedRow(cells, len(columns)))
	}
	if footer != nil {
		tw.AppendFooter(paddedRow(footer, len(columns)))
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		tw.SetRowPainter(func(row table.Row) text.Colors {
			for _, cell := range row {
				if value, ok := cell.(string); ok {
					if colors, ok := statusColors[value]; ok {
						return colors
					}
				}
			}
			return nil
		})
	}

	return tw.Render()
}

func paddedRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
