package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	// Headers returns the column headers for the table.
	Headers() []string
	// Rows returns the data rows for the table.
	Rows() [][]string
}

// RowStyle marks a table row for emphasis on a color terminal.
type RowStyle int

const (
	RowPlain RowStyle = iota
	// RowSelected is the row the command acted on, such as the winning cache.
	RowSelected
	// RowRejected is a row that was looked at and skipped.
	RowRejected
)

// RowStyler is optionally implemented by a TableRenderer whose rows carry
// an outcome. It is consulted only when color is enabled.
type RowStyler interface {
	RowStyle(i int) RowStyle
}

func (s RowStyle) colors() tablewriter.Colors {
	switch s {
	case RowSelected:
		return tablewriter.Colors{tablewriter.Bold, tablewriter.FgGreenColor}
	case RowRejected:
		return tablewriter.Colors{tablewriter.FgHiBlackColor}
	default:
		return tablewriter.Colors{}
	}
}

// PrintTable writes data as a column-aligned table without borders. With
// color set and data implementing RowStyler, rows are colored by style.
func PrintTable(w io.Writer, data TableRenderer, color bool) error {
	table := newTable(w, "")
	table.SetHeader(data.Headers())
	table.SetAutoFormatHeaders(true)

	styler, styled := data.(RowStyler)
	for i, row := range data.Rows() {
		if !color || !styled {
			table.Append(row)
			continue
		}
		c := styler.RowStyle(i).colors()
		cells := make([]tablewriter.Colors, len(row))
		for j := range cells {
			cells[j] = c
		}
		table.Rich(row, cells)
	}

	table.Render()
	return nil
}

// SimpleTable prints "key: value" lines aligned on the colon, as used by
// "kcmcache version".
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w, ":")
	table.SetAutoFormatHeaders(false)

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}

	table.Render()
	return nil
}

func newTable(w io.Writer, columnSeparator string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(columnSeparator)
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
