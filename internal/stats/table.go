package stats

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/wowkster/ping-the-internet/internal/subnet"
)

const (
	ipColumnWidth      = 13
	countColumnWidth   = 5
	percentColumnWidth = 9
)

// RowKind distinguishes a normally-reduced row from the two special
// cases the post-hoc stats tool can also report.
type RowKind uint8

const (
	RowCounted RowKind = iota
	RowSkipped         // result already existed; planner did not re-probe
	RowNotFound        // no result file for this /16 yet
)

// Row is one line of the stats table.
type Row struct {
	Subnet subnet.Subnet
	Kind   RowKind
	Counts Counts
}

// WriteTable renders rows as the sweep's pipe-delimited progress table:
// header row, separator row, then one row per /16 with counts and
// percentages, "Skipped" for existing files, "NOT FOUND" for failed
// reads in post-hoc tools.
func WriteTable(w io.Writer, rows []Row) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetColumnSeparator("|")
	table.SetCenterSeparator("|")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetColMinWidth(0, ipColumnWidth)
	for col := 1; col <= 3; col++ {
		table.SetColMinWidth(col, countColumnWidth)
	}
	table.SetColMinWidth(4, percentColumnWidth)

	table.SetHeader([]string{"subnet", "alive", "timed_out", "errored", "alive_%"})

	for _, row := range rows {
		table.Append(formatRow(row))
	}

	table.Render()
}

func formatRow(row Row) []string {
	label := row.Subnet.Format()

	switch row.Kind {
	case RowSkipped:
		return []string{label, "Skipped", "Skipped", "Skipped", "Skipped"}
	case RowNotFound:
		return []string{label, "NOT FOUND", "NOT FOUND", "NOT FOUND", "NOT FOUND"}
	default:
		c := row.Counts
		return []string{
			label,
			fmt.Sprint(c.Alive),
			fmt.Sprint(c.TimedOut),
			fmt.Sprint(c.Errored),
			fmt.Sprintf("%.2f", c.AlivePercent()),
		}
	}
}
