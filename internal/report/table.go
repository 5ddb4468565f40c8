// Package report renders a plain-text summary of a run for terminal output.
package report

import (
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"sgmacro/internal/model"
)

const errorColumnLimit = 60

// StatusTable renders series statuses as an aligned table, one row per
// series id in sorted order.
func StatusTable(status model.StatusDocument) string {
	headers := []string{"SERIES", "OK", "LAST PERIOD", "ERROR"}

	ids := make([]string, 0, len(status.SeriesStatus))
	for id := range status.SeriesStatus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		entry := status.SeriesStatus[id]
		okText := "no"
		if entry.OK {
			okText = "yes"
		}
		lastPeriod := "-"
		if entry.LastPeriod != nil {
			lastPeriod = *entry.LastPeriod
		}
		rows = append(rows, []string{id, okText, lastPeriod, clip(entry.Error)})
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if width := runewidth.StringWidth(cell); width > widths[i] {
				widths[i] = width
			}
		}
	}

	var builder strings.Builder
	writeRow(&builder, headers, widths)
	for _, row := range rows {
		writeRow(&builder, row, widths)
	}
	return builder.String()
}

func writeRow(builder *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		if i > 0 {
			builder.WriteString("  ")
		}
		builder.WriteString(cell)
		if pad := widths[i] - runewidth.StringWidth(cell); pad > 0 && i < len(cells)-1 {
			builder.WriteString(strings.Repeat(" ", pad))
		}
	}
	builder.WriteString("\n")
}

func clip(text string) string {
	if runewidth.StringWidth(text) <= errorColumnLimit {
		return text
	}
	return runewidth.Truncate(text, errorColumnLimit, "...")
}
