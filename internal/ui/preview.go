package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/tide"
)

// PreviewColumns are the headings of the preview table.
var PreviewColumns = []string{"Date", "Heure", "Type", "Hauteur", "Coeff"}

// PreviewRows renders events as table rows, in the order given.
func PreviewRows(events []models.TideEvent) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		at := ev.Instant()
		label := ev.Type.Label()
		if ev.Classification.Estimated() {
			label += " (estimé)"
		}
		rows = append(rows, []string{
			at.Format("02/01/2006"),
			at.Format("15:04"),
			label,
			ev.FormattedHeight(),
			ev.Coefficient.String(),
		})
	}
	return rows
}

// Preview draws the events as a bordered table.
func Preview(events []models.TideEvent) string {
	rows := PreviewRows(events)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(PreviewColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(events) && events[row].Type == models.TideTypeHigh:
				return highStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

// Report is the full terminal summary of a generation: title, warnings and
// the preview table.
func Report(res *tide.Result) string {
	var b strings.Builder
	zone := ""
	if res.Zone != nil {
		zone = res.Zone.String()
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Marées %s", res.Location)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s → %s · %s · %s · %d marées",
		res.Range.Start.Format("02/01/2006"), res.Range.End.Format("02/01/2006"),
		res.Source.Attribution(), zone, len(res.Events))))
	b.WriteString("\n")
	for _, w := range res.Warnings {
		b.WriteString(warningStyle.Render("⚠ " + w))
		b.WriteString("\n")
	}
	b.WriteString(Preview(res.Events))
	b.WriteString("\n")
	return b.String()
}
