package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/nocturnal/bookreel/internal/models"
)

// printReport renders the per-part outcomes: a table on a terminal, plain
// lines when output is piped.
func printReport(report *models.Report) {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Println(renderReportTable(report))
	} else {
		for _, part := range report.Parts {
			fmt.Printf("part %d\t%s\t%s\n", part.Index, part.Status, part.Detail)
		}
	}

	fmt.Printf("\n%s: %d/%d parts succeeded", report.BookTitle, report.Succeeded, report.Total)
	if report.FinalPath != "" {
		fmt.Printf(" -> %s", report.FinalPath)
	}
	fmt.Println()
}

func renderReportTable(report *models.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("Run %s", report.RunID))

	tw.AppendHeader(table.Row{"Part", "Status", "Detail"})
	for _, part := range report.Parts {
		tw.AppendRow(table.Row{part.Index, string(part.Status), part.Detail})
	}
	tw.AppendFooter(table.Row{"", "succeeded", fmt.Sprintf("%d/%d", report.Succeeded, report.Total)})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignLeft, WidthMax: 60},
	})

	return tw.Render()
}
