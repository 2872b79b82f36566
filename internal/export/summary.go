package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary holds the figures printed at the end of a run
type Summary struct {
	Module     string
	OutDir     string
	Shows      int
	Categories int
	Films      int
	Serials    int
	Episodes   int
	Streams    int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Duration   time.Duration
	Artifacts  []string
	MediaDir   string
}

// RenderSummary renders the OK line, the artifact list and a stats table
func RenderSummary(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "OK: exported %d shows to: %s\n", s.Shows, s.OutDir)
	for _, path := range s.Artifacts {
		fmt.Fprintf(&b, " - %s\n", path)
	}
	if s.MediaDir != "" {
		fmt.Fprintf(&b, " - media: %s\n", s.MediaDir)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Item", "Count"})
	tw.AppendRows([]table.Row{
		{"Categories", humanize.Comma(int64(s.Categories))},
		{"Shows", humanize.Comma(int64(s.Shows))},
		{"Films", humanize.Comma(int64(s.Films))},
		{"Serials", humanize.Comma(int64(s.Serials))},
		{"Episodes", humanize.Comma(int64(s.Episodes))},
		{"Streams", humanize.Comma(int64(s.Streams))},
	})
	if s.MediaDir != "" {
		tw.AppendSeparator()
		tw.AppendRows([]table.Row{
			{"Downloaded", humanize.Comma(int64(s.Downloaded))},
			{"Skipped", humanize.Comma(int64(s.Skipped))},
			{"Failed", humanize.Comma(int64(s.Failed))},
			{"Media size", humanize.IBytes(uint64(max(s.Bytes, 0)))},
		})
	}
	tw.AppendFooter(table.Row{"Elapsed", s.Duration.Round(time.Millisecond).String()})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft, AlignFooter: text.AlignRight},
	})

	b.WriteString(tw.Render())
	b.WriteString("\n")
	return b.String()
}
