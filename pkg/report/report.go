// Package report aggregates the sink's footer metadata into a per-column
// compressed-size summary for human consumption.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/sq2pq/sq2pq/pkg/schema"
	"github.com/sq2pq/sq2pq/pkg/writer"
)

// ColumnSize is one column's contribution to the file size.
type ColumnSize struct {
	Name            string
	CompressedBytes int64
	// Share is CompressedBytes over the file's total byte size, in [0, 1]
	Share float64
}

// Summary is the per-column size breakdown of one written file.
type Summary struct {
	TotalBytes int64
	NumRows    int64
	NumGroups  int
	Columns    []ColumnSize
}

// Summarize aggregates compressed sizes per column across all row groups.
// Columns come back in plan order.
func Summarize(plans []schema.ColumnPlan, md *writer.FileMetadata) Summary {
	s := Summary{
		NumRows:   md.NumRows,
		NumGroups: len(md.RowGroups),
		Columns:   make([]ColumnSize, len(plans)),
	}
	for i, plan := range plans {
		s.Columns[i].Name = plan.Name
	}
	for _, group := range md.RowGroups {
		s.TotalBytes += group.TotalByteSize
		for i := range group.Columns {
			if i < len(s.Columns) {
				s.Columns[i].CompressedBytes += group.Columns[i].CompressedSize
			}
		}
	}
	if s.TotalBytes > 0 {
		for i := range s.Columns {
			s.Columns[i].Share = float64(s.Columns[i].CompressedBytes) / float64(s.TotalBytes)
		}
	}
	return s
}

// Render prints the summary as a table.
func (s Summary) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Column", "Compressed", "Share"})
	table.SetBorder(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, col := range s.Columns {
		table.Append([]string{
			col.Name,
			FormatKiB(col.CompressedBytes),
			fmt.Sprintf("%2.0f%%", col.Share*100),
		})
	}
	table.SetFooter([]string{"total", FormatKiB(s.TotalBytes), "100%"})
	table.Render()
}

// FormatKiB renders a byte count as comma-separated KiB.
func FormatKiB(bytes int64) string {
	kib := bytes / 1024
	s := strconv.FormatInt(kib, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		out = append([]byte{'-'}, out...)
	}
	return string(out) + " KiB"
}
