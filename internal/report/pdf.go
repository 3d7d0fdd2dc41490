package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/RealKorush/bahbah/internal/domain"
)

const maxLinkWidth = 70

// BuildRunsReport renders runs as a PDF with one table per run.
func BuildRunsReport(runs []*domain.Run) ([]byte, error) {
	p := gofpdf.New("L", "mm", "A4", "")
	tr := p.UnicodeTranslatorFromDescriptor("")
	p.AddPage()
	p.SetFont("Arial", "B", 14)

	p.Cell(40, 10, "Proxy links report")
	p.Ln(12)

	for _, r := range runs {
		sum := r.Summary()
		p.SetFont("Arial", "B", 12)
		title := "Run"
		if r.ID > 0 {
			title = fmt.Sprintf("Run #%d", r.ID)
		}
		if !r.CreatedAt.IsZero() {
			title += " - " + r.CreatedAt.Format("2006-01-02 15:04:05 MST")
		}
		p.Cell(40, 8, title)
		p.Ln(7)
		p.SetFont("Arial", "", 10)
		p.Cell(40, 6, fmt.Sprintf("total %d, alive %d, dead %d, invalid %d", sum.Total, sum.Alive, sum.Dead, sum.Invalid))
		p.Ln(8)

		p.SetFont("Arial", "B", 9)
		widths := []float64{140, 60, 20, 20, 25}
		for i, h := range csvHeader {
			p.CellFormat(widths[i], 6, h, "1", 0, "L", false, 0, "")
		}
		p.Ln(-1)

		p.SetFont("Arial", "", 8)
		for _, rec := range r.Records {
			row := Row(rec)
			row[0] = truncate(row[0], maxLinkWidth)
			row[1] = truncate(row[1], 32)
			for i, v := range row {
				p.CellFormat(widths[i], 5, tr(v), "1", 0, "L", false, 0, "")
			}
			p.Ln(-1)
		}
		p.Ln(6)
	}

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
