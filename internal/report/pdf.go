package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"foodforge/internal/attendance"
)

const maxPDFRows = 400

var scanColumns = []float64{14, 70, 30, 36, 32}

func scanHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	pdf.CellFormat(scanColumns[0], 8, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(scanColumns[1], 8, "STUDENT", "1", 0, "L", true, 0, "")
	pdf.CellFormat(scanColumns[2], 8, "MEAL", "1", 0, "C", true, 0, "")
	pdf.CellFormat(scanColumns[3], 8, "TIME", "1", 0, "C", true, 0, "")
	pdf.CellFormat(scanColumns[4], 8, "RECORD", "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 9)
}

// WritePDF renders the report followed by the day's scans.
func WritePDF(w io.Writer, rep DailyReport, entries []attendance.Entry) error {
	loc := rep.Location
	if loc == nil {
		loc = time.UTC
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	// Core fonts are cp1252; names outside it render with '.' substitutes.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Food Forge daily attendance")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, tr("Date: "+rep.Date+" ("+loc.String()+")"))
	pdf.Ln(10)

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetTextColor(20, 20, 20)
	sumW := []float64{46, 34, 34, 34, 34}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(248, 248, 248)
	for i, h := range []string{"Meal", "Opted", "Served", "No-shows", "Walk-ins"} {
		pdf.CellFormat(sumW[i], 9, h, "1", boolInt(i == len(sumW)-1), "C", true, 0, "")
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range rep.Meals {
		cells := []string{line.Meal.Title(), itoa(line.Opted), itoa(line.Served), itoa(line.NoShows), itoa(line.WalkIns)}
		for i, v := range cells {
			pdf.CellFormat(sumW[i], 9, v, "1", boolInt(i == len(cells)-1), "C", false, 0, "")
		}
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(sumW[0], 9, "Total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[1], 9, itoa(rep.TotalOpted), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[2], 9, itoa(rep.TotalServed), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	scanHeader(pdf)
	if len(entries) == 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 8, "No scans recorded", "1", 1, "C", false, 0, "")
	}
	for i, e := range entries {
		if i >= maxPDFRows {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 8, "truncated: "+itoa(len(entries)-maxPDFRows)+" more scans", "1", 1, "C", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
			scanHeader(pdf)
		}
		pdf.CellFormat(scanColumns[0], 7, itoa(i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(scanColumns[1], 7, tr(trimTo(e.FullName, 40)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(scanColumns[2], 7, e.Meal.Title(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(scanColumns[3], 7, e.ScanTime.In(loc).Format("15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(scanColumns[4], 7, shortID(e.ID), "1", 1, "C", false, 0, "")
	}

	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 10, "Generated "+rep.GeneratedAt.Format(time.RFC3339), "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func itoa(n int) string { return strconv.Itoa(n) }

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// trimTo shortens s to at most max runes.
func trimTo(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
