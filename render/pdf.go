/*
Package render draws statements as A4 PDF documents.

LAYOUT (points, origin top-left, A4 portrait 595.28 x 841.89):
  Logo:          x=40, width 110, bottom edge at y=90 (optional)
  Title:         "LIQUIDACIÓN DOCENTE", Helvetica-Bold 16 at (170, 60)
  Header:        Helvetica 10 at x=40, y=145 / 160 / 175
                 Profesor, Mes (month year), Fecha (dd/mm/yyyy)
  Column titles: Helvetica-Bold 9 at y=200
                 Materia 40 | Horario 120 | Comentario 200 | Alum. 340 |
                 Horas 380 | $/Hora 420 | Subtotal 480
  Rule:          y=210, x 40..550
  Rows:          Helvetica 9 from y=222, 14pt apart
                 numbers right-aligned at 360 / 400 / 460 / 540
  Total:         Helvetica-Bold 11, right-aligned at 540, 20pt below the
                 row cursor: "TOTAL: $ 1,234.56"

PAGINATION:
  Before drawing a row, if the cursor is past pageHeight - 80 a new page
  starts. Continuation pages repeat only the column titles (y=40, rule at
  50, rows from 62), not the logo/title/header. With these constants page
  one holds 39 rows and each continuation page 50.

DETERMINISM:
  Creation and modification dates are the statement's creation time, and
  the catalog is sorted, so the same statement renders to the same bytes.
*/
package render

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/escuelademusica/liquidaciones/internal/logger"
	"github.com/escuelademusica/liquidaciones/payroll"
)

const (
	title = "LIQUIDACIÓN DOCENTE"

	logoX      = 40.0
	logoBottom = 90.0
	logoWidth  = 110.0

	titleX = 170.0
	titleY = 60.0

	headerX = 40.0

	columnTitleY   = 200.0
	ruleLeft       = 40.0
	ruleRight      = 550.0
	ruleGap        = 10.0 // column titles to rule
	firstRowGap    = 12.0 // rule to first row
	rowHeight      = 14.0
	bottomMargin   = 80.0
	continuationY  = 40.0
	totalGap       = 20.0
	totalRightEdge = 540.0
)

var headerYs = [3]float64{145, 160, 175}

type column struct {
	title string
	x     float64
}

var columns = []column{
	{"Materia", 40},
	{"Horario", 120},
	{"Comentario", 200},
	{"Alum.", 340},
	{"Horas", 380},
	{"$/Hora", 420},
	{"Subtotal", 480},
}

// Right edges of the numeric cells: students, hours, rate, subtotal.
var numericRight = [4]float64{360, 400, 460, 540}

// Document is a rendered statement.
type Document struct {
	Name  string
	Data  []byte
	Pages int
	Total decimal.Decimal
}

// Renderer draws statements. The zero value renders without a logo.
type Renderer struct {
	LogoPath string
}

// New creates a Renderer. logoPath may be empty or point to a missing file;
// the logo is then omitted.
func New(logoPath string) *Renderer {
	return &Renderer{LogoPath: logoPath}
}

// Render draws a statement view. Views without a teacher are rejected with
// payroll.ErrTeacherNotFound.
func (r *Renderer) Render(v payroll.StatementView) (Document, error) {
	if v.Teacher == nil {
		return Document{}, fmt.Errorf("%w: statement %d", payroll.ErrTeacherNotFound, v.ID)
	}

	stamp := v.CreatedAt
	if stamp.IsZero() {
		stamp = time.Unix(0, 0).UTC()
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(FileName(v), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	_, pageHeight := pdf.GetPageSize()
	limit := pageHeight - bottomMargin

	pdf.AddPage()
	r.drawLogo(pdf)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(titleX, titleY, tr(title))

	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(headerX, headerYs[0], tr("Profesor: "+v.TeacherName()))
	pdf.Text(headerX, headerYs[1], tr("Mes: "+v.Period()))
	pdf.Text(headerX, headerYs[2], tr("Fecha: "+FormatDate(v)))

	y := drawColumnTitles(pdf, tr, columnTitleY)

	total := decimal.Zero
	for _, it := range v.Items {
		if y > limit {
			pdf.AddPage()
			y = drawColumnTitles(pdf, tr, continuationY)
		}
		drawRow(pdf, tr, y, it)
		total = total.Add(it.Subtotal)
		y += rowHeight
	}

	y += totalGap
	pdf.SetFont("Helvetica", "B", 11)
	rightText(pdf, totalRightEdge, y, tr("TOTAL: $ "+FormatMoney(total)))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("render statement %d: %w", v.ID, err)
	}
	return Document{
		Name:  FileName(v),
		Data:  buf.Bytes(),
		Pages: pdf.PageCount(),
		Total: total,
	}, nil
}

// drawLogo places the logo with its bottom edge at logoBottom. Any load
// failure is logged and the document continues without it.
func (r *Renderer) drawLogo(pdf *fpdf.Fpdf) {
	if r.LogoPath == "" {
		return
	}
	if _, err := os.Stat(r.LogoPath); err != nil {
		logger.LogDebug("logo not available", "path", r.LogoPath, "error", err)
		return
	}

	opts := fpdf.ImageOptions{ReadDpi: false}
	info := pdf.RegisterImageOptions(r.LogoPath, opts)
	if pdf.Err() || info == nil || info.Width() == 0 {
		logger.LogWarn("logo could not be loaded", "path", r.LogoPath, "error", pdf.Error())
		pdf.ClearError()
		return
	}
	height := logoWidth * info.Height() / info.Width()
	pdf.ImageOptions(r.LogoPath, logoX, logoBottom-height, logoWidth, height, false, opts, 0, "")
}

// drawColumnTitles prints the column row and rule at y and returns the
// cursor of the first data row. The body font is left selected.
func drawColumnTitles(pdf *fpdf.Fpdf, tr func(string) string, y float64) float64 {
	pdf.SetFont("Helvetica", "B", 9)
	for _, c := range columns {
		pdf.Text(c.x, y, tr(c.title))
	}
	y += ruleGap
	pdf.Line(ruleLeft, y, ruleRight, y)
	pdf.SetFont("Helvetica", "", 9)
	return y + firstRowGap
}

func drawRow(pdf *fpdf.Fpdf, tr func(string) string, y float64, it payroll.LineItem) {
	pdf.Text(columns[0].x, y, tr(it.Subject))
	pdf.Text(columns[1].x, y, tr(it.Schedule))
	pdf.Text(columns[2].x, y, tr(it.Comment))
	rightText(pdf, numericRight[0], y, fmt.Sprintf("%d", it.StudentCount))
	rightText(pdf, numericRight[1], y, FormatFixed(it.Hours))
	rightText(pdf, numericRight[2], y, FormatFixed(it.HourlyRate))
	rightText(pdf, numericRight[3], y, FormatFixed(it.Subtotal))
}

func rightText(pdf *fpdf.Fpdf, right, y float64, s string) {
	pdf.Text(right-pdf.GetStringWidth(s), y, s)
}
