package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escuelademusica/liquidaciones/payroll"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var issued = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

func view(n int) payroll.StatementView {
	items := make([]payroll.LineItem, n)
	days := []string{"Lunes", "Martes", "Miércoles", "Jueves", "Viernes"}
	for i := range items {
		items[i] = payroll.LineItem{
			ID:           int64(i + 1),
			Subject:      fmt.Sprintf("Materia %d", i),
			Schedule:     fmt.Sprintf("%s %02d:00", days[i%len(days)], 8+i%10),
			Comment:      "Ensamble",
			StudentCount: 1 + i%20,
			Hours:        decimal.NewFromInt(4),
			HourlyRate:   decimal.RequireFromString("1250.5"),
			Subtotal:     decimal.RequireFromString("5002"),
		}
	}
	st := payroll.Statement{ID: 17, TeacherID: 3, Month: "Marzo", Year: 2025, CreatedAt: issued}
	teacher := &payroll.Teacher{ID: 3, Name: "Ana María Pérez", Scale: 2}
	return payroll.NewStatementView(st, teacher, items)
}

// =============================================================================
// DOCUMENT
// =============================================================================

func TestRender_ProducesPDF(t *testing.T) {
	doc, err := New("").Render(view(3))

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
	assert.Equal(t, 1, doc.Pages)
	assert.Equal(t, "Liquidacion_Ana_María_Pérez_Marzo_2025_17.pdf", doc.Name)
	assert.Equal(t, "15006", doc.Total.String())
}

func TestRender_EmptyStatement(t *testing.T) {
	doc, err := New("").Render(view(0))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Pages)
	assert.True(t, doc.Total.IsZero())
}

func TestRender_Pagination(t *testing.T) {
	// Page one holds 39 rows, continuation pages 50.
	cases := []struct {
		items int
		pages int
	}{
		{1, 1},
		{39, 1},
		{40, 2},
		{89, 2},
		{90, 3},
		{139, 3},
		{140, 4},
	}
	r := New("")
	for _, c := range cases {
		doc, err := r.Render(view(c.items))
		require.NoError(t, err)
		assert.Equal(t, c.pages, doc.Pages, "items=%d", c.items)
	}
}

func TestRender_TotalIsSumOfSubtotals(t *testing.T) {
	v := view(4)
	v.Items[0].Subtotal = decimal.RequireFromString("0.1")
	v.Items[1].Subtotal = decimal.RequireFromString("0.2")

	doc, err := New("").Render(v)

	require.NoError(t, err)
	assert.Equal(t, "10004.3", doc.Total.String())
}

func TestRender_Deterministic(t *testing.T) {
	r := New("")
	a, err := r.Render(view(45))
	require.NoError(t, err)
	b, err := r.Render(view(45))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a.Data, b.Data))
}

func TestRender_MissingTeacher(t *testing.T) {
	v := view(1)
	v.Teacher = nil

	_, err := New("").Render(v)
	assert.ErrorIs(t, err, payroll.ErrTeacherNotFound)
}

// =============================================================================
// LOGO
// =============================================================================

func writePNG(t *testing.T, w, h int) string {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "logo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestRender_WithLogo(t *testing.T) {
	logo := writePNG(t, 40, 20)

	with, err := New(logo).Render(view(2))
	require.NoError(t, err)
	without, err := New("").Render(view(2))
	require.NoError(t, err)

	assert.Greater(t, len(with.Data), len(without.Data))
}

func TestRender_MissingOrBrokenLogo_IsSkipped(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.png")
	doc, err := New(missing).Render(view(2))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))

	broken := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o600))
	doc, err = New(broken).Render(view(2))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
}

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":           "0.00",
		"5":           "5.00",
		"1234.5":      "1,234.50",
		"1234567.891": "1,234,567.89",
		"-1234.5":     "-1,234.50",
		"999.995":     "1,000.00",
		// Past 2^53 cents: no float rounding
		"123456789012345678.91": "123,456,789,012,345,678.91",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMoney(decimal.RequireFromString(in)), in)
	}
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "4.00", FormatFixed(decimal.NewFromInt(4)))
	assert.Equal(t, "66.67", FormatFixed(decimal.RequireFromString("66.666")))
}

func TestFileName_SanitizesSeparators(t *testing.T) {
	v := view(0)
	v.Teacher.Name = "Juan  Carlos/Pérez"
	v.Month = "Ene\\Feb"
	assert.Equal(t, "Liquidacion_Juan__Carlos-Pérez_Ene-Feb_2025_17.pdf", FileName(v))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "02/04/2025", FormatDate(view(0)))
}
